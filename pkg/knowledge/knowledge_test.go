package knowledge

import (
	"context"
	"strings"
	"testing"

	"github.com/philippgille/chromem-go"
)

// fakeEmbedding maps known words onto fixed axes so similarity ranking
// is deterministic without a network call.
func fakeEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 4)
	lower := strings.ToLower(text)
	if strings.Contains(lower, "angle") {
		vec[0] = 1
	}
	if strings.Contains(lower, "fraction") {
		vec[1] = 1
	}
	if strings.Contains(lower, "photosynthesis") {
		vec[2] = 1
	}
	vec[3] = 0.01
	return normalize(vec), nil
}

func normalize(v []float32) []float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	var norm float32 = 1
	for i := 0; i < 20; i++ {
		norm = (norm + sum/norm) / 2
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func newTestBase(t *testing.T) *Base {
	t.Helper()
	b, err := NewBase(t.TempDir(), chromem.EmbeddingFunc(fakeEmbedding))
	if err != nil {
		t.Fatalf("NewBase failed: %v", err)
	}
	return b
}

func seedChunks(t *testing.T, b *Base) {
	t.Helper()
	ctx := context.Background()
	chunks := []Chunk{
		{ID: "c1", Content: "A right angle measures 90 degrees.", Subject: "Geometry", ClassName: "Form 2", Chapter: "Angles", DocType: "content"},
		{ID: "c2", Content: "Exercise: measure each angle below.", Subject: "Geometry", ClassName: "Form 2", Chapter: "Angles", DocType: "exercise"},
		{ID: "c3", Content: "A fraction names part of a whole.", Subject: "Mathematics", ClassName: "Form 1", Chapter: "Fractions", DocType: "content"},
		{ID: "c4", Content: "Photosynthesis converts light into chemical energy.", Subject: "Biology", ClassName: "Form 2", Chapter: "Plants", DocType: "content"},
	}
	for _, c := range chunks {
		if err := b.IndexChunk(ctx, c); err != nil {
			t.Fatalf("IndexChunk(%s) failed: %v", c.ID, err)
		}
	}
}

func TestSearchRanksByRelevance(t *testing.T) {
	b := newTestBase(t)
	seedChunks(t, b)

	results, err := b.Search(context.Background(), "what is an angle", 2, "", nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results, got none")
	}
	if !strings.Contains(strings.ToLower(results[0].Content), "angle") {
		t.Errorf("top result = %q, expected angle content", results[0].Content)
	}
}

func TestSearchClassFilter(t *testing.T) {
	b := newTestBase(t)
	seedChunks(t, b)

	results, err := b.Search(context.Background(), "fraction", 4, "Form 1", nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, r := range results {
		if r.ClassName != "Form 1" {
			t.Errorf("result %s has class %q, want Form 1", r.ID, r.ClassName)
		}
	}
}

func TestSearchDocTypeFilter(t *testing.T) {
	b := newTestBase(t)
	seedChunks(t, b)

	results, err := b.Search(context.Background(), "angle", 4, "", []string{"exercise"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected exercise results, got none")
	}
	for _, r := range results {
		if r.DocType != "exercise" {
			t.Errorf("result %s has doc type %q, want exercise", r.ID, r.DocType)
		}
	}
}

func TestSearchEmptyBase(t *testing.T) {
	b := newTestBase(t)

	results, err := b.Search(context.Background(), "anything", 3, "", nil)
	if err != nil {
		t.Fatalf("Search on empty base failed: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results on empty base, got %v", results)
	}
}

func TestFormatResults(t *testing.T) {
	got := FormatResults(nil)
	if got != "No relevant textbook content found." {
		t.Errorf("empty format = %q", got)
	}

	got = FormatResults([]ChunkResult{
		{Content: "A right angle measures 90 degrees.", Chapter: "Angles", ClassName: "Form 2"},
	})
	if !strings.Contains(got, "### Excerpt 1 (Angles, Form 2)") {
		t.Errorf("formatted output missing header: %q", got)
	}
	if !strings.Contains(got, "90 degrees") {
		t.Errorf("formatted output missing content: %q", got)
	}
}
