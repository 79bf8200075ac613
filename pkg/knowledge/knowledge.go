// Package knowledge stores embedded textbook chunks and serves
// similarity search over them for the search_knowledge tool.
package knowledge

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/Tanzania-AI-Community/twiga/pkg/logger"
)

// Chunk is a section of a textbook prepared for retrieval.
type Chunk struct {
	ID        string
	Content   string
	Subject   string
	ClassName string
	Chapter   string
	DocType   string // "content" or "exercise"
}

// ChunkResult is a single similarity search hit.
type ChunkResult struct {
	ID        string  `json:"id"`
	Content   string  `json:"content"`
	Score     float32 `json:"score"`
	Subject   string  `json:"subject,omitempty"`
	ClassName string  `json:"class_name,omitempty"`
	Chapter   string  `json:"chapter,omitempty"`
	DocType   string  `json:"doc_type,omitempty"`
}

// Base wraps a persistent chromem collection of textbook chunks.
type Base struct {
	db        *chromem.DB
	textbooks *chromem.Collection
}

// NewEmbedder returns an embedding function backed by an
// OpenAI-compatible embeddings endpoint.
func NewEmbedder(apiBase, apiKey, model string) chromem.EmbeddingFunc {
	return chromem.NewEmbeddingFuncOpenAICompat(apiBase, apiKey, model, nil)
}

// NewBase opens (or creates) the vector store at path.
func NewBase(path string, embeddingFn chromem.EmbeddingFunc) (*Base, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create knowledge dir: %w", err)
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}

	textbooks, err := db.GetOrCreateCollection("textbooks", nil, embeddingFn)
	if err != nil {
		return nil, fmt.Errorf("create textbooks collection: %w", err)
	}

	logger.InfoCF("knowledge", "Knowledge base opened", map[string]interface{}{
		"path":   path,
		"chunks": textbooks.Count(),
	})

	return &Base{db: db, textbooks: textbooks}, nil
}

// IndexChunk adds or replaces a textbook chunk.
func (b *Base) IndexChunk(ctx context.Context, chunk Chunk) error {
	if chunk.ID == "" {
		chunk.ID = fmt.Sprintf("chunk:%d", time.Now().UnixNano())
	}
	docType := chunk.DocType
	if docType == "" {
		docType = "content"
	}

	doc := chromem.Document{
		ID:      chunk.ID,
		Content: chunk.Content,
		Metadata: map[string]string{
			"subject":    chunk.Subject,
			"class_name": chunk.ClassName,
			"chapter":    chunk.Chapter,
			"doc_type":   docType,
		},
	}
	if err := b.textbooks.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// Count returns the number of indexed chunks.
func (b *Base) Count() int {
	return b.textbooks.Count()
}

// Search returns the chunks most similar to query. className narrows
// results to one class when non-empty; docTypes narrows by document
// type when non-empty.
func (b *Base) Search(ctx context.Context, query string, limit int, className string, docTypes []string) ([]ChunkResult, error) {
	total := b.textbooks.Count()
	if total == 0 {
		return nil, nil
	}

	var where map[string]string
	if className != "" {
		where = map[string]string{"class_name": className}
	}

	// Over-fetch when post-filtering by doc type so the caller still
	// gets up to limit hits.
	fetch := limit
	if len(docTypes) > 0 {
		fetch = limit * 3
	}
	if fetch > total {
		fetch = total
	}

	results, err := b.textbooks.Query(ctx, query, fetch, where, nil)
	if err != nil {
		return nil, fmt.Errorf("search textbooks: %w", err)
	}

	allowed := make(map[string]bool, len(docTypes))
	for _, dt := range docTypes {
		allowed[strings.ToLower(dt)] = true
	}

	var out []ChunkResult
	for _, r := range results {
		if len(allowed) > 0 && !allowed[strings.ToLower(r.Metadata["doc_type"])] {
			continue
		}
		out = append(out, ChunkResult{
			ID:        r.ID,
			Content:   r.Content,
			Score:     r.Similarity,
			Subject:   r.Metadata["subject"],
			ClassName: r.Metadata["class_name"],
			Chapter:   r.Metadata["chapter"],
			DocType:   r.Metadata["doc_type"],
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// FormatResults renders search hits as numbered excerpts for the model
// to ground its answer on.
func FormatResults(results []ChunkResult) string {
	if len(results) == 0 {
		return "No relevant textbook content found."
	}

	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		header := fmt.Sprintf("### Excerpt %d", i+1)
		if r.Chapter != "" {
			header += fmt.Sprintf(" (%s", r.Chapter)
			if r.ClassName != "" {
				header += fmt.Sprintf(", %s", r.ClassName)
			}
			header += ")"
		} else if r.ClassName != "" {
			header += fmt.Sprintf(" (%s)", r.ClassName)
		}
		sb.WriteString(header)
		sb.WriteString("\n")
		sb.WriteString(r.Content)
	}
	return sb.String()
}
