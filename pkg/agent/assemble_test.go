package agent

import (
	"errors"
	"strings"
	"testing"

	"github.com/Tanzania-AI-Community/twiga/pkg/providers"
)

func userMessages(contents ...string) []providers.Message {
	out := make([]providers.Message, 0, len(contents))
	for _, c := range contents {
		out = append(out, providers.Message{Role: providers.RoleUser, Content: c})
	}
	return out
}

func TestAssembleDropsPersistedTail(t *testing.T) {
	prior := userMessages("m1", "m2", "m3", "m4")
	pending := userMessages("m3", "m4")

	got, err := AssembleHistory("system prompt", prior, pending)
	if err != nil {
		t.Fatalf("AssembleHistory failed: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("assembled length = %d, want 5 (system + 4)", len(got))
	}
	if got[0].Role != providers.RoleSystem || got[0].Content != "system prompt" {
		t.Errorf("first message = %+v, want the system prompt", got[0])
	}
	want := []string{"m1", "m2", "m3", "m4"}
	for i, content := range want {
		if got[i+1].Content != content {
			t.Errorf("message %d = %q, want %q", i+1, got[i+1].Content, content)
		}
	}
}

func TestAssembleShortHistoryFails(t *testing.T) {
	prior := userMessages("m1", "m2")
	pending := userMessages("m1", "m2", "m3")

	_, err := AssembleHistory("system", prior, pending)
	if !errors.Is(err, ErrHistoryMismatch) {
		t.Fatalf("err = %v, want ErrHistoryMismatch", err)
	}
}

func TestAssembleEqualLengths(t *testing.T) {
	pending := userMessages("a", "b")

	got, err := AssembleHistory("system", userMessages("a", "b"), pending)
	if err != nil {
		t.Fatalf("AssembleHistory failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("assembled length = %d, want 3", len(got))
	}
}

func TestAssembleKeepsPendingVerbatim(t *testing.T) {
	prior := []providers.Message{
		{Role: providers.RoleUser, Content: "q"},
		{Role: providers.RoleAssistant, Content: "stale copy"},
	}
	pending := []providers.Message{
		{Role: providers.RoleAssistant, Content: "buffered copy"},
	}

	got, err := AssembleHistory("system", prior, pending)
	if err != nil {
		t.Fatalf("AssembleHistory failed: %v", err)
	}
	if got[len(got)-1].Content != "buffered copy" {
		t.Errorf("tail = %q, want the buffered copy verbatim", got[len(got)-1].Content)
	}
}

func TestBuildSystemPromptIncludesUserContext(t *testing.T) {
	prompt := BuildSystemPrompt("Asha", map[string][]string{
		"Form 2": {"Geometry"},
		"Form 1": {"Algebra", "Fractions"},
	})
	if !strings.Contains(prompt, "Asha") {
		t.Error("prompt missing user name")
	}
	if !strings.Contains(prompt, "Form 1 (Algebra, Fractions); Form 2 (Geometry)") {
		t.Errorf("prompt missing sorted class info: %q", prompt)
	}
}

func TestBuildSystemPromptNoClasses(t *testing.T) {
	prompt := BuildSystemPrompt("", nil)
	if !strings.Contains(prompt, "a teacher") {
		t.Error("prompt missing fallback name")
	}
	if !strings.Contains(prompt, "not registered") {
		t.Errorf("prompt missing unregistered note: %q", prompt)
	}
}
