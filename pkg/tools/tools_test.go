package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Tanzania-AI-Community/twiga/pkg/providers"
)

type scriptedProvider struct {
	response string
	err      error
	calls    int
}

func (p *scriptedProvider) Chat(_ context.Context, _ []providers.Message, _ []providers.ToolDefinition, _ string, _ providers.ChatOptions) (*providers.LLMResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &providers.LLMResponse{Content: p.response, FinishReason: "stop"}, nil
}

func (p *scriptedProvider) DefaultModel() string { return "test-model" }

type failingTool struct{}

func (failingTool) Name() string        { return "failing_tool" }
func (failingTool) Description() string { return "always fails" }
func (failingTool) Parameters(_ Caller) map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (failingTool) Execute(_ context.Context, _ map[string]interface{}, _ Caller) (string, error) {
	return "", fmt.Errorf("boom")
}

func TestSolveLinearEquation(t *testing.T) {
	tool := NewSolveEquationTool(nil, "")

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"equation": "2x+5=13",
	}, Caller{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(result, "x = 4") {
		t.Errorf("result = %q, want it to contain %q", result, "x = 4")
	}
}

func TestSolveLinearVariableBothSides(t *testing.T) {
	tool := NewSolveEquationTool(nil, "")

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"equation": "3y - 1 = y + 7",
	}, Caller{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(result, "y = 4") {
		t.Errorf("result = %q, want it to contain %q", result, "y = 4")
	}
}

func TestSolveEquationVerboseSteps(t *testing.T) {
	tool := NewSolveEquationTool(nil, "")

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"equation": "2x+5=13",
		"concise":  false,
	}, Caller{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(result, "Divide both sides by 2") {
		t.Errorf("verbose result missing explanation: %q", result)
	}
	if !strings.HasSuffix(result, "x = 4") {
		t.Errorf("verbose result should end with solution, got %q", result)
	}
}

func TestSolveEquationDelegatesNonLinear(t *testing.T) {
	provider := &scriptedProvider{response: "x^2 = 9\nx = 3 or x = -3"}
	tool := NewSolveEquationTool(provider, "test-model")

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"equation": "x^2 = 9",
	}, Caller{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
	if !strings.Contains(result, "x = 3") {
		t.Errorf("result = %q", result)
	}
}

func TestSolveEquationRejectsNoSolution(t *testing.T) {
	tool := NewSolveEquationTool(nil, "")

	if _, err := tool.Execute(context.Background(), map[string]interface{}{
		"equation": "x + 1 = x + 2",
	}, Caller{}); err == nil {
		t.Fatal("expected error for contradiction, got nil")
	}
}

func TestRegistryExecuteWrapsUnknownTool(t *testing.T) {
	registry := NewToolRegistry()

	result := registry.Execute(context.Background(), "nope", "{}", Caller{})
	if !strings.Contains(result, `"error"`) || !strings.Contains(result, "not found") {
		t.Errorf("result = %q, want error payload", result)
	}
}

func TestRegistryExecuteWrapsToolFailure(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(failingTool{})

	result := registry.Execute(context.Background(), "failing_tool", "{}", Caller{})
	if !strings.Contains(result, `"error"`) || !strings.Contains(result, "boom") {
		t.Errorf("result = %q, want wrapped failure", result)
	}
}

func TestRegistryExecuteWrapsBadArguments(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(failingTool{})

	result := registry.Execute(context.Background(), "failing_tool", "{not json", Caller{})
	if !strings.Contains(result, `"error"`) {
		t.Errorf("result = %q, want error payload", result)
	}
}

type panickyTool struct{}

func (panickyTool) Name() string        { return "panicky_tool" }
func (panickyTool) Description() string { return "always panics" }
func (panickyTool) Parameters(_ Caller) map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (panickyTool) Execute(_ context.Context, _ map[string]interface{}, _ Caller) (string, error) {
	panic("unexpected state")
}

func TestRegistryExecuteWrapsToolPanic(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(panickyTool{})

	result := registry.Execute(context.Background(), "panicky_tool", "{}", Caller{})
	if !strings.Contains(result, `"error"`) || !strings.Contains(result, "panicked") {
		t.Errorf("result = %q, want wrapped panic", result)
	}
}

func TestRegistryMetadataScopedToCaller(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(NewSolveEquationTool(nil, ""))
	registry.Register(NewSearchKnowledgeTool(nil))

	caller := Caller{ClassNames: []string{"Form 1", "Form 2"}}
	defs := registry.Metadata(caller)
	if len(defs) != 2 {
		t.Fatalf("got %d definitions, want 2", len(defs))
	}
	if defs[0].Function.Name != "search_knowledge" || defs[1].Function.Name != "solve_equation" {
		t.Errorf("definitions not in name order: %s, %s", defs[0].Function.Name, defs[1].Function.Name)
	}

	props := defs[0].Function.Parameters["properties"].(map[string]interface{})
	classProp := props["class_name"].(map[string]interface{})
	enum, ok := classProp["enum"].([]interface{})
	if !ok || len(enum) != 2 {
		t.Errorf("class_name enum = %v, want the caller's two classes", classProp["enum"])
	}
}
