package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Tanzania-AI-Community/twiga/pkg/logger"
	"github.com/Tanzania-AI-Community/twiga/pkg/providers"
)

type ToolRegistry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
	}
}

func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Metadata returns the tool definitions visible to the model for this
// caller, in stable name order.
func (r *ToolRegistry) Metadata(caller Caller) []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	definitions := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		definitions = append(definitions, ToolToDefinition(r.tools[name], caller))
	}
	return definitions
}

// Execute runs a tool by name with JSON-encoded arguments. Failures of
// any kind (unknown tool, bad arguments, tool error) are returned as a
// JSON error payload rather than an error, so one failing tool becomes
// an observation the model can react to instead of aborting the turn.
func (r *ToolRegistry) Execute(ctx context.Context, name, argumentsJSON string, caller Caller) string {
	logger.InfoCF("tool", "Tool execution started", map[string]interface{}{
		"tool": name,
		"user": caller.UserID,
	})

	tool, ok := r.Get(name)
	if !ok {
		logger.ErrorCF("tool", "Tool not found", map[string]interface{}{"tool": name})
		return errorPayload(fmt.Sprintf("tool '%s' not found", name))
	}

	args := map[string]interface{}{}
	if argumentsJSON != "" {
		if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
			logger.ErrorCF("tool", "Invalid tool arguments", map[string]interface{}{
				"tool":  name,
				"error": err.Error(),
			})
			return errorPayload(fmt.Sprintf("invalid arguments for tool '%s': %v", name, err))
		}
	}

	start := time.Now()
	result, err := runTool(ctx, tool, args, caller)
	duration := time.Since(start)

	if err != nil {
		logger.ErrorCF("tool", "Tool execution failed", map[string]interface{}{
			"tool":        name,
			"duration_ms": duration.Milliseconds(),
			"error":       err.Error(),
		})
		return errorPayload(err.Error())
	}

	logger.InfoCF("tool", "Tool execution completed", map[string]interface{}{
		"tool":          name,
		"duration_ms":   duration.Milliseconds(),
		"result_length": len(result),
	})
	return result
}

// runTool converts a tool panic into an error so the registry can wrap
// it as an observation like any other failure.
func runTool(ctx context.Context, tool Tool, args map[string]interface{}, caller Caller) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return tool.Execute(ctx, args, caller)
}

// List returns a list of all registered tool names.
func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

func errorPayload(msg string) string {
	raw, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error": "tool failed"}`
	}
	return string(raw)
}
