package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/Tanzania-AI-Community/twiga/pkg/logger"
	"github.com/Tanzania-AI-Community/twiga/pkg/providers"
	"github.com/Tanzania-AI-Community/twiga/pkg/utils"
)

// Models sometimes emit a tool call as literal text instead of using
// the structured mechanism. The observed shape is
// <function=NAME>JSON_ARGS</function>, possibly spanning lines.
var functionTagPattern = regexp.MustCompile(`(?s)<function=(\w+)>(.*?)</function>`)

// recoveredCall mirrors the JSON shape some models emit in place of a
// structured call. Parameters may itself be a double-encoded JSON
// string.
type recoveredCall struct {
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters"`
}

// ExtractToolCalls returns the tool invocations in an LLM response.
// Structured calls win; otherwise the content is scanned for the known
// malformed shapes. Malformed JSON never fails the turn; an
// unrecoverable response is treated as a plain final answer.
func ExtractToolCalls(resp *providers.LLMResponse) []providers.ToolCall {
	if len(resp.ToolCalls) > 0 {
		calls := make([]providers.ToolCall, len(resp.ToolCalls))
		copy(calls, resp.ToolCalls)
		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = newCallID()
			}
			if calls[i].Type == "" {
				calls[i].Type = "function"
			}
		}
		return calls
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return nil
	}

	if calls := recoverFromFunctionTags(content); len(calls) > 0 {
		return calls
	}
	if call, ok := recoverFromJSON(content); ok {
		return []providers.ToolCall{call}
	}
	return nil
}

func recoverFromFunctionTags(content string) []providers.ToolCall {
	matches := functionTagPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	var calls []providers.ToolCall
	for _, m := range matches {
		name := m[1]
		args := strings.TrimSpace(m[2])
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			logger.WarnCF("agent", "Discarding function tag with invalid JSON arguments", map[string]interface{}{
				"tool": name,
				"args": utils.Truncate(args, 120),
			})
			continue
		}
		calls = append(calls, providers.ToolCall{
			ID:        newCallID(),
			Type:      "function",
			Name:      name,
			Arguments: args,
		})
	}
	if len(calls) > 0 {
		logger.WarnCF("agent", "Recovered tool calls from function tag text", map[string]interface{}{
			"count": len(calls),
		})
	}
	return calls
}

func recoverFromJSON(content string) (providers.ToolCall, bool) {
	var parsed recoveredCall
	if err := json.Unmarshal([]byte(content), &parsed); err != nil || parsed.Name == "" {
		return providers.ToolCall{}, false
	}
	// Both keys must be present. An object that merely happens to have
	// a "name" field is an ordinary final answer, not a tool call.
	if parsed.Parameters == nil {
		return providers.ToolCall{}, false
	}

	args := "{}"
	if len(parsed.Parameters) > 0 && string(parsed.Parameters) != "null" {
		args = string(parsed.Parameters)
		// Some models double-encode: parameters arrives as a JSON
		// string whose value is itself JSON. Unwrap when possible,
		// otherwise pass the inner string through as-is.
		var inner string
		if json.Unmarshal(parsed.Parameters, &inner) == nil {
			args = inner
		}
	}

	logger.WarnCF("agent", "Recovered tool call from JSON text", map[string]interface{}{
		"tool": parsed.Name,
	})
	return providers.ToolCall{
		ID:        newCallID(),
		Type:      "function",
		Name:      parsed.Name,
		Arguments: args,
	}, true
}

func newCallID() string {
	return "call_" + uuid.NewString()
}
