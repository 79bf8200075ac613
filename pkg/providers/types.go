package providers

import "context"

// Role values used on the wire and in the store.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one conversation turn in provider wire format. The same
// shape is persisted by the store, so an assistant message carries either
// text content or tool calls, never both.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool-role messages
	ToolName   string     `json:"tool_name,omitempty"`    // set on tool-role messages
}

// ToolCall is a structured request from the model to invoke a named
// function. Arguments is the raw JSON argument object.
type ToolCall struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // always "function"
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes one callable tool in the request schema.
type ToolDefinition struct {
	Type     string                 `json:"type"`
	Function ToolFunctionDefinition `json:"function"`
}

type ToolFunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// LLMResponse is the provider-neutral completion result.
type LLMResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        *UsageInfo
}

type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatOptions tunes a single completion request.
type ChatOptions struct {
	MaxTokens   int
	Temperature float64
}

// LLMProvider is the chat-completion contract the engine depends on.
// Passing a nil tools slice forces a tool-free answer.
type LLMProvider interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, opts ChatOptions) (*LLMResponse, error)
	DefaultModel() string
}
