package tools

import (
	"context"

	"github.com/Tanzania-AI-Community/twiga/pkg/providers"
)

// Caller identifies the user on whose behalf a tool runs. ClassNames
// lists the classes the user belongs to and constrains enum parameters
// in tool schemas.
type Caller struct {
	UserID     int64
	UserName   string
	ClassNames []string
}

type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON-schema parameter object for this
	// caller. Schemas may embed caller-specific enum values.
	Parameters(caller Caller) map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}, caller Caller) (string, error)
}

func ToolToDefinition(tool Tool, caller Caller) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(caller),
		},
	}
}
