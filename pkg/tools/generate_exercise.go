package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tanzania-AI-Community/twiga/pkg/knowledge"
	"github.com/Tanzania-AI-Community/twiga/pkg/providers"
)

const exerciseGeneratorSystemPrompt = `You are a Tanzanian teacher's assistant that writes practice exercises.
Write ONE exercise based strictly on the provided textbook context.
Match the difficulty and phrasing style of the example exercises when present.
Return only the exercise text, with the answer on a separate line prefixed "Answer:".`

// GenerateExerciseTool drafts a practice exercise grounded on retrieved
// textbook content and example exercises.
type GenerateExerciseTool struct {
	base     *knowledge.Base
	provider providers.LLMProvider
	model    string
}

func NewGenerateExerciseTool(base *knowledge.Base, provider providers.LLMProvider, model string) *GenerateExerciseTool {
	return &GenerateExerciseTool{base: base, provider: provider, model: model}
}

func (t *GenerateExerciseTool) Name() string {
	return "generate_exercise"
}

func (t *GenerateExerciseTool) Description() string {
	return "Generate a practice exercise on a topic, grounded on textbook content and example exercises from the knowledge base."
}

func (t *GenerateExerciseTool) Parameters(caller Caller) map[string]interface{} {
	classProp := map[string]interface{}{
		"type":        "string",
		"description": "The class the exercise is for.",
	}
	if len(caller.ClassNames) > 0 {
		enum := make([]interface{}, 0, len(caller.ClassNames))
		for _, name := range caller.ClassNames {
			enum = append(enum, name)
		}
		classProp["enum"] = enum
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The topic the exercise should cover.",
			},
			"class_name": classProp,
		},
		"required": []string{"query"},
	}
}

func (t *GenerateExerciseTool) Execute(ctx context.Context, args map[string]interface{}, caller Caller) (string, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	className, _ := args["class_name"].(string)
	if className == "" && len(caller.ClassNames) == 1 {
		className = caller.ClassNames[0]
	}

	content, err := t.base.Search(ctx, query, 5, className, []string{"content"})
	if err != nil {
		return "", fmt.Errorf("retrieve content: %w", err)
	}
	examples, err := t.base.Search(ctx, query, 2, className, []string{"exercise"})
	if err != nil {
		return "", fmt.Errorf("retrieve example exercises: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("## Textbook content\n")
	sb.WriteString(knowledge.FormatResults(content))
	if len(examples) > 0 {
		sb.WriteString("\n\n## Example exercises\n")
		sb.WriteString(knowledge.FormatResults(examples))
	}

	userPrompt := fmt.Sprintf("Topic: %s\n\n%s", query, sb.String())
	resp, err := t.provider.Chat(ctx, []providers.Message{
		{Role: providers.RoleSystem, Content: exerciseGeneratorSystemPrompt},
		{Role: providers.RoleUser, Content: userPrompt},
	}, nil, t.model, providers.ChatOptions{})
	if err != nil {
		return "", fmt.Errorf("generate exercise: %w", err)
	}
	if resp.Content == "" {
		return "", fmt.Errorf("model returned an empty exercise")
	}
	return resp.Content, nil
}
