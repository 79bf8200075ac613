package tools

import (
	"context"
	"fmt"

	"github.com/Tanzania-AI-Community/twiga/pkg/knowledge"
)

// SearchKnowledgeTool retrieves textbook content relevant to a search
// phrase, scoped to the caller's classes.
type SearchKnowledgeTool struct {
	base *knowledge.Base
}

func NewSearchKnowledgeTool(base *knowledge.Base) *SearchKnowledgeTool {
	return &SearchKnowledgeTool{base: base}
}

func (t *SearchKnowledgeTool) Name() string {
	return "search_knowledge"
}

func (t *SearchKnowledgeTool) Description() string {
	return "Search the textbook knowledge base for content relevant to a topic. Use this before answering subject questions so the answer follows the curriculum."
}

func (t *SearchKnowledgeTool) Parameters(caller Caller) map[string]interface{} {
	classProp := map[string]interface{}{
		"type":        "string",
		"description": "The class whose textbooks to search.",
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
			"search_phrase": map[string]interface{}{
				"type":        "string",
				"description": "The topic or question to look up.",
			},
			"class_name": classProp,
		},
		"required": []string{"search_phrase"},
	}
}

func (t *SearchKnowledgeTool) Execute(ctx context.Context, args map[string]interface{}, caller Caller) (string, error) {
	phrase, _ := args["search_phrase"].(string)
	if phrase == "" {
		return "", fmt.Errorf("search_phrase is required")
	}
	className, _ := args["class_name"].(string)
	if className == "" && len(caller.ClassNames) == 1 {
		className = caller.ClassNames[0]
	}

	results, err := t.base.Search(ctx, phrase, 10, className, []string{"content"})
	if err != nil {
		return "", fmt.Errorf("unable to search the course content: %w", err)
	}
	return knowledge.FormatResults(results), nil
}
