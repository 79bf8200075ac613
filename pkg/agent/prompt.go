package agent

import (
	"fmt"
	"sort"
	"strings"
)

const systemPromptTemplate = `You are Twiga, a WhatsApp assistant for teachers in Tanzanian secondary schools.
You help teachers prepare lessons, answer subject questions, and create practice exercises grounded on the official textbooks.

You are talking to %s.
%s

Guidelines:
- Answer in the language the teacher writes in (English or Swahili).
- Use the search_knowledge tool before answering curriculum questions so your answer follows the textbook.
- Use the generate_exercise tool when the teacher asks for practice questions.
- Use the solve_equation tool for mathematics equations.
- Keep replies short enough to read comfortably on a phone.`

// BuildSystemPrompt renders the per-user system message from the
// teacher's name and class assignments.
func BuildSystemPrompt(userName string, classInfo map[string][]string) string {
	if userName == "" {
		userName = "a teacher"
	}
	return fmt.Sprintf(systemPromptTemplate, userName, formatClassInfo(classInfo))
}

func formatClassInfo(classInfo map[string][]string) string {
	if len(classInfo) == 0 {
		return "They have not registered their classes yet."
	}

	classes := make([]string, 0, len(classInfo))
	for name := range classInfo {
		classes = append(classes, name)
	}
	sort.Strings(classes)

	var parts []string
	for _, class := range classes {
		subjects := classInfo[class]
		if len(subjects) == 0 {
			parts = append(parts, class)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", class, strings.Join(subjects, ", ")))
	}
	return "They teach: " + strings.Join(parts, "; ") + "."
}
