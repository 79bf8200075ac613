package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/Tanzania-AI-Community/twiga/pkg/providers"
)

const equationSolverSystemPrompt = `You are a mathematics solver. Solve the given equation step by step.
Show each algebraic manipulation on its own line and end with the solution in the form "x = value".`

const equationSolverConciseSystemPrompt = `You are a mathematics solver. Solve the given equation.
Show only the mathematical steps, no explanations, ending with the solution in the form "x = value".`

// SolveEquationTool solves equations. Linear equations in one variable
// are solved directly; anything else is delegated to the model with a
// solver prompt.
type SolveEquationTool struct {
	provider providers.LLMProvider
	model    string
}

func NewSolveEquationTool(provider providers.LLMProvider, model string) *SolveEquationTool {
	return &SolveEquationTool{provider: provider, model: model}
}

func (t *SolveEquationTool) Name() string {
	return "solve_equation"
}

func (t *SolveEquationTool) Description() string {
	return "Solve a mathematical equation and return a step-by-step solution."
}

func (t *SolveEquationTool) Parameters(_ Caller) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"equation": map[string]interface{}{
				"type":        "string",
				"description": "The equation to solve, e.g. \"2x+5=13\".",
			},
			"concise": map[string]interface{}{
				"type":        "boolean",
				"description": "When true, return only the mathematical steps without explanations.",
			},
		},
		"required": []string{"equation"},
	}
}

func (t *SolveEquationTool) Execute(ctx context.Context, args map[string]interface{}, _ Caller) (string, error) {
	equation, _ := args["equation"].(string)
	if equation == "" {
		return "", fmt.Errorf("equation is required")
	}
	concise := true
	if c, ok := args["concise"].(bool); ok {
		concise = c
	}

	if solution, err := solveLinear(equation, concise); err == nil {
		return solution, nil
	}

	if t.provider == nil {
		return "", fmt.Errorf("cannot solve %q: not a linear equation in one variable", equation)
	}

	system := equationSolverSystemPrompt
	if concise {
		system = equationSolverConciseSystemPrompt
	}
	resp, err := t.provider.Chat(ctx, []providers.Message{
		{Role: providers.RoleSystem, Content: system},
		{Role: providers.RoleUser, Content: fmt.Sprintf("Solve the equation: %s", equation)},
	}, nil, t.model, providers.ChatOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to solve the equation: %w", err)
	}
	return resp.Content, nil
}

// linearExpr is a*x + b for a single variable.
type linearExpr struct {
	a, b     float64
	variable rune
}

// solveLinear solves a linear equation in one variable, e.g. "2x+5=13"
// or "3y - 1 = y + 7".
func solveLinear(equation string, concise bool) (string, error) {
	sides := strings.Split(equation, "=")
	if len(sides) != 2 {
		return "", fmt.Errorf("expected exactly one '=' in %q", equation)
	}

	left, err := parseLinear(sides[0])
	if err != nil {
		return "", err
	}
	right, err := parseLinear(sides[1])
	if err != nil {
		return "", err
	}

	variable := left.variable
	if variable == 0 {
		variable = right.variable
	}
	if variable == 0 {
		return "", fmt.Errorf("no variable in %q", equation)
	}
	if left.variable != 0 && right.variable != 0 && left.variable != right.variable {
		return "", fmt.Errorf("mixed variables in %q", equation)
	}

	// a*x + b = c*x + d  =>  (a-c)*x = d-b
	coeff := left.a - right.a
	constant := right.b - left.b
	if coeff == 0 {
		if constant == 0 {
			return "", fmt.Errorf("%q holds for every value", equation)
		}
		return "", fmt.Errorf("%q has no solution", equation)
	}
	value := constant / coeff

	v := string(variable)
	final := fmt.Sprintf("%s = %s", v, formatNumber(value))
	if concise {
		var steps []string
		if coeff != 1 || constant != value {
			steps = append(steps, fmt.Sprintf("%s%s = %s", formatCoeff(coeff), v, formatNumber(constant)))
		}
		steps = append(steps, final)
		return strings.Join(steps, "\n"), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Equation: %s\n", strings.TrimSpace(equation))
	fmt.Fprintf(&sb, "Collect the %s terms on one side and the constants on the other:\n", v)
	fmt.Fprintf(&sb, "%s%s = %s\n", formatCoeff(coeff), v, formatNumber(constant))
	if coeff != 1 {
		fmt.Fprintf(&sb, "Divide both sides by %s:\n", formatNumber(coeff))
	}
	sb.WriteString(final)
	return sb.String(), nil
}

// parseLinear parses one side of an equation as a sum of terms like
// "2x", "-x", "+5", "13".
func parseLinear(side string) (linearExpr, error) {
	var expr linearExpr
	s := strings.ReplaceAll(side, " ", "")
	s = strings.ReplaceAll(s, "*", "")
	if s == "" {
		return expr, fmt.Errorf("empty expression")
	}

	i := 0
	for i < len(s) {
		sign := 1.0
		for i < len(s) && (s[i] == '+' || s[i] == '-') {
			if s[i] == '-' {
				sign = -sign
			}
			i++
		}
		if i == len(s) {
			return expr, fmt.Errorf("dangling sign in %q", side)
		}

		start := i
		for i < len(s) && (unicode.IsDigit(rune(s[i])) || s[i] == '.') {
			i++
		}
		numText := s[start:i]

		if i < len(s) && unicode.IsLetter(rune(s[i])) {
			variable := rune(s[i])
			i++
			if expr.variable != 0 && expr.variable != variable {
				return expr, fmt.Errorf("mixed variables in %q", side)
			}
			expr.variable = variable
			coeff := 1.0
			if numText != "" {
				parsed, err := strconv.ParseFloat(numText, 64)
				if err != nil {
					return expr, fmt.Errorf("bad coefficient %q", numText)
				}
				coeff = parsed
			}
			expr.a += sign * coeff
			continue
		}

		if numText == "" {
			return expr, fmt.Errorf("unexpected character %q in %q", s[i], side)
		}
		value, err := strconv.ParseFloat(numText, 64)
		if err != nil {
			return expr, fmt.Errorf("bad number %q", numText)
		}
		expr.b += sign * value
	}
	return expr, nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatCoeff(v float64) string {
	switch v {
	case 1:
		return ""
	case -1:
		return "-"
	default:
		return formatNumber(v)
	}
}
