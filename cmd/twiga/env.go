package main

import (
	"fmt"
	"os"
	"strings"
)

// loadEnvFile reads KEY=VALUE pairs from path into the process
// environment. Variables already set in the environment win over the
// file. Supports comments, "export" prefixes, quoted values and inline
// comments on unquoted values.
func loadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	for lineNo, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid line %d in %s: missing '='", lineNo+1, path)
		}

		key = strings.TrimSpace(key)
		value = parseEnvValue(strings.TrimSpace(value))

		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		os.Setenv(key, value)
	}
	return nil
}

func parseEnvValue(value string) string {
	if len(value) >= 2 && value[0] == '"' {
		if end := strings.Index(value[1:], `"`); end >= 0 {
			inner := value[1 : 1+end]
			inner = strings.ReplaceAll(inner, `\n`, "\n")
			inner = strings.ReplaceAll(inner, `\t`, "\t")
			inner = strings.ReplaceAll(inner, `\"`, `"`)
			return inner
		}
	}
	if len(value) >= 2 && value[0] == '\'' {
		if end := strings.Index(value[1:], "'"); end >= 0 {
			return value[1 : 1+end]
		}
	}
	// Unquoted: strip inline comment.
	if idx := strings.Index(value, " #"); idx >= 0 {
		value = value[:idx]
	}
	return strings.TrimSpace(value)
}
