package utils

import (
	"fmt"
	"os"
	"strings"
)

// LoadPrompt loads prompt instructions from a specific file path
// The path must be exact - no fallback searching is performed
func LoadPrompt(filePath string) (string, error) {
	content, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("file does not exist: %s", filePath)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	prompt := strings.TrimSpace(string(content))
	if prompt == "" {
		return "", fmt.Errorf("prompt file is empty: %s", filePath)
	}
	return prompt, nil
}

// ExpandPrompt replaces {{name}} placeholders with the given values. Unknown
// placeholders are left untouched.
func ExpandPrompt(prompt string, vars map[string]string) string {
	if len(vars) == 0 {
		return prompt
	}

	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{{"+name+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(prompt)
}
