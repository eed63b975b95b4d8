package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPrompt(t *testing.T) {
	dir := t.TempDir()

	// Load from exact path prompts/melissa.txt
	require.NoError(t, os.Mkdir(filepath.Join(dir, "prompts"), 0755))
	content1 := "You are Melissa.\nKeep answers short."
	file1 := filepath.Join(dir, "prompts", "melissa.txt")
	require.NoError(t, os.WriteFile(file1, []byte(content1), 0644))

	content, err := LoadPrompt(file1)
	require.NoError(t, err)
	assert.Equal(t, content1, content)

	// Surrounding whitespace is trimmed
	file2 := filepath.Join(dir, "padded.md")
	require.NoError(t, os.WriteFile(file2, []byte("\n\n# Instructions\n\n"), 0644))

	content, err = LoadPrompt(file2)
	require.NoError(t, err)
	assert.Equal(t, "# Instructions", content)

	// File not found
	_, err = LoadPrompt(filepath.Join(dir, "nonexistent-file.txt"))
	assert.Error(t, err)

	// Blank file
	file3 := filepath.Join(dir, "blank.txt")
	require.NoError(t, os.WriteFile(file3, []byte("   \n"), 0644))
	_, err = LoadPrompt(file3)
	assert.Error(t, err)
}

func TestExpandPrompt(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		vars   map[string]string
		want   string
	}{
		{
			name:   "single placeholder",
			prompt: "You are {{name}}.",
			vars:   map[string]string{"name": "Melissa"},
			want:   "You are Melissa.",
		},
		{
			name:   "repeated placeholder",
			prompt: "Say '{{wake_word}}' to wake me. {{wake_word}}!",
			vars:   map[string]string{"wake_word": "Melissa"},
			want:   "Say 'Melissa' to wake me. Melissa!",
		},
		{
			name:   "unknown placeholder untouched",
			prompt: "Hello {{user}}",
			vars:   map[string]string{"name": "Melissa"},
			want:   "Hello {{user}}",
		},
		{
			name:   "no vars",
			prompt: "Hello {{user}}",
			want:   "Hello {{user}}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPrompt(tt.prompt, tt.vars))
		})
	}
}
