package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"resumerecon/internal/config"
	"resumerecon/internal/errors"
	"resumerecon/internal/reconciler"
	"resumerecon/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const suggestionsJSON = `[
  {"id": "s1", "section": "Professional Summary", "type": "replace", "suggested": "Senior engineer"},
  {"id": "k1", "section": "Technical Skills", "type": "addition", "suggested": ["Go", "SQL"]}
]`

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			DefaultFormat:    "json",
			SupportedFormats: []string{"json", "text", "markdown"},
			MaxFileSize:      1 << 20,
		},
	}
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	return Execute(context.Background(), testConfig(), errors.NewLogger(slog.LevelError))
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestStructureCommand(t *testing.T) {
	in := writeTemp(t, "suggestions.json", suggestionsJSON)
	out := filepath.Join(t.TempDir(), "structured.json")

	require.NoError(t, run(t, "structure", in, "--accept", "s1,k1", "-o", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var result reconciler.Result[types.StructuredResumeSections]
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "Senior engineer", result.Value.Summary)
	assert.Equal(t, []any{"Go", "SQL"}, result.Value.Skills)
}

func TestGenerateCommandTextFormat(t *testing.T) {
	in := writeTemp(t, "suggestions.json", suggestionsJSON)
	out := filepath.Join(t.TempDir(), "resume.txt")

	require.NoError(t, run(t, "generate", in, "--accept-all", "--format", "text", "-o", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "SUMMARY:\nSenior engineer\n\nSKILLS:\nGo\nSQL", string(data))
}

func TestCommandArgumentErrors(t *testing.T) {
	in := writeTemp(t, "suggestions.json", suggestionsJSON)

	tests := []struct {
		name string
		args []string
	}{
		{"missing suggestions file", []string{"structure"}},
		{"unsupported format", []string{"accepted", in, "--format", "yaml"}},
		{"render without output file", []string{"render", in}},
		{"suggest without resume", []string{"suggest"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, run(t, tt.args...))
		})
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	require.NoError(t, run(t, "version"))
	assert.Contains(t, buf.String(), "resumerecon version dev")
}
