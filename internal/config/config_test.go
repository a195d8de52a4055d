package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigFrom_Defaults(t *testing.T) {
	path := writeFile(t, "config.yaml", "app:\n  logLevel: warn\n")

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.App.LogLevel)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.Server.Sessions.TTL)
	assert.True(t, cfg.Reconciler.ReconstructFragments)
	assert.Equal(t, "/api/improved-resumes", cfg.Backend.ImprovedResumePath)
	assert.Equal(t, "/api/templates/render", cfg.Backend.RenderPath)
}

func TestLoadConfigFrom_EnvOverride(t *testing.T) {
	t.Setenv("RESUMERECON_BACKEND_BASEURL", "http://backend.internal:8000")
	t.Setenv("RESUMERECON_SERVER_APIKEYS", "alpha, beta,,")
	path := writeFile(t, "config.yaml", "server:\n  port: \"9000\"\n")

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "http://backend.internal:8000", cfg.Backend.BaseURL)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.Server.APIKeys)
}

func TestLoadConfigFrom_InlineAliases(t *testing.T) {
	path := writeFile(t, "config.yaml", `
reconciler:
  aliases:
    experience: ["Military Service"]
`)

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)

	r, err := cfg.Reconciler.NewReconciler()
	require.NoError(t, err)
	section, ok := r.Aliases().Resolve("military service")
	assert.True(t, ok)
	assert.Equal(t, "experience", string(section))
}

func TestLoadConfigFrom_InvalidAliases(t *testing.T) {
	path := writeFile(t, "config.yaml", `
reconciler:
  aliases:
    hobbies: ["pastimes"]
`)

	_, err := LoadConfigFrom(path)
	assert.ErrorContains(t, err, "reconciler configuration error")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AI:     AIConfig{Timeout: time.Minute},
			Server: ServerConfig{Port: "8080", Sessions: SessionConfig{TTL: time.Hour}},
			App: AppConfig{
				DefaultFormat:    "json",
				SupportedFormats: []string{"json", "text"},
			},
			Reconciler: ReconcilerConfig{ReconstructFragments: true},
			Backend:    BackendConfig{Timeout: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero AI timeout", mutate: func(c *Config) { c.AI.Timeout = 0 }, wantErr: "AI timeout"},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }, wantErr: "server port"},
		{name: "zero session TTL", mutate: func(c *Config) { c.Server.Sessions.TTL = 0 }, wantErr: "session TTL"},
		{name: "unsupported default format", mutate: func(c *Config) { c.App.DefaultFormat = "xml" }, wantErr: "invalid default format"},
		{name: "negative debounce", mutate: func(c *Config) { c.Reconciler.DebounceDelay = -time.Second }, wantErr: "debounceDelay"},
		{name: "relative backend URL", mutate: func(c *Config) { c.Backend.BaseURL = "/api" }, wantErr: "invalid backend baseURL"},
		{name: "zero backend timeout", mutate: func(c *Config) { c.Backend.Timeout = 0 }, wantErr: "backend timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadAliasFile(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		path := writeFile(t, "aliases.yaml", "aliases:\n  skills: [toolbox, stack]\n")
		aliases, err := LoadAliasFile(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"toolbox", "stack"}, aliases["skills"])
	})

	t.Run("json", func(t *testing.T) {
		path := writeFile(t, "aliases.json", `{"aliases": {"projects": ["side quests"]}}`)
		aliases, err := LoadAliasFile(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"side quests"}, aliases["projects"])
	})

	t.Run("missing", func(t *testing.T) {
		_, err := LoadAliasFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read alias file")
	})
}

func TestResolveAliases_MergesFileAndInline(t *testing.T) {
	path := writeFile(t, "aliases.yaml", "aliases:\n  experience: [volunteering]\n")
	rc := ReconcilerConfig{
		Aliases:   map[string][]string{"experience": {"military service"}},
		AliasFile: path,
	}

	merged, err := rc.ResolveAliases()
	require.NoError(t, err)
	assert.Equal(t, []string{"military service", "volunteering"}, merged["experience"])
	assert.Equal(t, []string{"military service"}, rc.Aliases["experience"])
}
