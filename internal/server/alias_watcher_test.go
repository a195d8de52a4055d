package server

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"resumerecon/internal/config"
	appErrors "resumerecon/internal/errors"
	"resumerecon/internal/reconciler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAliasWatcherValidation(t *testing.T) {
	_, err := NewAliasWatcher("", 0, func() {}, nil)
	assert.Error(t, err)

	_, err = NewAliasWatcher("aliases.yaml", 0, nil, nil)
	assert.Error(t, err)

	aw, err := NewAliasWatcher("./conf/../aliases.yaml", 0, func() {}, nil)
	require.NoError(t, err)
	assert.Equal(t, "aliases.yaml", aw.File())
	assert.Equal(t, time.Second, aw.debounceDelay)
}

func TestAliasWatcherReloadsOnChange(t *testing.T) {
	file := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(file, []byte("aliases:\n  experience: [\"service record\"]\n"), 0600))

	var reloads atomic.Int32
	aw, err := NewAliasWatcher(file, 20*time.Millisecond, func() { reloads.Add(1) }, nil)
	require.NoError(t, err)
	require.NoError(t, aw.Start())
	t.Cleanup(func() { _ = aw.Stop() })

	assert.True(t, aw.IsRunning())
	assert.Error(t, aw.Start(), "second start fails")

	require.NoError(t, os.WriteFile(file, []byte("aliases:\n  experience: [\"service record\", \"tours of duty\"]\n"), 0600))
	assert.Eventually(t, func() bool { return reloads.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, aw.Stop())
	assert.False(t, aw.IsRunning())
	assert.NoError(t, aw.Stop(), "stopping twice is a no-op")
}

func TestServerReloadAliases(t *testing.T) {
	file := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(file, []byte("aliases:\n  experience: [\"service record\"]\n"), 0600))

	cfg := config.ReconcilerConfig{AliasFile: file}
	r, err := cfg.NewReconciler()
	require.NoError(t, err)
	s := &Server{Reconciler: r, Logger: appErrors.NewLogger(slog.LevelError)}

	section, ok := r.Aliases().Resolve("Service Record")
	require.True(t, ok)
	assert.Equal(t, reconciler.SectionExperience, section)

	require.NoError(t, os.WriteFile(file, []byte("aliases:\n  projects: [\"side quests\"]\n"), 0600))
	require.NoError(t, s.reloadAliases(cfg))

	section, ok = r.Aliases().Resolve("side quests")
	require.True(t, ok)
	assert.Equal(t, reconciler.SectionProjects, section)
	_, ok = r.Aliases().Resolve("service record")
	assert.False(t, ok, "aliases from the previous file are gone")

	require.NoError(t, os.WriteFile(file, []byte("aliases:\n  hobbies: [\"fun\"]\n"), 0600))
	assert.Error(t, s.reloadAliases(cfg), "unknown section is rejected")
	_, ok = r.Aliases().Resolve("side quests")
	assert.True(t, ok, "previous table stays in effect")
}
