package server

import (
	"errors"
	"sync"
	"testing"
	"time"

	"resumerecon/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockVaultClient serves secrets from memory
type mockVaultClient struct {
	mu      sync.Mutex
	secrets map[string]*config.VaultSecret
	err     error
}

func (m *mockVaultClient) GetSecretV2(path string) (*config.VaultSecret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if secret, exists := m.secrets[path]; exists {
		return secret, nil
	}
	return nil, errors.New("secret not found")
}

func (m *mockVaultClient) GetStringSliceSecret(path, key string) ([]string, error) {
	secret, err := m.GetSecretV2(path)
	if err != nil {
		return nil, err
	}
	if value, ok := secret.Data[key].([]string); ok {
		return value, nil
	}
	return nil, nil
}

func (m *mockVaultClient) set(path string, version int64, keys []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[path] = &config.VaultSecret{Data: map[string]any{"keys": keys}, Version: version}
}

type keyReload struct {
	keys []string
	err  error
}

func newTestVaultWatcher(client *mockVaultClient) (*VaultWatcher, *[]keyReload) {
	var reloads []keyReload
	vw := NewVaultWatcher(client, "secret/data/api", time.Minute, func(keys []string, err error) {
		reloads = append(reloads, keyReload{keys: keys, err: err})
	}, nil)
	return vw, &reloads
}

func TestVaultWatcherCheckForUpdates(t *testing.T) {
	client := &mockVaultClient{secrets: map[string]*config.VaultSecret{}}
	client.set("secret/data/api", 2, []string{"a"})
	vw, _ := newTestVaultWatcher(client)

	changed, err := vw.checkForUpdates()
	require.NoError(t, err)
	assert.True(t, changed, "version 0 to 2 is a change")

	changed, err = vw.checkForUpdates()
	require.NoError(t, err)
	assert.False(t, changed, "same version is not a change")

	client.set("secret/data/api", 3, []string{"b"})
	changed, err = vw.checkForUpdates()
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestVaultWatcherPoll(t *testing.T) {
	tests := []struct {
		name        string
		keys        []string
		clientErr   error
		wantReloads int
		wantKeys    []string
		wantErr     bool
	}{
		{name: "rotated keys are delivered", keys: []string{"k1", "k2"}, wantReloads: 1, wantKeys: []string{"k1", "k2"}},
		{name: "empty key list is rejected", keys: []string{}, wantReloads: 1, wantErr: true},
		{name: "read error skips the callback", clientErr: errors.New("sealed"), wantReloads: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockVaultClient{secrets: map[string]*config.VaultSecret{}, err: tt.clientErr}
			client.set("secret/data/api", 5, tt.keys)
			vw, reloads := newTestVaultWatcher(client)

			vw.poll()

			require.Len(t, *reloads, tt.wantReloads)
			if tt.wantReloads == 0 {
				assert.Contains(t, vw.Status(), "last_error")
				return
			}
			got := (*reloads)[0]
			if tt.wantErr {
				assert.Error(t, got.err)
				assert.Nil(t, got.keys)
				return
			}
			require.NoError(t, got.err)
			assert.Equal(t, tt.wantKeys, got.keys)
			assert.Equal(t, 1, vw.Status()["reloads"])
		})
	}
}

func TestVaultWatcherStartRecordsInitialVersion(t *testing.T) {
	client := &mockVaultClient{secrets: map[string]*config.VaultSecret{}}
	client.set("secret/data/api", 7, []string{"k"})
	vw, reloads := newTestVaultWatcher(client)

	require.NoError(t, vw.Start())
	t.Cleanup(func() { _ = vw.Stop() })
	assert.Error(t, vw.Start(), "second start fails")

	vw.poll()
	assert.Empty(t, *reloads, "keys loaded at startup are not reloaded")
	assert.Equal(t, int64(7), vw.Status()["last_version"])
	assert.Equal(t, true, vw.Status()["running"])
}
