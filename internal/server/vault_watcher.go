package server

import (
	"fmt"
	"sync"
	"time"

	"resumerecon/internal/config"
	"resumerecon/internal/errors"
)

// VaultClientInterface defines the interface for Vault operations
type VaultClientInterface interface {
	GetSecretV2(path string) (*config.VaultSecret, error)
	GetStringSliceSecret(path, key string) ([]string, error)
}

// APIKeysReloadCallback receives the rotated API keys, or the error that
// prevented reading them
type APIKeysReloadCallback func(keys []string, err error)

// VaultWatcher polls the API key secret in Vault and hands the new key list
// to its callback whenever the secret's KV v2 version increases
type VaultWatcher struct {
	mu sync.RWMutex

	client         VaultClientInterface
	secretPath     string
	pollInterval   time.Duration
	reloadCallback APIKeysReloadCallback
	logger         *errors.Logger

	stopChan    chan struct{}
	running     bool
	lastVersion int64
	lastCheck   time.Time
	lastError   string
	reloads     int
}

// NewVaultWatcher creates a new VaultWatcher
func NewVaultWatcher(client VaultClientInterface, secretPath string, pollInterval time.Duration, reloadCallback APIKeysReloadCallback, logger *errors.Logger) *VaultWatcher {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &VaultWatcher{
		client:         client,
		secretPath:     secretPath,
		pollInterval:   pollInterval,
		reloadCallback: reloadCallback,
		logger:         logger,
		stopChan:       make(chan struct{}),
	}
}

// Start records the current secret version and begins polling. Keys loaded
// at startup are not reloaded until the version moves.
func (vw *VaultWatcher) Start() error {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	if vw.running {
		return fmt.Errorf("vault watcher is already running")
	}

	if secret, err := vw.client.GetSecretV2(vw.secretPath); err == nil {
		vw.lastVersion = secret.Version
	} else if vw.logger != nil {
		vw.logger.Warn("Could not read initial API key secret version", "secret_path", vw.secretPath, "error", err)
	}

	vw.running = true
	go vw.pollLoop()
	if vw.logger != nil {
		vw.logger.Info("Vault API key watcher started", "secret_path", vw.secretPath, "poll_interval", vw.pollInterval)
	}
	return nil
}

// Stop stops the Vault watcher
func (vw *VaultWatcher) Stop() error {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	if !vw.running {
		return nil
	}
	close(vw.stopChan)
	vw.running = false
	if vw.logger != nil {
		vw.logger.Info("Vault API key watcher stopped")
	}
	return nil
}

func (vw *VaultWatcher) pollLoop() {
	ticker := time.NewTicker(vw.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			vw.poll()
		case <-vw.stopChan:
			return
		}
	}
}

// poll runs one check and, when the version moved, one reload
func (vw *VaultWatcher) poll() {
	changed, err := vw.checkForUpdates()
	if err != nil {
		vw.recordError(err)
		if vw.logger != nil {
			vw.logger.LogError(err, "Failed to check Vault for API key updates")
		}
		return
	}
	if !changed {
		return
	}

	keys, err := vw.client.GetStringSliceSecret(vw.secretPath, "keys")
	if err != nil {
		err = fmt.Errorf("failed to fetch rotated API keys: %w", err)
		vw.recordError(err)
		vw.reloadCallback(nil, err)
		return
	}
	if len(keys) == 0 {
		// An empty list would silently disable authentication
		err = fmt.Errorf("rotated API key secret %s holds no keys", vw.secretPath)
		vw.recordError(err)
		vw.reloadCallback(nil, err)
		return
	}

	vw.mu.Lock()
	vw.reloads++
	vw.lastError = ""
	vw.mu.Unlock()
	if vw.logger != nil {
		vw.logger.Info("API keys rotated in Vault", "keys", len(keys))
	}
	vw.reloadCallback(keys, nil)
}

// checkForUpdates checks if the Vault secret version has changed
func (vw *VaultWatcher) checkForUpdates() (bool, error) {
	secret, err := vw.client.GetSecretV2(vw.secretPath)
	if err != nil {
		return false, fmt.Errorf("failed to read secret: %w", err)
	}

	vw.mu.Lock()
	defer vw.mu.Unlock()
	vw.lastCheck = time.Now()
	if secret.Version > vw.lastVersion {
		vw.lastVersion = secret.Version
		return true, nil
	}
	return false, nil
}

func (vw *VaultWatcher) recordError(err error) {
	vw.mu.Lock()
	vw.lastError = err.Error()
	vw.mu.Unlock()
}

// Status returns the current status of the VaultWatcher for health reporting
func (vw *VaultWatcher) Status() map[string]any {
	vw.mu.RLock()
	defer vw.mu.RUnlock()
	status := map[string]any{
		"running":       vw.running,
		"poll_interval": vw.pollInterval.String(),
		"secret_path":   vw.secretPath,
		"last_version":  vw.lastVersion,
		"reloads":       vw.reloads,
	}
	if !vw.lastCheck.IsZero() {
		status["last_check"] = vw.lastCheck
	}
	if vw.lastError != "" {
		status["last_error"] = vw.lastError
	}
	return status
}
