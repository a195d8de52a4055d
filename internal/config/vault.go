package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"resumerecon/internal/errors"

	"github.com/hashicorp/vault/api"
)

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"tokenFile"`
	Namespace string `mapstructure:"namespace"`

	Secrets VaultSecrets `mapstructure:"secrets"`
}

// VaultSecrets holds the KVv2 paths secrets are read from. An empty path
// leaves the corresponding setting untouched.
type VaultSecrets struct {
	APIKeys      string `mapstructure:"apiKeys"`      // "keys": comma separated server API keys
	GeminiKey    string `mapstructure:"geminiKey"`    // "api_key": Gemini API key
	BackendToken string `mapstructure:"backendToken"` // "token": backend bearer token
}

// VaultSecret is one version of a KVv2 secret
type VaultSecret struct {
	Data    map[string]any
	Version int64
}

// VaultClient reads KVv2 secrets
type VaultClient struct {
	client *api.Client
	logger *errors.Logger
}

// NewVaultClient connects to Vault. It returns a nil client and no error
// when Vault is disabled.
func NewVaultClient(cfg VaultConfig, logger *errors.Logger) (*VaultClient, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	apiCfg := api.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	token, err := resolveVaultToken(cfg, logger)
	if err != nil {
		return nil, err
	}
	client.SetToken(token)

	health, err := client.Sys().Health()
	if err != nil {
		if logger != nil {
			logger.LogError(err, "Failed to connect to Vault", "address", apiCfg.Address)
		}
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}
	if logger != nil {
		logger.Info("Connected to Vault",
			"address", apiCfg.Address,
			"namespace", cfg.Namespace,
			"version", health.Version,
			"sealed", health.Sealed)
	}

	return &VaultClient{client: client, logger: logger}, nil
}

// resolveVaultToken prefers the configured token over the token file
func resolveVaultToken(cfg VaultConfig, logger *errors.Logger) (string, error) {
	token := cfg.Token
	if token == "" && cfg.TokenFile != "" {
		data, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			if logger != nil {
				logger.LogError(err, "Failed to read Vault token file", "file", cfg.TokenFile)
			}
			return "", fmt.Errorf("failed to read vault token file: %w", err)
		}
		token = strings.TrimSpace(string(data))
	}
	if token == "" {
		return "", fmt.Errorf("vault token is required when vault is enabled")
	}
	return token, nil
}

// GetSecretV2 reads the latest version of a KVv2 secret. path is the
// full API path including the data/ segment.
func (vc *VaultClient) GetSecretV2(path string) (*VaultSecret, error) {
	if vc == nil {
		return nil, fmt.Errorf("vault client not initialized")
	}

	secret, err := vc.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret not found at path: %s", path)
	}
	return decodeKV2(secret.Data, path)
}

// decodeKV2 splits a KVv2 read response into its data and version
func decodeKV2(raw map[string]any, path string) (*VaultSecret, error) {
	data, ok := raw["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'data' field)", path)
	}
	metadata, ok := raw["metadata"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'metadata' field)", path)
	}
	versionRaw, ok := metadata["version"]
	if !ok {
		return nil, fmt.Errorf("secret metadata at %s is missing 'version' field", path)
	}
	version, err := parseVersionValue(versionRaw, path)
	if err != nil {
		return nil, err
	}
	return &VaultSecret{Data: data, Version: version}, nil
}

// parseVersionValue accepts the number shapes Vault responses decode to
func parseVersionValue(versionRaw any, path string) (int64, error) {
	var s string
	switch v := versionRaw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case json.Number:
		s = v.String()
	case string:
		s = v
	default:
		return 0, fmt.Errorf("unexpected type for version at %s: %T", path, versionRaw)
	}
	version, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse secret version at %s: %w", path, err)
	}
	return version, nil
}

// GetStringSecret reads one string field of a secret
func (vc *VaultClient) GetStringSecret(path, key string) (string, error) {
	secret, err := vc.GetSecretV2(path)
	if err != nil {
		return "", err
	}
	return stringField(secret, path, key)
}

func stringField(secret *VaultSecret, path, key string) (string, error) {
	value, ok := secret.Data[key]
	if !ok {
		return "", fmt.Errorf("key '%s' not found in secret %s", key, path)
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("value for key '%s' is not a string in secret %s", key, path)
	}
	return s, nil
}

// GetStringSliceSecret reads a comma separated field as a list, dropping
// empty entries
func (vc *VaultClient) GetStringSliceSecret(path, key string) ([]string, error) {
	value, err := vc.GetStringSecret(path, key)
	if err != nil {
		return nil, err
	}
	return splitList(value), nil
}

func splitList(value string) []string {
	out := []string{}
	for part := range strings.SplitSeq(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// vaultBinding maps one Vault secret field onto the config
type vaultBinding struct {
	name  string
	path  string
	key   string
	apply func(cfg *Config, value string)
}

func vaultBindings(cfg *Config) []vaultBinding {
	secrets := cfg.Vault.Secrets
	return []vaultBinding{
		{name: "api_keys", path: secrets.APIKeys, key: "keys", apply: func(cfg *Config, v string) {
			cfg.Server.APIKeys = splitList(v)
		}},
		{name: "gemini_key", path: secrets.GeminiKey, key: "api_key", apply: applyGeminiKeyToConfig},
		{name: "backend_token", path: secrets.BackendToken, key: "token", apply: func(cfg *Config, v string) {
			cfg.Backend.Token = v
		}},
	}
}

// applyGeminiKeyToConfig sets the global key and fills the suggest key
// unless it was configured explicitly
func applyGeminiKeyToConfig(cfg *Config, geminiKey string) {
	cfg.AI.APIKey = geminiKey
	if cfg.AI.Suggest.APIKey == "" {
		cfg.AI.Suggest.APIKey = geminiKey
	}
}

// ApplyVaultSecrets loads every configured secret from Vault into cfg.
// Empty secret values keep the existing setting.
func ApplyVaultSecrets(cfg *Config, logger *errors.Logger) error {
	if !cfg.Vault.Enabled {
		return nil
	}

	client, err := NewVaultClient(cfg.Vault, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vault client: %w", err)
	}
	return applyBindings(client, cfg, vaultBindings(cfg), logger)
}

type stringSecretReader interface {
	GetStringSecret(path, key string) (string, error)
}

func applyBindings(client stringSecretReader, cfg *Config, bindings []vaultBinding, logger *errors.Logger) error {
	loaded := 0
	for _, b := range bindings {
		if b.path == "" {
			continue
		}
		value, err := client.GetStringSecret(b.path, b.key)
		if err != nil {
			return fmt.Errorf("failed to load %s from vault: %w", b.name, err)
		}
		if strings.TrimSpace(value) == "" {
			if logger != nil {
				logger.Warn("Empty secret in Vault, keeping configured value", "secret", b.name, "path", b.path)
			}
			continue
		}
		b.apply(cfg, value)
		loaded++
		if logger != nil {
			logger.Debug("Secret loaded from Vault", "secret", b.name, "path", b.path)
		}
	}

	if logger != nil {
		logger.Info("Applied secrets from Vault", "loaded", loaded)
	}
	return nil
}
