// Package secrets resolves the ingestion access token when it is not given
// directly in options.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// KeyAccessToken is the secret holding the ingestion access token.
const KeyAccessToken = "access_token"

// Provider is the interface for secret backends.
type Provider interface {
	// Get retrieves a secret by key.
	Get(ctx context.Context, key string) (string, error)
	// Name returns the provider name.
	Name() string
}

// Config configures the secrets manager.
type Config struct {
	// Provider is "env" or "file". Empty selects "file" when File is set.
	Provider string `mapstructure:"provider"`
	// File is the token file read by the file provider.
	File string `mapstructure:"file"`
	// EnvPrefix is prepended to upper-cased keys by the env provider.
	EnvPrefix string `mapstructure:"env_prefix"`
}

// DefaultConfig reads ROLLBAR_ACCESS_TOKEN from the environment.
func DefaultConfig() Config {
	return Config{
		EnvPrefix: "ROLLBAR_",
	}
}

// Manager tries a primary provider, then the environment.
type Manager struct {
	primary  Provider
	fallback Provider
	cache    map[string]string
	cacheMu  sync.RWMutex
}

// NewManager creates a manager for cfg. Files are read through readFile so
// tests can substitute an in-memory filesystem.
func NewManager(cfg Config, readFile func(string) ([]byte, error)) (*Manager, error) {
	env := NewEnvProvider(cfg.EnvPrefix)
	if readFile == nil {
		readFile = os.ReadFile
	}

	provider := cfg.Provider
	if provider == "" && cfg.File != "" {
		provider = "file"
	}

	var primary Provider
	switch provider {
	case "file":
		if cfg.File == "" {
			return nil, fmt.Errorf("secrets file required for file provider")
		}
		primary = NewFileProvider(cfg.File, readFile)
	case "env", "":
		primary = env
		env = nil
	default:
		return nil, fmt.Errorf("unknown secrets provider: %s", provider)
	}

	return &Manager{
		primary:  primary,
		fallback: env,
		cache:    make(map[string]string),
	}, nil
}

// Get retrieves a secret, trying primary then fallback.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.cacheMu.RLock()
	if val, ok := m.cache[key]; ok {
		m.cacheMu.RUnlock()
		return val, nil
	}
	m.cacheMu.RUnlock()

	val, err := m.primary.Get(ctx, key)
	if err == nil && val != "" {
		m.cacheSet(key, val)
		return val, nil
	}

	if m.fallback != nil {
		if fval, ferr := m.fallback.Get(ctx, key); ferr == nil && fval != "" {
			m.cacheSet(key, fval)
			return fval, nil
		}
	}

	if err != nil {
		return "", fmt.Errorf("secret %s not found via %s: %w", key, m.primary.Name(), err)
	}
	return "", fmt.Errorf("secret not found: %s", key)
}

func (m *Manager) cacheSet(key, value string) {
	m.cacheMu.Lock()
	m.cache[key] = value
	m.cacheMu.Unlock()
}

// ResolveAccessToken returns token unchanged when set, otherwise the value
// held by the manager. A missing secret yields an empty token so that option
// validation reports it.
func (m *Manager) ResolveAccessToken(ctx context.Context, token string) string {
	if token != "" {
		return token
	}
	val, err := m.Get(ctx, KeyAccessToken)
	if err != nil {
		return ""
	}
	return val
}

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment-based secrets provider.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = DefaultConfig().EnvPrefix
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Get(ctx context.Context, key string) (string, error) {
	envKey := p.prefix + strings.ToUpper(key)
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("env var not found: %s", envKey)
}
