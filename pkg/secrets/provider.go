package secrets

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"
)

// ErrNotFound is returned when a provider has no value for a key
var ErrNotFound = errors.New("secret not found")

// Provider resolves secrets by key
type Provider interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// EnvProvider reads secrets from the process environment
type EnvProvider struct{}

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

func (p *EnvProvider) GetSecret(ctx context.Context, key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

// CachedProvider memoizes another provider's answers for ttl
type CachedProvider struct {
	provider Provider
	ttl      time.Duration

	mu    sync.Mutex
	cache map[string]cachedSecret
}

func NewCachedProvider(provider Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		provider: provider,
		ttl:      ttl,
		cache:    make(map[string]cachedSecret),
	}
}

func (p *CachedProvider) GetSecret(ctx context.Context, key string) (string, error) {
	p.mu.Lock()
	if cached, ok := p.cache[key]; ok && time.Now().Before(cached.expiresAt) {
		p.mu.Unlock()
		return cached.value, nil
	}
	p.mu.Unlock()

	value, err := p.provider.GetSecret(ctx, key)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.cache[key] = cachedSecret{value: value, expiresAt: time.Now().Add(p.ttl)}
	p.mu.Unlock()

	return value, nil
}

// Well-known keys
const (
	DatabaseURLKey = "DATABASE_URL"
	RedisURLKey    = "REDIS_URL"
)

// Manager overlays provider secrets on configured values
type Manager struct {
	provider Provider
}

func NewManager(provider Provider) *Manager {
	return &Manager{provider: provider}
}

// Resolve returns the secret stored under key, or fallback when the provider
// has none. Any other provider error is returned.
func (m *Manager) Resolve(ctx context.Context, key, fallback string) (string, error) {
	value, err := m.provider.GetSecret(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
