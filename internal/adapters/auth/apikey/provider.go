// Package apikey provides API key-based authentication.
package apikey

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"

	"github.com/tjfontaine/polyglot-request-logic/internal/auth"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
	"github.com/tjfontaine/polyglot-request-logic/internal/pkg/config"
)

// Provider implements ports.Authenticator using hashed API keys.
type Provider struct {
	mu         sync.RWMutex
	keyHashMap map[string]string // keyHash -> key name
}

// NewProvider creates a provider accepting keys.
func NewProvider(keys []config.APIKeyConfig) (*Provider, error) {
	p := &Provider{}
	if err := p.Reload(keys); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload replaces the accepted keys. On error the previous keys are kept.
func (p *Provider) Reload(keys []config.APIKeyConfig) error {
	m := make(map[string]string, len(keys))
	for i, k := range keys {
		hash := strings.ToLower(strings.TrimSpace(k.KeyHash))
		if len(hash) != 64 {
			return fmt.Errorf("api key %d: key_hash must be a hex SHA-256 digest", i)
		}
		name := k.Name
		if name == "" {
			name = fmt.Sprintf("key-%d", i)
		}
		m[hash] = name
	}

	p.mu.Lock()
	p.keyHashMap = m
	p.mu.Unlock()
	return nil
}

// Enabled reports whether any key is configured.
func (p *Provider) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.keyHashMap) > 0
}

// Authenticate validates an API key and returns the caller it belongs to.
func (p *Provider) Authenticate(ctx context.Context, token string) (*ports.Caller, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keyHash := auth.HashAPIKey(token)
	name, ok := p.keyHashMap[keyHash]
	if !ok {
		return nil, auth.ErrInvalidAPIKey
	}

	// Constant-time comparison to prevent timing attacks
	for hash := range p.keyHashMap {
		if subtle.ConstantTimeCompare([]byte(keyHash), []byte(hash)) == 1 {
			return &ports.Caller{Name: name}, nil
		}
	}
	return nil, auth.ErrInvalidAPIKey
}

var _ ports.Authenticator = (*Provider)(nil)
