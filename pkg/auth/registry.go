package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Registry holds the configured providers in configuration order. It is
// read-only after NewRegistry returns and safe for concurrent use.
type Registry struct {
	order []string
	byKey map[string]ProviderConfig
}

// NewRegistry validates and stores the given provider configurations.
func NewRegistry(configs ...ProviderConfig) (*Registry, error) {
	r := &Registry{byKey: make(map[string]ProviderConfig, len(configs))}
	for _, cfg := range configs {
		if err := validateProviderConfig(cfg); err != nil {
			return nil, err
		}
		if _, dup := r.byKey[cfg.Key]; dup {
			return nil, fmt.Errorf("provider %q configured twice", cfg.Key)
		}
		r.byKey[cfg.Key] = cfg.clone()
		r.order = append(r.order, cfg.Key)
	}
	return r, nil
}

// reservedKeys name the sub-routes of the login path.
var reservedKeys = map[string]bool{"providers": true, "settings": true}

func validateProviderConfig(cfg ProviderConfig) error {
	if strings.TrimSpace(cfg.Key) == "" {
		return errors.New("provider key is required")
	}
	if strings.ContainsAny(cfg.Key, "/?#") {
		return fmt.Errorf("provider %q: key must be a single path segment", cfg.Key)
	}
	if reservedKeys[cfg.Key] {
		return fmt.Errorf("provider %q: key is reserved", cfg.Key)
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("provider %q: client id is required", cfg.Key)
	}
	if cfg.AuthorizationEndpoint == "" || cfg.TokenEndpoint == "" || cfg.UserinfoEndpoint == "" {
		return fmt.Errorf("provider %q: authorization, token and userinfo endpoints are required", cfg.Key)
	}
	return nil
}

// Get returns the provider registered under key.
func (r *Registry) Get(key string) (ProviderConfig, bool) {
	cfg, ok := r.byKey[key]
	if !ok {
		return ProviderConfig{}, false
	}
	return cfg.clone(), true
}

// List returns all providers in the order they were configured.
func (r *Registry) List() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byKey[key].clone())
	}
	return out
}

// Len returns the number of configured providers.
func (r *Registry) Len() int { return len(r.order) }
