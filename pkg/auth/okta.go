package auth

import (
	"errors"
	"fmt"
	"strings"
)

// ===== Okta =====

// oktaPreset derives the org authorization server endpoints from the Okta
// domain, e.g. "dev-123.okta.com".
func oktaPreset(opts PresetOptions) (Preset, error) {
	domain := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(opts.Domain), "https://"), "/")
	if domain == "" {
		return Preset{}, errors.New("okta OAuth domain is required")
	}
	base := fmt.Sprintf("https://%s/oauth2/v1", domain)
	return Preset{Config: ProviderConfig{
		Key:                   "okta",
		DisplayName:           "Okta",
		AuthorizationEndpoint: base + "/authorize",
		TokenEndpoint:         base + "/token",
		UserinfoEndpoint:      base + "/userinfo",
		Scopes:                []string{"openid", "profile", "email"},
		Attributes: AttributeMap{
			Name: []string{"name", "preferred_username"},
		},
	}}, nil
}
