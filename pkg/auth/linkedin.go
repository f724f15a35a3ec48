package auth

import (
	"golang.org/x/oauth2/linkedin"
)

// ===== LinkedIn =====

// LinkedIn's "Sign In with LinkedIn using OpenID Connect" product exposes a
// standard userinfo endpoint, replacing the old /v2/me + /v2/emailAddress pair.
// See: https://learn.microsoft.com/en-us/linkedin/consumer/integrations/self-serve/sign-in-with-linkedin-v2
const linkedInUserinfoURL = "https://api.linkedin.com/v2/userinfo"

func linkedInPreset(_ PresetOptions) (Preset, error) {
	return Preset{Config: ProviderConfig{
		Key:                   "linkedin",
		DisplayName:           "LinkedIn",
		AuthorizationEndpoint: linkedin.Endpoint.AuthURL,
		TokenEndpoint:         linkedin.Endpoint.TokenURL,
		UserinfoEndpoint:      linkedInUserinfoURL,
		Scopes:                []string{"openid", "profile", "email"},
	}}, nil
}
