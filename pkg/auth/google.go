package auth

import (
	"golang.org/x/oauth2/google"
)

// ===== Google =====

// googleUserinfoURL is the v2 userinfo endpoint; it reports verification as
// "verified_email" while the OIDC endpoint uses "email_verified".
const googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

func googlePreset(_ PresetOptions) (Preset, error) {
	return Preset{Config: ProviderConfig{
		Key:                   "google",
		DisplayName:           "Google",
		AuthorizationEndpoint: google.Endpoint.AuthURL,
		TokenEndpoint:         google.Endpoint.TokenURL,
		UserinfoEndpoint:      googleUserinfoURL,
		Scopes:                []string{"openid", "email", "profile"},
		Attributes: AttributeMap{
			EmailVerified: []string{"email_verified", "verified_email"},
			Subject:       []string{"sub", "id"},
		},
	}}, nil
}
