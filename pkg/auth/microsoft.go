package auth

import (
	"github.com/julien040/go-ternary"
	"golang.org/x/oauth2/microsoft"
)

// ===== Microsoft (Azure AD / Entra ID) =====

const microsoftGraphMe = "https://graph.microsoft.com/v1.0/me"

// microsoftPreset talks to the Microsoft identity platform. Graph /me reports
// the user principal name; for work accounts the id_token also carries "upn".
// Either way the UPN rule turns it into a verified email.
func microsoftPreset(opts PresetOptions) (Preset, error) {
	tenant := ternary.If(opts.Tenant != "", opts.Tenant, "common")
	endpoint := microsoft.AzureADEndpoint(tenant)
	return Preset{Config: ProviderConfig{
		Key:                   "microsoft",
		DisplayName:           "Microsoft",
		AuthorizationEndpoint: endpoint.AuthURL,
		TokenEndpoint:         endpoint.TokenURL,
		UserinfoEndpoint:      microsoftGraphMe,
		Scopes:                []string{"openid", "profile", "email", "User.Read"},
		Attributes: AttributeMap{
			Name:    []string{"displayName", "name"},
			Email:   []string{"mail", "email"},
			UPN:     []string{"upn", "userPrincipalName"},
			Subject: []string{"oid", "id", "sub"},
		},
	}}, nil
}
