package auth

// ===== Discord =====

// Discord has no endpoint in golang.org/x/oauth2, so they are spelled out.
// See: https://discord.com/developers/docs/topics/oauth2
const (
	discordAuthURL  = "https://discord.com/api/oauth2/authorize"
	discordTokenURL = "https://discord.com/api/oauth2/token"
	discordMeURL    = "https://discord.com/api/users/@me"
)

// discordPreset maps the user object: "verified" is the email verification
// flag and "global_name" the display name when set.
// See: https://discord.com/developers/docs/resources/user#user-object
func discordPreset(_ PresetOptions) (Preset, error) {
	return Preset{Config: ProviderConfig{
		Key:                   "discord",
		DisplayName:           "Discord",
		AuthorizationEndpoint: discordAuthURL,
		TokenEndpoint:         discordTokenURL,
		UserinfoEndpoint:      discordMeURL,
		Scopes:                []string{"identify", "email"},
		Attributes: AttributeMap{
			Name:          []string{"global_name", "username"},
			EmailVerified: []string{"verified"},
			Subject:       []string{"id"},
		},
	}}, nil
}
