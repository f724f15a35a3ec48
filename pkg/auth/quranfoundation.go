package auth

// ===== Quran.Foundation =====

func quranFoundationPreset(_ PresetOptions) (Preset, error) {
	return Preset{Config: ProviderConfig{
		Key:                   "quranfoundation",
		DisplayName:           "Quran.Foundation",
		AuthorizationEndpoint: "https://auth.quran.foundation/authorize",
		TokenEndpoint:         "https://auth.quran.foundation/oauth/token",
		UserinfoEndpoint:      "https://auth.quran.foundation/userinfo",
		Scopes:                []string{"openid", "profile", "email"},
	}}, nil
}
