package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

type presetBuilder func(opts PresetOptions) (Preset, error)

// presetBuilders is the catalogue of known provider kinds.
var presetBuilders = map[string]presetBuilder{
	"google":          googlePreset,
	"github":          gitHubPreset,
	"microsoft":       microsoftPreset,
	"okta":            oktaPreset,
	"discord":         discordPreset,
	"facebook":        facebookPreset,
	"linkedin":        linkedInPreset,
	"quranfoundation": quranFoundationPreset,
	"generic":         genericPreset,
}

// PresetKinds lists the provider kinds BuildPreset understands.
func PresetKinds() []string {
	kinds := make([]string, 0, len(presetBuilders))
	for k := range presetBuilders {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// BuildPreset returns the preset of the given kind customised by opts. An
// empty kind is inferred from opts.Key, falling back to "generic".
func BuildPreset(kind string, opts PresetOptions) (Preset, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = "generic"
		if _, ok := presetBuilders[opts.Key]; ok {
			kind = opts.Key
		}
	}
	build, ok := presetBuilders[kind]
	if !ok {
		return Preset{}, fmt.Errorf("unknown provider kind %q", kind)
	}
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return Preset{}, fmt.Errorf("%s OAuth client ID and secret are required", kind)
	}

	p, err := build(opts)
	if err != nil {
		return Preset{}, err
	}
	return opts.apply(p), nil
}

// genericPreset takes every endpoint from configuration.
func genericPreset(opts PresetOptions) (Preset, error) {
	if opts.Key == "" {
		return Preset{}, errors.New("generic provider requires a key")
	}
	if opts.AuthorizationEndpoint == "" || opts.TokenEndpoint == "" || opts.UserinfoEndpoint == "" {
		return Preset{}, fmt.Errorf("generic provider %q requires authorization, token and userinfo endpoints", opts.Key)
	}
	return Preset{Config: ProviderConfig{
		Key:    opts.Key,
		Scopes: []string{"openid", "email", "profile"},
	}}, nil
}
