package auth

import (
	"context"
	"net/http"
	"slices"
)

// ProviderConfig describes one configured OAuth2 identity provider.
// Values are immutable once handed to a Registry.
type ProviderConfig struct {
	Key                   string   // URL-safe lookup key, e.g. "google"
	DisplayName           string   // Label shown on the provider chooser
	ClientID              string   // OAuth2 client id
	ClientSecret          string   // OAuth2 client secret
	AuthorizationEndpoint string   // Where the browser is sent to consent
	TokenEndpoint         string   // Where the code is exchanged
	UserinfoEndpoint      string   // Where the identity payload is fetched
	Scopes                []string // Requested scopes

	// Attributes maps canonical identity fields to provider source keys.
	// Empty fields fall back to DefaultAttributeMap.
	Attributes AttributeMap

	// AlwaysVerified marks providers that only ever release verified email
	// addresses, so a missing verification flag counts as verified.
	AlwaysVerified bool
}

func (c ProviderConfig) clone() ProviderConfig {
	c.Scopes = slices.Clone(c.Scopes)
	c.Attributes = c.Attributes.clone()
	return c
}

// Label returns the display name, falling back to the key.
func (c ProviderConfig) Label() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Key
}

// Enricher adds provider-specific attributes to a raw identity after the
// userinfo call. client is already authorized with the access token.
type Enricher func(ctx context.Context, client *http.Client, raw RawIdentity) error

// Preset bundles everything a well-known provider needs beyond credentials:
// endpoints, scopes, attribute mapping, normalizer rules and an optional
// enricher.
type Preset struct {
	Config   ProviderConfig
	Rules    []Rule
	Enricher Enricher
}

// PresetOptions carries the per-deployment values a preset is built from.
type PresetOptions struct {
	Key          string
	DisplayName  string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// Tenant selects the Azure AD tenant for the microsoft preset.
	Tenant string
	// Domain is the Okta org domain for the okta preset.
	Domain string

	// Explicit endpoints override the preset's defaults; the generic preset
	// requires them.
	AuthorizationEndpoint string
	TokenEndpoint         string
	UserinfoEndpoint      string

	Attributes AttributeMap

	// AlwaysVerified forces ProviderConfig.AlwaysVerified on.
	AlwaysVerified bool
}

// apply overlays deployment options on top of a preset default.
func (o PresetOptions) apply(p Preset) Preset {
	if o.Key != "" {
		p.Config.Key = o.Key
	}
	if o.DisplayName != "" {
		p.Config.DisplayName = o.DisplayName
	}
	p.Config.ClientID = o.ClientID
	p.Config.ClientSecret = o.ClientSecret
	if len(o.Scopes) > 0 {
		p.Config.Scopes = slices.Clone(o.Scopes)
	}
	if o.AuthorizationEndpoint != "" {
		p.Config.AuthorizationEndpoint = o.AuthorizationEndpoint
	}
	if o.TokenEndpoint != "" {
		p.Config.TokenEndpoint = o.TokenEndpoint
	}
	if o.UserinfoEndpoint != "" {
		p.Config.UserinfoEndpoint = o.UserinfoEndpoint
	}
	p.Config.Attributes = p.Config.Attributes.overlay(o.Attributes)
	if o.AlwaysVerified {
		p.Config.AlwaysVerified = true
	}
	return p
}
