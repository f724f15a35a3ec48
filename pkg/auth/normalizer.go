package auth

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// RawIdentity is the attribute payload returned by a provider, keyed by the
// provider's own attribute names.
type RawIdentity map[string]any

// Identity is the canonical view of a RawIdentity.
type Identity struct {
	Email         string // trimmed, lower-cased, never empty
	EmailVerified bool
	DisplayName   string // may be empty
	HostedDomain  string // informational only
	Subject       string
}

// AttributeMap lists, per canonical field, the provider keys to read from in
// order of preference.
type AttributeMap struct {
	Name          []string `yaml:"name"`
	Email         []string `yaml:"email"`
	EmailVerified []string `yaml:"email_verified"`
	HostedDomain  []string `yaml:"hd"`
	UPN           []string `yaml:"upn"`
	Subject       []string `yaml:"sub"`
}

// DefaultAttributeMap is used for every field a provider leaves unset.
var DefaultAttributeMap = AttributeMap{
	Name:          []string{"name"},
	Email:         []string{"email"},
	EmailVerified: []string{"email_verified"},
	HostedDomain:  []string{"hd"},
	UPN:           []string{"upn"},
	Subject:       []string{"sub"},
}

func (m AttributeMap) clone() AttributeMap {
	return AttributeMap{
		Name:          slices.Clone(m.Name),
		Email:         slices.Clone(m.Email),
		EmailVerified: slices.Clone(m.EmailVerified),
		HostedDomain:  slices.Clone(m.HostedDomain),
		UPN:           slices.Clone(m.UPN),
		Subject:       slices.Clone(m.Subject),
	}
}

// overlay returns m with every non-empty field of o replacing its counterpart.
func (m AttributeMap) overlay(o AttributeMap) AttributeMap {
	pick := func(base, over []string) []string {
		if len(over) > 0 {
			return slices.Clone(over)
		}
		return slices.Clone(base)
	}
	return AttributeMap{
		Name:          pick(m.Name, o.Name),
		Email:         pick(m.Email, o.Email),
		EmailVerified: pick(m.EmailVerified, o.EmailVerified),
		HostedDomain:  pick(m.HostedDomain, o.HostedDomain),
		UPN:           pick(m.UPN, o.UPN),
		Subject:       pick(m.Subject, o.Subject),
	}
}

// Rule adjusts an identity after the attribute table has been applied. Rules
// must be deterministic and must not retain raw.
type Rule func(raw RawIdentity, id *Identity)

// Normalizer turns raw provider payloads into Identities. The zero value is
// not usable; use NewNormalizer.
type Normalizer struct {
	common []Rule
	rules  map[string][]Rule
}

// NewNormalizer returns a normalizer with the built-in UPN rule installed.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		common: []Rule{upnRule},
		rules:  make(map[string][]Rule),
	}
}

// Register adds a rule for one provider key. Rules run in registration order
// after the common rules. Register is meant for start-up wiring only.
func (n *Normalizer) Register(providerKey string, rule Rule) {
	n.rules[providerKey] = append(n.rules[providerKey], rule)
}

// Normalize maps raw through cfg.Attributes and the registered rules. It fails
// with KindMissingEmail when no usable email is found.
func (n *Normalizer) Normalize(raw RawIdentity, cfg ProviderConfig) (Identity, error) {
	attrs := DefaultAttributeMap.overlay(cfg.Attributes)

	var id Identity
	id.DisplayName, _ = lookupString(raw, attrs.Name)
	id.Email, _ = lookupString(raw, attrs.Email)
	id.HostedDomain, _ = lookupString(raw, attrs.HostedDomain)
	id.Subject, _ = lookupString(raw, attrs.Subject)

	verified, present := lookupBool(raw, attrs.EmailVerified)
	switch {
	case present:
		id.EmailVerified = verified
	default:
		id.EmailVerified = cfg.AlwaysVerified
	}

	if upn, ok := lookupString(raw, attrs.UPN); ok {
		// Carried under the canonical key so upnRule sees it regardless of
		// the provider's source key.
		raw = withUPN(raw, upn)
	}

	for _, rule := range n.common {
		rule(raw, &id)
	}
	for _, rule := range n.rules[cfg.Key] {
		rule(raw, &id)
	}

	id.Email = strings.ToLower(strings.TrimSpace(id.Email))
	if id.Email == "" {
		return Identity{}, newError(KindMissingEmail, nil, "E-mail address missing!")
	}
	return id, nil
}

const canonicalUPN = "upn"

func withUPN(raw RawIdentity, upn string) RawIdentity {
	if v, ok := raw[canonicalUPN].(string); ok && v == upn {
		return raw
	}
	out := make(RawIdentity, len(raw)+1)
	for k, v := range raw {
		out[k] = v
	}
	out[canonicalUPN] = upn
	return out
}

// upnRule: organisational directories expose the user principal name instead
// of an email and only issue it for verified accounts.
func upnRule(raw RawIdentity, id *Identity) {
	upn, ok := raw[canonicalUPN].(string)
	if !ok || strings.TrimSpace(upn) == "" {
		return
	}
	id.Email = upn
	id.EmailVerified = true
}

// AlwaysVerifiedRule marks every identity of a provider as verified.
func AlwaysVerifiedRule(_ RawIdentity, id *Identity) {
	id.EmailVerified = true
}

// RemapRule copies the first present source attribute into the identity
// field chosen by set.
func RemapRule(set func(id *Identity, value string), keys ...string) Rule {
	return func(raw RawIdentity, id *Identity) {
		if v, ok := lookupString(raw, keys); ok {
			set(id, v)
		}
	}
}

func lookupString(raw RawIdentity, keys []string) (string, bool) {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v, true
			}
		case fmt.Stringer:
			if s := v.String(); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// lookupBool accepts booleans and their string forms; present is false when no
// key holds a recognisable value.
func lookupBool(raw RawIdentity, keys []string) (value, present bool) {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case bool:
			return v, true
		case string:
			if b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(v))); err == nil {
				return b, true
			}
		}
	}
	return false, false
}
