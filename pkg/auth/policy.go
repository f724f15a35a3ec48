package auth

import "strings"

// PolicyConfig gates who may log in and who may get a new account.
type PolicyConfig struct {
	OnlyExistingUsers bool
	AllowEveryone     bool
	EmailWhitelist    []string
	DomainWhitelist   []string
}

// AccessPolicy is a pure decision over a normalized identity.
type AccessPolicy struct {
	onlyExisting  bool
	allowEveryone bool
	emails        map[string]struct{}
	domains       map[string]struct{}
}

// NewAccessPolicy builds a policy; whitelist entries compare case-insensitively.
func NewAccessPolicy(cfg PolicyConfig) *AccessPolicy {
	return &AccessPolicy{
		onlyExisting:  cfg.OnlyExistingUsers,
		allowEveryone: cfg.AllowEveryone,
		emails:        lowerSet(cfg.EmailWhitelist),
		domains:       lowerSet(cfg.DomainWhitelist),
	}
}

func lowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			set[item] = struct{}{}
		}
	}
	return set
}

// Evaluate returns nil when id may log in. accountExists reports whether the
// user store already knows id.Email.
func (p *AccessPolicy) Evaluate(id Identity, accountExists bool) error {
	if !id.EmailVerified {
		return newError(KindEmailNotVerified, nil, "E-mail address not verified!")
	}
	if accountExists {
		return nil
	}
	if p.onlyExisting {
		return newError(KindUnknownUser, nil, "User missing and creating users is disabled!")
	}
	if p.mayCreate(id.Email) {
		return nil
	}
	return newError(KindAccessDenied, nil, "Access denied for %s.", id.Email)
}

// mayCreate checks the whitelists. Email and domain lists are OR-combined.
func (p *AccessPolicy) mayCreate(email string) bool {
	if p.allowEveryone {
		return true
	}
	email = strings.ToLower(email)
	if _, ok := p.emails[email]; ok {
		return true
	}
	if _, ok := p.domains[emailDomain(email)]; ok {
		return true
	}
	return false
}

// emailDomain returns everything after the first "@", or "" without one.
func emailDomain(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[i+1:]
	}
	return ""
}
