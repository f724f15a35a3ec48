package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2/github"
)

// ===== GitHub =====

// GitHubUserEmail represents an email address associated with a GitHub user,
// returned by the `/user/emails` endpoint.
// See: https://docs.github.com/en/rest/users/emails#list-email-addresses-for-the-authenticated-user
type GitHubUserEmail struct {
	Email      string `json:"email"`
	Primary    bool   `json:"primary"`
	Verified   bool   `json:"verified"`
	Visibility string `json:"visibility"`
}

func gitHubPreset(opts PresetOptions) (Preset, error) {
	userinfo := "https://api.github.com/user"
	if opts.UserinfoEndpoint != "" {
		// GitHub Enterprise: emails live next to the user endpoint.
		userinfo = opts.UserinfoEndpoint
	}
	return Preset{
		Config: ProviderConfig{
			Key:                   "github",
			DisplayName:           "GitHub",
			AuthorizationEndpoint: github.Endpoint.AuthURL,
			TokenEndpoint:         github.Endpoint.TokenURL,
			UserinfoEndpoint:      userinfo,
			Scopes:                []string{"read:user", "user:email"},
			Attributes: AttributeMap{
				Name:    []string{"name", "login"},
				Subject: []string{"id"},
			},
		},
		Enricher: gitHubEmailEnricher(strings.TrimRight(userinfo, "/") + "/emails"),
	}, nil
}

// gitHubEmailEnricher fills in the address and its verification flag from
// /user/emails, since /user never reports verification and hides private
// addresses.
func gitHubEmailEnricher(emailsURL string) Enricher {
	return func(ctx context.Context, client *http.Client, raw RawIdentity) error {
		var emails []GitHubUserEmail
		if err := getJSON(ctx, client, emailsURL, &emails); err != nil {
			return fmt.Errorf("fetch github emails: %w", err)
		}

		public, _ := raw["email"].(string)
		if public != "" {
			for _, e := range emails {
				if strings.EqualFold(e.Email, public) {
					raw["email_verified"] = e.Verified
					return nil
				}
			}
		}

		if chosen, ok := selectPrimaryGitHubEmail(emails); ok {
			raw["email"] = chosen.Email
			raw["email_verified"] = chosen.Verified
		}
		return nil
	}
}

// selectPrimaryGitHubEmail prefers the primary verified address, then the
// first verified one, then the first address overall.
func selectPrimaryGitHubEmail(emails []GitHubUserEmail) (GitHubUserEmail, bool) {
	var firstVerified, first *GitHubUserEmail
	for i := range emails {
		e := &emails[i]
		if e.Primary && e.Verified {
			return *e, true
		}
		if e.Verified && firstVerified == nil {
			firstVerified = e
		}
		if first == nil {
			first = e
		}
	}
	switch {
	case firstVerified != nil:
		return *firstVerified, true
	case first != nil:
		return *first, true
	}
	return GitHubUserEmail{}, false
}
