package session

import (
	"context"

	"github.com/Mattszczp/kirby-oauth/pkg/auth"
)

// Keys under which the logged-in account is kept.
const (
	UserKey      = "user"
	UserEmailKey = "user_email"
)

// Authenticator marks sessions as logged in by storing the account id.
type Authenticator struct{}

var _ auth.Authenticator = Authenticator{}

func (Authenticator) Authenticated(ctx context.Context, sess auth.Session) (bool, error) {
	id, ok, err := sess.Get(ctx, UserKey)
	if err != nil {
		return false, err
	}
	return ok && id != "", nil
}

func (Authenticator) LoginPasswordless(ctx context.Context, sess auth.Session, acct *auth.Account) error {
	if err := sess.Set(ctx, UserKey, acct.ID); err != nil {
		return err
	}
	return sess.Set(ctx, UserEmailKey, acct.Email)
}

// CurrentUser returns the id and email of the logged-in account.
func CurrentUser(ctx context.Context, sess auth.Session) (id, email string, ok bool) {
	id, ok, err := sess.Get(ctx, UserKey)
	if err != nil || !ok || id == "" {
		return "", "", false
	}
	email, _, _ = sess.Get(ctx, UserEmailKey)
	return id, email, true
}
