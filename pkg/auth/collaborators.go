package auth

import (
	"context"
	"errors"
)

// Session is the host's per-browser key/value storage.
type Session interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	// Take returns the value stored under key and deletes it atomically, so
	// that two concurrent callers never both observe it.
	Take(ctx context.Context, key string) (value string, ok bool, err error)
}

// Account is an application user as seen by the bridge.
type Account struct {
	ID    string
	Email string
	Name  string
	Role  string
}

// NewAccount is a creation request passed to UserStore.Create.
type NewAccount struct {
	Name     string
	Email    string
	Password string
	Role     string
}

var (
	// ErrAccountNotFound is returned by UserStore.FindByEmail for unknown emails.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned by UserStore.Create when the email is taken.
	ErrAccountExists = errors.New("account already exists")
)

// UserStore is the host's account storage. Emails are passed lower-cased.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	// Create is only invoked inside SystemRunner.RunAsSystem.
	Create(ctx context.Context, acct NewAccount) (*Account, error)
}

// Authenticator manages the authenticated state of a host session.
type Authenticator interface {
	Authenticated(ctx context.Context, sess Session) (bool, error)
	// LoginPasswordless marks sess as logged in as acct without checking any
	// credential.
	LoginPasswordless(ctx context.Context, sess Session, acct *Account) error
}

// SystemRunner runs fn with elevated privileges.
type SystemRunner interface {
	RunAsSystem(ctx context.Context, fn func(ctx context.Context) error) error
}

// SystemFunc adapts a function to SystemRunner.
type SystemFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func (f SystemFunc) RunAsSystem(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}
