// Package userstore provides the account storage behind the login bridge:
// an in-memory store for development and a PostgreSQL store.
package userstore

import (
	"context"
	"errors"

	"github.com/Mattszczp/kirby-oauth/pkg/auth"
)

// ErrSystemContextRequired is returned by Create outside RunAsSystem.
var ErrSystemContextRequired = errors.New("account creation requires a system context")

type systemKey struct{}

// System elevates a context so that the stores accept account creation.
var System auth.SystemRunner = auth.SystemFunc(func(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(context.WithValue(ctx, systemKey{}, true))
})

// IsSystem reports whether ctx was elevated by System.
func IsSystem(ctx context.Context) bool {
	ok, _ := ctx.Value(systemKey{}).(bool)
	return ok
}
