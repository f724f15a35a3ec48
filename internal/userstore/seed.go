package userstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Mattszczp/kirby-oauth/pkg/auth"
)

// Seed creates the given accounts when missing. Seeded accounts get an
// unusable random password; they log in through a provider.
func Seed(ctx context.Context, store auth.UserStore, accounts []auth.NewAccount) (created int, err error) {
	err = System.RunAsSystem(ctx, func(ctx context.Context) error {
		for _, in := range accounts {
			if in.Password == "" {
				b := make([]byte, 32)
				if _, err := rand.Read(b); err != nil {
					return err
				}
				in.Password = hex.EncodeToString(b)
			}
			if in.Role == "" {
				in.Role = auth.DefaultRole
			}
			_, err := store.Create(ctx, in)
			switch {
			case errors.Is(err, auth.ErrAccountExists):
			case err != nil:
				return fmt.Errorf("seed %s: %w", in.Email, err)
			default:
				created++
			}
		}
		return nil
	})
	return created, err
}
