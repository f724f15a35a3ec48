package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
)

// Session keys used by the flow.
const (
	StateKey    = "oauth2state"
	ProviderKey = "oauth2provider"
	ErrorKey    = "oauthError"
)

// stateBytes is the amount of randomness in a CSRF token (256 bits).
const stateBytes = 32

// FlowStateStore keeps the CSRF token, the pending provider and the error
// flash of one browser session across the provider round trip.
type FlowStateStore struct {
	random io.Reader
}

// NewFlowStateStore returns a store drawing tokens from random, or from
// crypto/rand when random is nil.
func NewFlowStateStore(random io.Reader) *FlowStateStore {
	if random == nil {
		random = rand.Reader
	}
	return &FlowStateStore{random: random}
}

// Begin generates a fresh token and records it with the pending provider key.
func (s *FlowStateStore) Begin(ctx context.Context, sess Session, providerKey string) (string, error) {
	b := make([]byte, stateBytes)
	if _, err := io.ReadFull(s.random, b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	if err := sess.Set(ctx, StateKey, token); err != nil {
		return "", fmt.Errorf("store state: %w", err)
	}
	if err := sess.Set(ctx, ProviderKey, providerKey); err != nil {
		return "", fmt.Errorf("store pending provider: %w", err)
	}
	return token, nil
}

// Consume checks got against the stored token and provider key. The stored
// values are deleted whatever the outcome, so a token validates at most once.
func (s *FlowStateStore) Consume(ctx context.Context, sess Session, providerKey, got string) (bool, error) {
	want, ok, err := sess.Take(ctx, StateKey)
	if err != nil {
		return false, fmt.Errorf("load state: %w", err)
	}
	pending, hasPending, err := sess.Take(ctx, ProviderKey)
	if err != nil {
		return false, fmt.Errorf("load pending provider: %w", err)
	}

	if !ok || want == "" || got == "" {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return false, nil
	}
	if hasPending && pending != providerKey {
		return false, nil
	}
	return true, nil
}

// Discard drops any in-flight token and pending provider.
func (s *FlowStateStore) Discard(ctx context.Context, sess Session) error {
	if err := sess.Remove(ctx, StateKey); err != nil {
		return err
	}
	return sess.Remove(ctx, ProviderKey)
}

// Flash stores a message to be shown once on the login page.
func (s *FlowStateStore) Flash(ctx context.Context, sess Session, message string) error {
	return sess.Set(ctx, ErrorKey, message)
}

// TakeFlash returns and clears the pending error message.
func (s *FlowStateStore) TakeFlash(ctx context.Context, sess Session) (string, error) {
	msg, _, err := sess.Take(ctx, ErrorKey)
	return msg, err
}
