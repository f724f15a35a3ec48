package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// DefaultRole is assigned to created accounts unless configured otherwise.
const DefaultRole = "admin"

// passwordBytes is the entropy of the throwaway password of created accounts.
const passwordBytes = 32

// Reconciler maps a permitted identity onto an application account and logs
// the session in.
type Reconciler struct {
	users       UserStore
	authn       Authenticator
	system      SystemRunner
	policy      *AccessPolicy
	defaultRole string
	random      io.Reader
	logger      *zap.Logger
	logEnricher LogEnricher
}

// Reconcile finds or creates the account for id, subject to the policy, and
// establishes a passwordless session for it.
func (r *Reconciler) Reconcile(ctx context.Context, sess Session, id Identity) (*Account, error) {
	logger := r.logEnricher(ctx, r.logger).Named("reconcile").With(zap.String("email", maskEmail(id.Email)))

	acct, err := r.find(ctx, id.Email)
	if err != nil {
		logger.Error("Account lookup failed", zap.Error(err))
		return nil, newError(KindAccountUnavailable, err, "Could not look up the account, please try again.")
	}

	if err := r.policy.Evaluate(id, acct != nil); err != nil {
		logger.Info("Login rejected by policy", zap.String("kind", string(KindOf(err))))
		return nil, err
	}

	if acct == nil {
		acct, err = r.create(ctx, id)
		if err != nil {
			logger.Error("Account creation failed", zap.Error(err))
			return nil, newError(KindAccountUnavailable, err, "Could not create the account, please try again.")
		}
		logger.Info("Account created", zap.String("account_id", acct.ID), zap.String("role", acct.Role))
	}

	if err := r.authn.LoginPasswordless(ctx, sess, acct); err != nil {
		logger.Error("Session login failed", zap.Error(err))
		return nil, newError(KindAccountUnavailable, err, "Could not log in, please try again.")
	}
	logger.Info("Logged in", zap.String("account_id", acct.ID))
	return acct, nil
}

// find returns nil, nil for unknown emails.
func (r *Reconciler) find(ctx context.Context, email string) (*Account, error) {
	acct, err := r.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (r *Reconciler) create(ctx context.Context, id Identity) (*Account, error) {
	password, err := r.randomPassword()
	if err != nil {
		return nil, err
	}

	var created *Account
	err = r.system.RunAsSystem(ctx, func(ctx context.Context) error {
		var err error
		created, err = r.users.Create(ctx, NewAccount{
			Name:     id.DisplayName,
			Email:    id.Email,
			Password: password,
			Role:     r.defaultRole,
		})
		return err
	})
	if errors.Is(err, ErrAccountExists) {
		// A concurrent first login won the race; use its account.
		acct, findErr := r.find(ctx, id.Email)
		if findErr != nil {
			return nil, findErr
		}
		if acct == nil {
			return nil, fmt.Errorf("account %s reported as existing but not found: %w", maskEmail(id.Email), err)
		}
		return acct, nil
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *Reconciler) randomPassword() (string, error) {
	b := make([]byte, passwordBytes)
	if _, err := io.ReadFull(r.random, b); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func newReconciler(users UserStore, authn Authenticator, system SystemRunner, policy *AccessPolicy, defaultRole string, logger *zap.Logger, enrich LogEnricher) *Reconciler {
	if defaultRole == "" {
		defaultRole = DefaultRole
	}
	return &Reconciler{
		users:       users,
		authn:       authn,
		system:      system,
		policy:      policy,
		defaultRole: defaultRole,
		random:      rand.Reader,
		logger:      logger,
		logEnricher: enrich,
	}
}
