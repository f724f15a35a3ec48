package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// CallbackParams are the query parameters a provider sends back.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackParamsFromQuery extracts CallbackParams from a parsed query string.
func CallbackParamsFromQuery(q url.Values) CallbackParams {
	return CallbackParams{
		Code:             strings.TrimSpace(q.Get("code")),
		State:            q.Get("state"),
		Error:            strings.TrimSpace(q.Get("error")),
		ErrorDescription: strings.TrimSpace(q.Get("error_description")),
	}
}

// Outcome says how a callback ended when it did not fail.
type Outcome int

const (
	// OutcomeIdentity means the identity was fetched and must be reconciled.
	OutcomeIdentity Outcome = iota
	// OutcomeRestart means no code was present and a new attempt was started.
	OutcomeRestart
	// OutcomeAlreadyAuthenticated means the session is already logged in.
	OutcomeAlreadyAuthenticated
)

// CallbackResult is the successful result of Flow.Callback.
type CallbackResult struct {
	Outcome     Outcome
	RedirectURL string // set for OutcomeRestart
	Provider    ProviderConfig
	Raw         RawIdentity // set for OutcomeIdentity
}

// Flow drives one authorization-code login attempt.
type Flow struct {
	registry     *Registry
	states       *FlowStateStore
	fetcher      IdentityFetcher
	authn        Authenticator
	redirectBase string
	logger       *zap.Logger
	logEnricher  LogEnricher
}

// RedirectURL is the callback URL registered with the provider. Initiation
// and callback share the same path.
func (f *Flow) RedirectURL(providerKey string) string {
	return strings.TrimRight(f.redirectBase, "/") + "/" + url.PathEscape(providerKey)
}

// Initiate starts an attempt with the provider under key and returns the URL
// the browser must be sent to.
func (f *Flow) Initiate(ctx context.Context, sess Session, key string) (string, error) {
	logger := f.logEnricher(ctx, f.logger).Named("initiate")

	cfg, ok := f.registry.Get(key)
	if !ok {
		logger.Warn("Unknown provider", zap.String("provider", key))
		return "", newError(KindProviderNotFound, nil, "OAuth provider not found!")
	}
	return f.initiate(ctx, sess, cfg, logger)
}

func (f *Flow) initiate(ctx context.Context, sess Session, cfg ProviderConfig, logger *zap.Logger) (string, error) {
	state, err := f.states.Begin(ctx, sess, cfg.Key)
	if err != nil {
		logger.Error("Failed to store flow state", zap.Error(err))
		return "", newError(KindAccountUnavailable, err, "Could not start the login, please try again.")
	}
	authURL := AuthCodeURL(cfg, f.RedirectURL(cfg.Key), state)
	logger.Info("Redirecting to provider", zap.String("provider", cfg.Key))
	return authURL, nil
}

// Callback handles the provider redirect for key.
func (f *Flow) Callback(ctx context.Context, sess Session, key string, p CallbackParams) (*CallbackResult, error) {
	logger := f.logEnricher(ctx, f.logger).Named("callback").With(zap.String("provider", key))

	cfg, ok := f.registry.Get(key)
	if !ok {
		logger.Warn("Unknown provider")
		return nil, newError(KindProviderNotFound, nil, "OAuth provider not found!")
	}

	if p.Error != "" {
		logger.Info("Provider returned an error", zap.String("error", p.Error), zap.String("description", p.ErrorDescription))
		msg := p.Error
		if p.ErrorDescription != "" {
			msg += ": " + p.ErrorDescription
		}
		return nil, newError(KindProviderDenied, nil, "%s", msg)
	}

	if p.Code == "" {
		authURL, err := f.initiate(ctx, sess, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &CallbackResult{Outcome: OutcomeRestart, RedirectURL: authURL, Provider: cfg}, nil
	}

	authenticated, err := f.authn.Authenticated(ctx, sess)
	if err != nil {
		logger.Error("Failed to read session", zap.Error(err))
		return nil, newError(KindAccountUnavailable, err, "Could not read the session, please try again.")
	}
	if authenticated {
		return &CallbackResult{Outcome: OutcomeAlreadyAuthenticated, Provider: cfg}, nil
	}

	valid, err := f.states.Consume(ctx, sess, cfg.Key, p.State)
	if err != nil {
		logger.Error("Failed to read flow state", zap.Error(err))
		return nil, newError(KindInvalidState, err, "Invalid state")
	}
	if !valid {
		logger.Warn("State mismatch, possible CSRF attempt")
		return nil, newError(KindInvalidState, nil, "Invalid state")
	}

	raw, err := f.fetcher.FetchIdentity(ctx, cfg, f.RedirectURL(cfg.Key), p.Code)
	if errors.Is(err, ErrFailedToGetUserInfo) {
		// The response body stays in the log.
		logger.Error("Failed to fetch identity", zap.Error(err))
		return nil, newError(KindProviderExchangeFailed, err, "Could not load the user profile from the provider.")
	}
	if err != nil {
		return nil, newError(KindProviderExchangeFailed, err, "%s", err.Error())
	}
	return &CallbackResult{Outcome: OutcomeIdentity, Provider: cfg, Raw: raw}, nil
}
