package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// LogEnricher decorates a logger with request-scoped fields (trace id etc.).
type LogEnricher func(ctx context.Context, logger *zap.Logger) *zap.Logger

func noEnrich(_ context.Context, logger *zap.Logger) *zap.Logger { return logger }

// defaultProviderTimeout bounds each provider call when the host supplies no client.
const defaultProviderTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed provider response is kept for logs.
const maxErrorBody = 2048

// IdentityFetcher performs the back-channel half of the authorization-code
// flow: code exchange followed by the identity lookup.
type IdentityFetcher interface {
	FetchIdentity(ctx context.Context, cfg ProviderConfig, redirectURL, code string) (RawIdentity, error)
}

// OAuthHandler is the golang.org/x/oauth2 based IdentityFetcher.
type OAuthHandler struct {
	logger      *zap.Logger
	logEnricher LogEnricher
	httpClient  *http.Client
	enrichers   map[string]Enricher
}

// NewOAuthHandler creates a fetcher. httpClient may be nil, in which case a
// client with a 10 second timeout is used.
func NewOAuthHandler(logger *zap.Logger, logEnricher LogEnricher, httpClient *http.Client) *OAuthHandler {
	if logEnricher == nil {
		logEnricher = noEnrich
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultProviderTimeout}
	}
	return &OAuthHandler{
		logger:      logger.Named("oauth"),
		logEnricher: logEnricher,
		httpClient:  httpClient,
		enrichers:   make(map[string]Enricher),
	}
}

// RegisterEnricher installs a provider-specific enrichment step. Start-up only.
func (h *OAuthHandler) RegisterEnricher(providerKey string, e Enricher) {
	if e != nil {
		h.enrichers[providerKey] = e
	}
}

func oauth2Config(cfg ProviderConfig, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthorizationEndpoint,
			TokenURL: cfg.TokenEndpoint,
		},
	}
}

// AuthCodeURL builds the provider authorization URL for state.
func AuthCodeURL(cfg ProviderConfig, redirectURL, state string) string {
	return oauth2Config(cfg, redirectURL).AuthCodeURL(state)
}

// FetchIdentity exchanges code for a token and returns the merged identity
// attributes: id_token claims first, userinfo attributes on top, then the
// provider enricher. Errors wrap ErrFailedToExchangeCode, ErrInvalidToken or
// ErrFailedToGetUserInfo.
func (h *OAuthHandler) FetchIdentity(ctx context.Context, cfg ProviderConfig, redirectURL, code string) (RawIdentity, error) {
	logger := h.logEnricher(ctx, h.logger).Named("fetch_identity").With(zap.String("provider", cfg.Key))

	ctx = context.WithValue(ctx, oauth2.HTTPClient, h.httpClient)
	conf := oauth2Config(cfg, redirectURL)

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		logger.Error("Failed to exchange code for token", zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrFailedToExchangeCode, describeOAuthError(err))
	}
	if !token.Valid() {
		logger.Error("Received invalid token")
		return nil, ErrInvalidToken
	}

	raw := RawIdentity{}
	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		claims, err := idTokenClaims(idToken)
		if err != nil {
			logger.Warn("Ignoring unparsable id_token", zap.Error(err))
		} else {
			for k, v := range claims {
				raw[k] = v
			}
		}
	}

	client := conf.Client(ctx, token)
	client.Timeout = h.httpClient.Timeout

	info, err := fetchUserInfo(ctx, client, cfg.UserinfoEndpoint)
	if err != nil {
		logger.Error("Failed to get user info", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrFailedToGetUserInfo, err)
	}
	for k, v := range info {
		raw[k] = v
	}

	if enrich := h.enrichers[cfg.Key]; enrich != nil {
		if err := enrich(ctx, client, raw); err != nil {
			// Enrichment is best effort; normalization decides whether what we
			// have is enough.
			logger.Warn("Provider enrichment failed", zap.Error(err))
		}
	}

	logger.Debug("Identity fetched", zap.Int("attributes", len(raw)))
	return raw, nil
}

// idTokenClaims reads the claims of an id_token received directly from the
// token endpoint. The TLS channel authenticates the issuer, so the signature
// is not checked here.
func idTokenClaims(idToken string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser(jwt.WithJSONNumber()).ParseUnverified(idToken, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// fetchUserInfo retrieves a JSON object from endpoint with an authorized client.
func fetchUserInfo(ctx context.Context, client *http.Client, endpoint string) (RawIdentity, error) {
	var info RawIdentity
	if err := getJSON(ctx, client, endpoint, &info); err != nil {
		return nil, err
	}
	if info == nil {
		return nil, errors.New("empty user info response")
	}
	return info, nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// describeOAuthError prefers the provider's own error description.
func describeOAuthError(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch {
		case re.ErrorDescription != "":
			return re.ErrorDescription
		case re.ErrorCode != "":
			return re.ErrorCode
		}
	}
	return err.Error()
}
