package auth

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateOf(t *testing.T, authURL string) url.Values {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	return u.Query()
}

func TestInitiateEmbedsStoredState(t *testing.T) {
	f := newBridgeFixture(t, nil, nil, Options{}, nil)
	ctx := context.Background()

	authURL, err := f.bridge.Flow().Initiate(ctx, f.sess, "acme")
	require.NoError(t, err)

	q := stateOf(t, authURL)
	stored, ok, _ := f.sess.Get(ctx, StateKey)
	require.True(t, ok)
	assert.Equal(t, stored, q.Get("state"))
	assert.Len(t, stored, 43, "32 random bytes in unpadded base64url")
	assert.Equal(t, "client-acme", q.Get("client_id"))
	assert.Equal(t, testRedirectBase+"/acme", q.Get("redirect_uri"))
	assert.Equal(t, "openid email", q.Get("scope"))
	assert.Equal(t, "code", q.Get("response_type"))

	pending, _, _ := f.sess.Get(ctx, ProviderKey)
	assert.Equal(t, "acme", pending)
}

func TestInitiateNeverReusesState(t *testing.T) {
	f := newBridgeFixture(t, nil, nil, Options{}, nil)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		authURL, err := f.bridge.Flow().Initiate(ctx, newMemSession(), "acme")
		require.NoError(t, err)
		state := stateOf(t, authURL).Get("state")
		require.False(t, seen[state], "state reused")
		seen[state] = true
	}
}

func TestInitiateUnknownProvider(t *testing.T) {
	f := newBridgeFixture(t, nil, nil, Options{}, nil)

	_, err := f.bridge.Flow().Initiate(context.Background(), f.sess, "nope")
	require.ErrorIs(t, err, ErrProviderNotFound)
	assert.False(t, f.sess.has(StateKey))
}

func TestCallbackProviderError(t *testing.T) {
	f := newBridgeFixture(t, nil, nil, Options{}, nil)

	_, err := f.bridge.Flow().Callback(context.Background(), f.sess, "acme", CallbackParams{
		Error:            "access_denied",
		ErrorDescription: "The user denied the request",
	})
	require.ErrorIs(t, err, ErrProviderDenied)
	assert.Equal(t, "access_denied: The user denied the request", err.Error())
}

func TestCallbackWithoutCodeRestarts(t *testing.T) {
	f := newBridgeFixture(t, nil, nil, Options{}, nil)
	ctx := context.Background()

	res, err := f.bridge.Flow().Callback(ctx, f.sess, "acme", CallbackParams{State: "whatever"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRestart, res.Outcome)

	stored, ok, _ := f.sess.Get(ctx, StateKey)
	require.True(t, ok)
	assert.Equal(t, stored, stateOf(t, res.RedirectURL).Get("state"))
}

func TestCallbackAlreadyAuthenticated(t *testing.T) {
	f := newBridgeFixture(t, nil, nil, Options{}, nil)
	ctx := context.Background()
	require.NoError(t, f.sess.Set(ctx, sessionUserKey, "someone"))

	res, err := f.bridge.Flow().Callback(ctx, f.sess, "acme", CallbackParams{Code: goodCode, State: "x"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyAuthenticated, res.Outcome)
	assert.Zero(t, f.provider.tokenCalls)
}

func TestCallbackStateIsSingleUse(t *testing.T) {
	f := newBridgeFixture(t, map[string]any{"email": "a@x.com", "email_verified": true}, nil, Options{}, nil)
	ctx := context.Background()
	flow := f.bridge.Flow()

	authURL, err := flow.Initiate(ctx, f.sess, "acme")
	require.NoError(t, err)
	original := stateOf(t, authURL).Get("state")

	_, err = flow.Callback(ctx, f.sess, "acme", CallbackParams{Code: goodCode, State: "forged"})
	require.ErrorIs(t, err, ErrInvalidState)
	assert.False(t, f.sess.has(StateKey), "mismatch must clear the stored state")

	for _, state := range []string{original, "forged"} {
		_, err = flow.Callback(ctx, f.sess, "acme", CallbackParams{Code: goodCode, State: state})
		require.ErrorIs(t, err, ErrInvalidState, "replay with %q", state)
	}
	assert.Zero(t, f.provider.tokenCalls)
}

func TestCallbackValidStateCannotBeReplayed(t *testing.T) {
	f := newBridgeFixture(t, map[string]any{"email": "a@x.com", "email_verified": true}, nil, Options{}, nil)
	ctx := context.Background()
	flow := f.bridge.Flow()

	authURL, err := flow.Initiate(ctx, f.sess, "acme")
	require.NoError(t, err)
	state := stateOf(t, authURL).Get("state")

	res, err := flow.Callback(ctx, f.sess, "acme", CallbackParams{Code: goodCode, State: state})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIdentity, res.Outcome)

	_, err = flow.Callback(ctx, f.sess, "acme", CallbackParams{Code: goodCode, State: state})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCallbackEmptyState(t *testing.T) {
	f := newBridgeFixture(t, nil, nil, Options{}, nil)
	ctx := context.Background()
	_, err := f.bridge.Flow().Initiate(ctx, f.sess, "acme")
	require.NoError(t, err)

	_, err = f.bridge.Flow().Callback(ctx, f.sess, "acme", CallbackParams{Code: goodCode})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCallbackRejectsStateIssuedForOtherProvider(t *testing.T) {
	f := newBridgeFixture(t, map[string]any{"email": "a@x.com"}, nil, Options{}, func(p *fakeProvider) []Preset {
		return []Preset{{Config: p.config("acme")}, {Config: p.config("other")}}
	})
	ctx := context.Background()

	authURL, err := f.bridge.Flow().Initiate(ctx, f.sess, "acme")
	require.NoError(t, err)

	_, err = f.bridge.Flow().Callback(ctx, f.sess, "other", CallbackParams{
		Code:  goodCode,
		State: stateOf(t, authURL).Get("state"),
	})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCallbackFetchesIdentity(t *testing.T) {
	f := newBridgeFixture(t, map[string]any{"email": "a@x.com", "email_verified": true, "name": "Ada"}, nil, Options{}, nil)
	f.provider.idClaims = jwt.MapClaims{"sub": "123", "name": "From Token", "hd": "x.com"}
	ctx := context.Background()

	authURL, err := f.bridge.Flow().Initiate(ctx, f.sess, "acme")
	require.NoError(t, err)

	res, err := f.bridge.Flow().Callback(ctx, f.sess, "acme", CallbackParams{
		Code:  goodCode,
		State: stateOf(t, authURL).Get("state"),
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeIdentity, res.Outcome)
	assert.Equal(t, "a@x.com", res.Raw["email"])
	assert.Equal(t, true, res.Raw["email_verified"])
	assert.Equal(t, "Ada", res.Raw["name"], "userinfo wins over id_token claims")
	assert.Equal(t, "123", res.Raw["sub"])
	assert.Equal(t, "x.com", res.Raw["hd"])
}

func TestCallbackExchangeFailure(t *testing.T) {
	f := newBridgeFixture(t, map[string]any{"email": "a@x.com"}, nil, Options{}, nil)
	ctx := context.Background()

	authURL, err := f.bridge.Flow().Initiate(ctx, f.sess, "acme")
	require.NoError(t, err)

	_, err = f.bridge.Flow().Callback(ctx, f.sess, "acme", CallbackParams{
		Code:  "stale-code",
		State: stateOf(t, authURL).Get("state"),
	})
	require.ErrorIs(t, err, ErrProviderExchangeFailed)
	assert.True(t, errors.Is(err, ErrFailedToExchangeCode))
	assert.Contains(t, err.Error(), "Code expired")
}

func TestCallbackUserinfoFailure(t *testing.T) {
	f := newBridgeFixture(t, map[string]any{"email": "a@x.com"}, nil, Options{}, nil)
	f.provider.userinfoStatus = 502
	ctx := context.Background()

	authURL, err := f.bridge.Flow().Initiate(ctx, f.sess, "acme")
	require.NoError(t, err)

	_, err = f.bridge.Flow().Callback(ctx, f.sess, "acme", CallbackParams{
		Code:  goodCode,
		State: stateOf(t, authURL).Get("state"),
	})
	require.ErrorIs(t, err, ErrProviderExchangeFailed)
	assert.ErrorIs(t, err, ErrFailedToGetUserInfo)
	assert.Equal(t, KindProviderExchangeFailed, KindOf(err))
	assert.Equal(t, "Could not load the user profile from the provider.", err.Error())
	assert.NotContains(t, err.Error(), "boom", "provider response body is not shown to users")
}

func TestCallbackParamsFromQuery(t *testing.T) {
	q := url.Values{"code": {" abc "}, "state": {" s "}, "error": {""}, "error_description": {"d"}}
	assert.Equal(t, CallbackParams{Code: "abc", State: " s ", ErrorDescription: "d"}, CallbackParamsFromQuery(q))
}

func TestCallbackPaddedStateIsRejected(t *testing.T) {
	f := newBridgeFixture(t, map[string]any{"email": "a@x.com", "email_verified": true}, nil, Options{}, nil)
	ctx := context.Background()

	authURL, err := f.bridge.Flow().Initiate(ctx, f.sess, "acme")
	require.NoError(t, err)
	state := stateOf(t, authURL).Get("state")

	q := url.Values{"code": {goodCode}, "state": {" " + state + " "}}
	_, err = f.bridge.Flow().Callback(ctx, f.sess, "acme", CallbackParamsFromQuery(q))
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, f.provider.tokenCalls)
}
