package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Mattszczp/kirby-oauth/pkg/auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryBackend(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)
	t.Cleanup(func() { _ = m.Close() })

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", "v", 0))
	v, ok, _ := m.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	v, ok, _ = m.Take(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	_, ok, _ = m.Take(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "gone", "v", 0))
	require.NoError(t, m.Delete(ctx, "gone"))
	_, ok, _ = m.Get(ctx, "gone")
	assert.False(t, ok)
}

func TestMemoryBackendExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)

	require.NoError(t, m.Set(ctx, "k", "v", 20*time.Millisecond))
	time.Sleep(50 * time.Millisecond)
	_, ok, _ := m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryTakeIsAtomic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)
	require.NoError(t, m.Set(ctx, "state", "tok", 0))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := m.Take(ctx, "state"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func newTestManager() *Manager {
	return NewManager(NewMemory(time.Hour), Options{CookieName: "lb_sid", TTL: time.Hour}, zap.NewNop())
}

func serve(m *Manager, req *http.Request) (*httptest.ResponseRecorder, *Session) {
	var got *Session
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, got
}

func TestMiddlewareIssuesCookie(t *testing.T) {
	m := newTestManager()
	rec, sess := serve(m, httptest.NewRequest(http.MethodGet, "/login", nil))

	require.NotNil(t, sess)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "lb_sid", c.Name)
	assert.Equal(t, sess.ID(), c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 3600, c.MaxAge)
	_, err := uuid.Parse(c.Value)
	assert.NoError(t, err)
}

func TestMiddlewareReusesSession(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	_, first := serve(m, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, first.Set(ctx, auth.StateKey, "tok"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "lb_sid", Value: first.ID()})
	rec, second := serve(m, req)

	assert.Empty(t, rec.Result().Cookies(), "no new cookie for a known id")
	assert.Equal(t, first.ID(), second.ID())
	v, ok, _ := second.Get(ctx, auth.StateKey)
	assert.True(t, ok)
	assert.Equal(t, "tok", v)
}

func TestMiddlewareReplacesMalformedCookie(t *testing.T) {
	m := newTestManager()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "lb_sid", Value: "../../etc"})

	rec, sess := serve(m, req)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.NotEqual(t, "../../etc", sess.ID())
}

func TestSessionsAreIsolated(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	_, a := serve(m, httptest.NewRequest(http.MethodGet, "/", nil))
	_, b := serve(m, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NoError(t, a.Set(ctx, "k", "a"))
	_, ok, _ := b.Get(ctx, "k")
	assert.False(t, ok)
}

func TestAuthenticatorAndRenew(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	_, sess := serve(m, httptest.NewRequest(http.MethodGet, "/", nil))

	var authn Authenticator
	ok, err := authn.Authenticated(ctx, sess)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, authn.LoginPasswordless(ctx, sess, &auth.Account{ID: "7", Email: "a@x.com"}))
	ok, _ = authn.Authenticated(ctx, sess)
	assert.True(t, ok)
	id, email, ok := CurrentUser(ctx, sess)
	assert.True(t, ok)
	assert.Equal(t, "7", id)
	assert.Equal(t, "a@x.com", email)

	rec := httptest.NewRecorder()
	fresh, err := m.Renew(ctx, rec, sess)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID(), fresh.ID())
	require.Len(t, rec.Result().Cookies(), 1)

	ok, _ = authn.Authenticated(ctx, sess)
	assert.False(t, ok, "old session is logged out")
	ok, _ = authn.Authenticated(ctx, fresh)
	assert.False(t, ok)
}

func TestMiddlewareReplacesUnknownID(t *testing.T) {
	m := newTestManager()
	planted := "11111111-2222-4333-8444-555555555555"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "lb_sid", Value: planted})

	rec, sess := serve(m, req)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.NotEqual(t, planted, sess.ID(), "ids the server never issued are not adopted")
}

func TestRenewedIDIsNotReusable(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	_, sess := serve(m, httptest.NewRequest(http.MethodGet, "/", nil))

	_, err := m.Renew(ctx, httptest.NewRecorder(), sess)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "lb_sid", Value: sess.ID()})
	_, again := serve(m, req)
	assert.NotEqual(t, sess.ID(), again.ID())
}

func TestRotateMovesUser(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	_, sess := serve(m, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, Authenticator{}.LoginPasswordless(ctx, sess, &auth.Account{ID: "7", Email: "a@x.com"}))

	rec := httptest.NewRecorder()
	fresh, err := m.Rotate(ctx, rec, sess)
	require.NoError(t, err)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, fresh.ID(), rec.Result().Cookies()[0].Value)
	assert.NotEqual(t, sess.ID(), fresh.ID())

	id, email, ok := CurrentUser(ctx, fresh)
	require.True(t, ok)
	assert.Equal(t, "7", id)
	assert.Equal(t, "a@x.com", email)

	_, _, ok = CurrentUser(ctx, sess)
	assert.False(t, ok, "old id no longer carries the user")
}

func TestRotateAnonymousSession(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	_, sess := serve(m, httptest.NewRequest(http.MethodGet, "/", nil))

	fresh, err := m.Rotate(ctx, httptest.NewRecorder(), sess)
	require.NoError(t, err)
	_, _, ok := CurrentUser(ctx, fresh)
	assert.False(t, ok)
}
