package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memSession is an in-memory Session.
type memSession struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemSession() *memSession { return &memSession{values: map[string]string{}} }

func (s *memSession) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *memSession) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *memSession) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *memSession) Take(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	delete(s.values, key)
	return v, ok, nil
}

func (s *memSession) has(key string) bool {
	_, ok, _ := s.Get(context.Background(), key)
	return ok
}

const sessionUserKey = "user"

// fakeAuthn logs sessions in by storing the account id.
type fakeAuthn struct{}

func (fakeAuthn) Authenticated(ctx context.Context, sess Session) (bool, error) {
	_, ok, err := sess.Get(ctx, sessionUserKey)
	return ok, err
}

func (fakeAuthn) LoginPasswordless(ctx context.Context, sess Session, acct *Account) error {
	return sess.Set(ctx, sessionUserKey, acct.ID)
}

type systemCtxKey struct{}

var errNotSystem = errors.New("system context required")

var fakeSystem = SystemFunc(func(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(context.WithValue(ctx, systemCtxKey{}, true))
})

// memUsers is an in-memory UserStore that insists on a system context for
// Create.
type memUsers struct {
	mu       sync.Mutex
	accounts map[string]*Account
	created  []NewAccount
	// beforeCreate runs inside Create before the insert; it may return an error.
	beforeCreate func(acct NewAccount) error
	findErr      error
}

func newMemUsers(existing ...Account) *memUsers {
	u := &memUsers{accounts: map[string]*Account{}}
	for i := range existing {
		a := existing[i]
		u.accounts[a.Email] = &a
	}
	return u
}

func (u *memUsers) FindByEmail(_ context.Context, email string) (*Account, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.findErr != nil {
		return nil, u.findErr
	}
	a, ok := u.accounts[email]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (u *memUsers) Create(ctx context.Context, acct NewAccount) (*Account, error) {
	if ok, _ := ctx.Value(systemCtxKey{}).(bool); !ok {
		return nil, errNotSystem
	}
	if u.beforeCreate != nil {
		if err := u.beforeCreate(acct); err != nil {
			return nil, err
		}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.accounts[acct.Email]; ok {
		return nil, ErrAccountExists
	}
	a := &Account{ID: "id-" + acct.Email, Email: acct.Email, Name: acct.Name, Role: acct.Role}
	u.accounts[acct.Email] = a
	u.created = append(u.created, acct)
	cp := *a
	return &cp, nil
}

const (
	goodCode    = "good-code"
	accessToken = "at-123"
)

// fakeProvider serves token and userinfo endpoints.
type fakeProvider struct {
	t        *testing.T
	srv      *httptest.Server
	mu       sync.Mutex
	userinfo map[string]any
	idClaims jwt.MapClaims
	// userinfoStatus overrides the userinfo response status when non-zero.
	userinfoStatus int
	tokenCalls     int
	// extra holds further authorized JSON resources keyed by path.
	extra map[string]any
}

func newFakeProvider(t *testing.T, userinfo map[string]any) *fakeProvider {
	t.Helper()
	p := &fakeProvider{t: t, userinfo: userinfo}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", p.handleToken)
	mux.HandleFunc("/userinfo", p.handleUserinfo)
	mux.HandleFunc("/", p.handleExtra)
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.tokenCalls++
	claims := p.idClaims
	p.mu.Unlock()

	assert.NoError(p.t, r.ParseForm())
	w.Header().Set("Content-Type", "application/json")
	if r.PostForm.Get("code") != goodCode {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Code expired",
		})
		return
	}
	resp := map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	if claims != nil {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
		assert.NoError(p.t, err)
		resp["id_token"] = signed
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (p *fakeProvider) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !strings.EqualFold(r.Header.Get("Authorization"), "Bearer "+accessToken) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if p.userinfoStatus != 0 {
		w.WriteHeader(p.userinfoStatus)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p.userinfo)
}

func (p *fakeProvider) serve(path string, body any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.extra == nil {
		p.extra = map[string]any{}
	}
	p.extra[path] = body
}

func (p *fakeProvider) handleExtra(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	body, ok := p.extra[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if !strings.EqualFold(r.Header.Get("Authorization"), "Bearer "+accessToken) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (p *fakeProvider) config(key string) ProviderConfig {
	return ProviderConfig{
		Key:                   key,
		DisplayName:           strings.ToUpper(key),
		ClientID:              "client-" + key,
		ClientSecret:          "secret-" + key,
		AuthorizationEndpoint: p.srv.URL + "/authorize",
		TokenEndpoint:         p.srv.URL + "/token",
		UserinfoEndpoint:      p.srv.URL + "/userinfo",
		Scopes:                []string{"openid", "email"},
	}
}

const testRedirectBase = "https://app.test/login"

type bridgeFixture struct {
	bridge   *Bridge
	provider *fakeProvider
	users    *memUsers
	sess     *memSession
}

// newBridgeFixture builds a bridge against a fake provider. presets may be nil
// for a single provider keyed "acme".
func newBridgeFixture(t *testing.T, userinfo map[string]any, users *memUsers, opts Options, presets func(p *fakeProvider) []Preset) *bridgeFixture {
	t.Helper()
	p := newFakeProvider(t, userinfo)
	if users == nil {
		users = newMemUsers()
	}
	if presets == nil {
		presets = func(p *fakeProvider) []Preset { return []Preset{{Config: p.config("acme")}} }
	}
	opts.RedirectBaseURL = testRedirectBase
	opts.HTTPClient = p.srv.Client()
	b, err := New(presets(p), Deps{
		Logger:        zap.NewNop(),
		Users:         users,
		Authenticator: fakeAuthn{},
		System:        fakeSystem,
	}, opts)
	require.NoError(t, err)
	return &bridgeFixture{bridge: b, provider: p, users: users, sess: newMemSession()}
}
