package session

import (
	"context"
	"net/http"
	"time"

	"github.com/Mattszczp/kirby-oauth/pkg/auth"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configures the session cookie.
type Options struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager issues session ids and binds a Session to every request.
type Manager struct {
	backend Backend
	opts    Options
	logger  *zap.Logger
}

func NewManager(backend Backend, opts Options, logger *zap.Logger) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = "lb_sid"
	}
	if opts.TTL <= 0 {
		opts.TTL = 12 * time.Hour
	}
	return &Manager{backend: backend, opts: opts, logger: logger.Named("session")}
}

// Session is the values of one browser session. It implements auth.Session.
type Session struct {
	id      string
	backend Backend
	ttl     time.Duration
}

var _ auth.Session = (*Session)(nil)

func (s *Session) ID() string { return s.id }

func (s *Session) key(k string) string { return "sess:" + s.id + ":" + k }

func (s *Session) Get(ctx context.Context, key string) (string, bool, error) {
	return s.backend.Get(ctx, s.key(key))
}

func (s *Session) Set(ctx context.Context, key, value string) error {
	return s.backend.Set(ctx, s.key(key), value, s.ttl)
}

func (s *Session) Remove(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, s.key(key))
}

func (s *Session) Take(ctx context.Context, key string) (string, bool, error) {
	return s.backend.Take(ctx, s.key(key))
}

type ctxKey struct{}

// FromContext returns the session bound by Middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok
}

// issuedKey marks an id as issued by this server. Cookies naming an id
// without it are ignored.
const issuedKey = "_issued"

// Middleware reads the session cookie, issuing a fresh id when it is absent,
// malformed or unknown to the backend, and binds the Session to the request
// context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var sess *Session
		if c, err := r.Cookie(m.opts.CookieName); err == nil {
			if parsed, err := uuid.Parse(c.Value); err == nil {
				sess = m.known(ctx, parsed.String())
			}
		}
		if sess == nil {
			fresh, err := m.issue(ctx, w)
			if err != nil {
				m.logger.Error("Failed to issue session", zap.Error(err))
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			sess = fresh
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, ctxKey{}, sess)))
	})
}

// known returns the session for id when the backend has issued it.
func (m *Manager) known(ctx context.Context, id string) *Session {
	sess := m.bind(id)
	_, ok, err := sess.Get(ctx, issuedKey)
	if err != nil {
		m.logger.Warn("Failed to look up session", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return sess
}

// Renew drops the user from the current session, invalidates its id and
// moves the browser to a fresh one.
func (m *Manager) Renew(ctx context.Context, w http.ResponseWriter, old *Session) (*Session, error) {
	for _, k := range []string{UserKey, UserEmailKey, auth.StateKey, auth.ProviderKey, auth.ErrorKey, issuedKey} {
		if err := old.Remove(ctx, k); err != nil {
			m.logger.Warn("Failed to clear session key", zap.String("key", k), zap.Error(err))
		}
	}
	return m.issue(ctx, w)
}

// Rotate moves the logged-in user of old onto a fresh session id. It is
// called whenever a login raises the privilege of a session.
func (m *Manager) Rotate(ctx context.Context, w http.ResponseWriter, old *Session) (*Session, error) {
	id, email, loggedIn := CurrentUser(ctx, old)
	fresh, err := m.Renew(ctx, w, old)
	if err != nil {
		return nil, err
	}
	if !loggedIn {
		return fresh, nil
	}
	if err := fresh.Set(ctx, UserKey, id); err != nil {
		return nil, err
	}
	if err := fresh.Set(ctx, UserEmailKey, email); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (m *Manager) bind(id string) *Session {
	return &Session{id: id, backend: m.backend, ttl: m.opts.TTL}
}

func (m *Manager) issue(ctx context.Context, w http.ResponseWriter) (*Session, error) {
	sess := m.bind(uuid.NewString())
	if err := sess.Set(ctx, issuedKey, "1"); err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    sess.id,
		Path:     "/",
		MaxAge:   int(m.opts.TTL / time.Second),
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}
