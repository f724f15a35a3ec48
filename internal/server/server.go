// Package server exposes the login bridge over HTTP.
package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/Mattszczp/kirby-oauth/internal/metrics"
	"github.com/Mattszczp/kirby-oauth/internal/session"
	"github.com/Mattszczp/kirby-oauth/pkg/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// Config wires the server.
type Config struct {
	Bridge   *auth.Bridge
	Sessions *session.Manager
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	LoginPath   string // default "/login"
	LandingPath string // default "/panel"
	LogoutPath  string // default "/logout"

	// TrustProxy enables chi's RealIP, which rewrites RemoteAddr from
	// X-Forwarded-For and X-Real-IP.
	TrustProxy bool

	// Health reports readiness of the backing stores; nil means always ready.
	Health func(ctx context.Context) error
}

type Server struct {
	cfg    Config
	views  *template.Template
	logger *zap.Logger
}

func New(cfg Config) (*Server, error) {
	if cfg.Bridge == nil || cfg.Sessions == nil {
		return nil, errors.New("server: bridge and session manager are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.LandingPath == "" {
		cfg.LandingPath = "/panel"
	}
	if cfg.LogoutPath == "" {
		cfg.LogoutPath = "/logout"
	}
	views, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, views: views, logger: cfg.Logger.Named("http")}, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if s.cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(s.requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.cfg.Sessions.Middleware)
		r.Use(middleware.NoCache)

		r.Route(s.cfg.LoginPath, func(r chi.Router) {
			r.Get("/", s.handleIndex)
			r.Get("/settings", s.handleSettings)
			r.Get("/providers", s.handleProviders)
			r.Get("/{provider}", s.handleLogin)
			r.Get("/*", s.handleLogin)
		})
		r.Get(s.cfg.LandingPath, s.handlePanel)
		r.Post(s.cfg.LogoutPath, s.handleLogout)
	})
	return r
}

func (s *Server) session(r *http.Request) *session.Session {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		// Routes are only mounted behind the session middleware.
		panic("server: no session in request context")
	}
	return sess
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.write(w, r, s.cfg.Bridge.Index(r.Context(), s.session(r)))
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	s.write(w, r, s.cfg.Bridge.Providers(r.Context(), s.session(r)))
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	s.write(w, r, s.cfg.Bridge.SettingsResult())
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "provider")
	if key == "" {
		key = chi.URLParam(r, "*")
	}
	res := s.cfg.Bridge.Login(r.Context(), s.session(r), key, auth.CallbackParamsFromQuery(r.URL.Query()))
	if s.cfg.Metrics != nil {
		label := key
		if errors.Is(res.Err, auth.ErrProviderNotFound) {
			label = "unknown"
		}
		s.cfg.Metrics.ObserveLogin(label, res)
	}
	if res.Err == nil && res.Event == auth.EventAuthenticated {
		if _, err := s.cfg.Sessions.Rotate(r.Context(), w, s.session(r)); err != nil {
			s.logger.Error("Failed to rotate session after login", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
	}
	s.write(w, r, res)
}

type panelData struct {
	Email      string
	LogoutPath string
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	_, email, ok := session.CurrentUser(r.Context(), s.session(r))
	if !ok {
		http.Redirect(w, r, s.cfg.LoginPath, http.StatusFound)
		return
	}
	s.render(w, r, "panel", panelData{Email: email, LogoutPath: s.cfg.LogoutPath})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if _, err := s.cfg.Sessions.Renew(r.Context(), w, s.session(r)); err != nil {
		s.logger.Error("Failed to renew session on logout", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	http.Redirect(w, r, s.cfg.LoginPath, http.StatusSeeOther)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if s.cfg.Health != nil {
		if err := s.cfg.Health(r.Context()); err != nil {
			s.logger.Warn("Health check failed", zap.Error(err))
			status, code = "unavailable", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]string{"status": status})
}

// write turns a bridge Result into an HTTP response.
func (s *Server) write(w http.ResponseWriter, r *http.Request, res auth.Result) {
	switch res.Kind {
	case auth.ResultRedirect:
		http.Redirect(w, r, res.Location, http.StatusFound)
	case auth.ResultRender:
		s.render(w, r, res.View, res.Data)
	case auth.ResultJSON:
		writeJSON(w, http.StatusOK, res.Data)
	default:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, view string, data any) {
	var buf bytes.Buffer
	if err := s.views.ExecuteTemplate(&buf, view+".html", data); err != nil {
		s.logger.Error("Failed to render view", zap.String("view", view), zap.Error(err),
			zap.String("path", r.URL.Path))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// routeLabel is the matched chi pattern, so metrics do not explode on ids.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return strings.TrimSuffix(p, "/*")
		}
	}
	return "unmatched"
}
