package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ResultKind selects how the dispatch layer must answer.
type ResultKind int

const (
	ResultRedirect ResultKind = iota
	ResultRender
	ResultJSON
)

// Events reported on successful results.
const (
	EventRedirected           = "redirected"
	EventAuthenticated        = "authenticated"
	EventAlreadyAuthenticated = "already_authenticated"
	EventRendered             = "rendered"
)

// Views rendered by the bridge.
const (
	ViewIndex     = "index"
	ViewProviders = "providers"
)

// Result is what an entry point asks the transport layer to do. The bridge
// never writes responses itself.
type Result struct {
	Kind     ResultKind
	Location string // ResultRedirect
	View     string // ResultRender
	Data     any    // ResultRender and ResultJSON
	Event    string // set when Err is nil
	Err      error  // set when the attempt failed; Location then points at the login page
}

// ProviderLink is one entry of the provider chooser.
type ProviderLink struct {
	Key   string
	Label string
	URL   string
}

// PageData is handed to the index and providers views.
type PageData struct {
	Providers []ProviderLink
	Error     string
	OnlyOauth bool
}

// Settings tells the host UI whether to offer password login.
type Settings struct {
	OnlyOauth bool `json:"onlyOauth"`
	Enabled   bool `json:"enabled"`
}

// Options configures the bridge.
type Options struct {
	OnlyOauth   bool
	Policy      PolicyConfig
	DefaultRole string

	// LoginPath is the path of the login entry point, default "/login".
	LoginPath string
	// LandingPath is where authenticated users are sent, default "/panel".
	LandingPath string
	// RedirectBaseURL is the absolute URL of the login entry point; the
	// provider key is appended to form the OAuth redirect_uri.
	RedirectBaseURL string

	// HTTPClient is used for provider calls when Deps.Fetcher is nil.
	HTTPClient *http.Client
}

// Deps are the host collaborators.
type Deps struct {
	Logger        *zap.Logger
	LogEnricher   LogEnricher
	Users         UserStore
	Authenticator Authenticator
	System        SystemRunner
	// Fetcher overrides the default OAuthHandler.
	Fetcher IdentityFetcher
}

// Bridge wires registry, flow, normalizer, policy and reconciler together and
// exposes the login entry points.
type Bridge struct {
	registry    *Registry
	states      *FlowStateStore
	flow        *Flow
	normalizer  *Normalizer
	reconciler  *Reconciler
	onlyOauth   bool
	loginPath   string
	landingPath string
	logger      *zap.Logger
	logEnricher LogEnricher
}

// New builds a bridge for the given provider presets.
func New(presets []Preset, deps Deps, opts Options) (*Bridge, error) {
	if deps.Users == nil || deps.Authenticator == nil || deps.System == nil {
		return nil, errors.New("users, authenticator and system runner are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.LogEnricher == nil {
		deps.LogEnricher = noEnrich
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	if opts.LandingPath == "" {
		opts.LandingPath = "/panel"
	}
	if opts.RedirectBaseURL == "" {
		return nil, errors.New("redirect base url is required")
	}

	logger := deps.Logger.Named("bridge")

	configs := make([]ProviderConfig, 0, len(presets))
	for _, p := range presets {
		configs = append(configs, p.Config)
	}
	registry, err := NewRegistry(configs...)
	if err != nil {
		return nil, err
	}

	normalizer := NewNormalizer()
	fetcher := deps.Fetcher
	var handler *OAuthHandler
	if fetcher == nil {
		handler = NewOAuthHandler(deps.Logger, deps.LogEnricher, opts.HTTPClient)
		fetcher = handler
	}
	for _, p := range presets {
		for _, rule := range p.Rules {
			normalizer.Register(p.Config.Key, rule)
		}
		if handler != nil {
			handler.RegisterEnricher(p.Config.Key, p.Enricher)
		}
	}

	states := NewFlowStateStore(nil)
	b := &Bridge{
		registry:   registry,
		states:     states,
		normalizer: normalizer,
		flow: &Flow{
			registry:     registry,
			states:       states,
			fetcher:      fetcher,
			authn:        deps.Authenticator,
			redirectBase: opts.RedirectBaseURL,
			logger:       logger,
			logEnricher:  deps.LogEnricher,
		},
		reconciler: newReconciler(deps.Users, deps.Authenticator, deps.System,
			NewAccessPolicy(opts.Policy), opts.DefaultRole, logger, deps.LogEnricher),
		onlyOauth:   opts.OnlyOauth,
		loginPath:   opts.LoginPath,
		landingPath: opts.LandingPath,
		logger:      logger,
		logEnricher: deps.LogEnricher,
	}
	logger.Info("Login bridge ready", zap.Int("providers", registry.Len()))
	return b, nil
}

// Registry exposes the configured providers.
func (b *Bridge) Registry() *Registry { return b.registry }

// Flow exposes the underlying authorization flow.
func (b *Bridge) Flow() *Flow { return b.flow }

// Index renders the provider chooser, or sends logged-in users to the
// landing page.
func (b *Bridge) Index(ctx context.Context, sess Session) Result {
	authenticated, err := b.flow.authn.Authenticated(ctx, sess)
	if err != nil {
		b.logEnricher(ctx, b.logger).Warn("Failed to read session", zap.Error(err))
	}
	if authenticated {
		return Result{Kind: ResultRedirect, Location: b.landingPath, Event: EventAlreadyAuthenticated}
	}
	return b.render(ctx, sess, ViewIndex)
}

// Providers renders the embeddable provider list.
func (b *Bridge) Providers(ctx context.Context, sess Session) Result {
	return b.render(ctx, sess, ViewProviders)
}

func (b *Bridge) render(ctx context.Context, sess Session, view string) Result {
	msg, err := b.states.TakeFlash(ctx, sess)
	if err != nil {
		b.logEnricher(ctx, b.logger).Warn("Failed to read error flash", zap.Error(err))
	}
	return Result{
		Kind:  ResultRender,
		View:  view,
		Event: EventRendered,
		Data: PageData{
			Providers: b.links(),
			Error:     msg,
			OnlyOauth: b.onlyOauth,
		},
	}
}

func (b *Bridge) links() []ProviderLink {
	providers := b.registry.List()
	links := make([]ProviderLink, 0, len(providers))
	for _, p := range providers {
		links = append(links, ProviderLink{
			Key:   p.Key,
			Label: p.Label(),
			URL:   strings.TrimRight(b.loginPath, "/") + "/" + p.Key,
		})
	}
	return links
}

// Settings reports whether password login should be hidden and whether any
// provider is configured.
func (b *Bridge) Settings() Settings {
	return Settings{OnlyOauth: b.onlyOauth, Enabled: b.registry.Len() > 0}
}

// SettingsResult wraps Settings for the dispatch layer.
func (b *Bridge) SettingsResult() Result {
	return Result{Kind: ResultJSON, Data: b.Settings(), Event: EventRendered}
}

// Login drives the flow for providerKey. The same entry point starts the
// attempt and receives the provider callback.
func (b *Bridge) Login(ctx context.Context, sess Session, providerKey string, p CallbackParams) Result {
	cb, err := b.flow.Callback(ctx, sess, providerKey, p)
	if err != nil {
		return b.fail(ctx, sess, err)
	}

	switch cb.Outcome {
	case OutcomeRestart:
		return Result{Kind: ResultRedirect, Location: cb.RedirectURL, Event: EventRedirected}
	case OutcomeAlreadyAuthenticated:
		return Result{Kind: ResultRedirect, Location: b.landingPath, Event: EventAlreadyAuthenticated}
	}

	id, err := b.normalizer.Normalize(cb.Raw, cb.Provider)
	if err != nil {
		return b.fail(ctx, sess, err)
	}
	if _, err := b.reconciler.Reconcile(ctx, sess, id); err != nil {
		return b.fail(ctx, sess, err)
	}
	return Result{Kind: ResultRedirect, Location: b.landingPath, Event: EventAuthenticated}
}

// fail is the single error path: flash the message, drop flow state and send
// the browser back to the login page.
func (b *Bridge) fail(ctx context.Context, sess Session, err error) Result {
	logger := b.logEnricher(ctx, b.logger).Named("fail")
	logger.Info("Login attempt failed", zap.String("kind", string(KindOf(err))), zap.Error(err))

	if ferr := b.states.Flash(ctx, sess, err.Error()); ferr != nil {
		logger.Warn("Failed to store error flash", zap.Error(ferr))
	}
	if derr := b.states.Discard(ctx, sess); derr != nil {
		logger.Warn("Failed to discard flow state", zap.Error(derr))
	}
	return Result{Kind: ResultRedirect, Location: b.loginPath, Err: err}
}
