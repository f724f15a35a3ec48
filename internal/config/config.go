// Package config loads the login bridge configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Mattszczp/kirby-oauth/pkg/auth"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
		// PublicURL is the externally visible origin, e.g. https://cms.example.com.
		PublicURL   string `yaml:"public_url"`
		LoginPath   string `yaml:"login_path"`
		LandingPath string `yaml:"landing_path"`
		// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
		// Enable only behind a proxy that overwrites those headers.
		TrustProxy bool `yaml:"trust_proxy"`
	} `yaml:"server"`

	Log struct {
		Env   string `yaml:"env"`
		Level string `yaml:"level"`
	} `yaml:"log"`

	Session struct {
		Driver     string        `yaml:"driver"` // memory | redis
		CookieName string        `yaml:"cookie_name"`
		Secure     bool          `yaml:"secure"`
		TTL        time.Duration `yaml:"ttl"`
		Redis      struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"session"`

	Users struct {
		Driver     string `yaml:"driver"` // memory | postgres
		DSN        string `yaml:"dsn"`
		BcryptCost int    `yaml:"bcrypt_cost"`
		// Seed accounts are created at start-up when missing.
		Seed []SeedUser `yaml:"seed"`
	} `yaml:"users"`

	OAuth OAuth `yaml:"oauth"`
}

type SeedUser struct {
	Email string `yaml:"email"`
	Name  string `yaml:"name"`
	Role  string `yaml:"role"`
}

type OAuth struct {
	OnlyOauth         bool          `yaml:"only_oauth"`
	OnlyExistingUsers bool          `yaml:"only_existing_users"`
	AllowEveryone     bool          `yaml:"allow_everyone"`
	EmailWhitelist    []string      `yaml:"email_whitelist"`
	DomainWhitelist   []string      `yaml:"domain_whitelist"`
	DefaultRole       string        `yaml:"default_role"`
	ProviderTimeout   time.Duration `yaml:"provider_timeout"`
	Providers         []Provider    `yaml:"providers"`
}

// Provider is one configured identity provider. Kind selects the preset; it
// defaults to the key when the key names a known preset, else "generic".
type Provider struct {
	Key                   string            `yaml:"key"`
	Kind                  string            `yaml:"kind"`
	Name                  string            `yaml:"name"`
	ClientID              string            `yaml:"client_id"`
	ClientSecret          string            `yaml:"client_secret"`
	Scopes                []string          `yaml:"scopes"`
	Tenant                string            `yaml:"tenant"`
	Domain                string            `yaml:"domain"`
	AuthorizationEndpoint string            `yaml:"authorization_endpoint"`
	TokenEndpoint         string            `yaml:"token_endpoint"`
	UserinfoEndpoint      string            `yaml:"userinfo_endpoint"`
	Attributes            auth.AttributeMap `yaml:"attributes"`
	AlwaysVerified        bool              `yaml:"always_verified"`
}

// Default returns the configuration used for every unset field.
func Default() *Config {
	var c Config
	c.Server.Addr = ":8080"
	c.Server.PublicURL = "http://localhost:8080"
	c.Server.LoginPath = "/login"
	c.Server.LandingPath = "/panel"
	c.Log.Env = "dev"
	c.Log.Level = "info"
	c.Session.Driver = "memory"
	c.Session.CookieName = "lb_sid"
	c.Session.TTL = 12 * time.Hour
	c.Session.Redis.Prefix = "loginbridge"
	c.Users.Driver = "memory"
	c.Users.BcryptCost = 10
	c.OAuth.DefaultRole = auth.DefaultRole
	c.OAuth.ProviderTimeout = 10 * time.Second
	return &c
}

// Load reads path (optional), expands ${VAR} references, applies LB_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
		return nil
	}

	str("LB_SERVER_ADDR", &c.Server.Addr)
	str("LB_PUBLIC_URL", &c.Server.PublicURL)
	str("LB_LOG_ENV", &c.Log.Env)
	str("LB_LOG_LEVEL", &c.Log.Level)
	str("LB_SESSION_DRIVER", &c.Session.Driver)
	str("LB_REDIS_ADDR", &c.Session.Redis.Addr)
	str("LB_REDIS_PASSWORD", &c.Session.Redis.Password)
	str("LB_USERS_DRIVER", &c.Users.Driver)
	str("LB_DATABASE_DSN", &c.Users.DSN)
	str("LB_DEFAULT_ROLE", &c.OAuth.DefaultRole)

	if v, ok := lookup("LB_SESSION_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LB_SESSION_TTL: %w", err)
		}
		c.Session.TTL = d
	}
	if err := boolean("LB_TRUST_PROXY", &c.Server.TrustProxy); err != nil {
		return err
	}
	if err := boolean("LB_SESSION_SECURE", &c.Session.Secure); err != nil {
		return err
	}
	if err := boolean("LB_ONLY_OAUTH", &c.OAuth.OnlyOauth); err != nil {
		return err
	}
	if err := boolean("LB_ONLY_EXISTING_USERS", &c.OAuth.OnlyExistingUsers); err != nil {
		return err
	}
	return boolean("LB_ALLOW_EVERYONE", &c.OAuth.AllowEveryone)
}

// Validate checks the configuration, including that every provider builds.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if u, err := url.Parse(c.Server.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.public_url must be an absolute URL, got %q", c.Server.PublicURL))
	}
	if !strings.HasPrefix(c.Server.LoginPath, "/") || !strings.HasPrefix(c.Server.LandingPath, "/") {
		errs = append(errs, errors.New("server.login_path and server.landing_path must start with /"))
	}

	switch c.Session.Driver {
	case "memory":
	case "redis":
		if c.Session.Redis.Addr == "" {
			errs = append(errs, errors.New("session.redis.addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session driver %q", c.Session.Driver))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name is required"))
	}

	switch c.Users.Driver {
	case "memory":
	case "postgres":
		if c.Users.DSN == "" {
			errs = append(errs, errors.New("users.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown users driver %q", c.Users.Driver))
	}
	for i, u := range c.Users.Seed {
		if strings.TrimSpace(u.Email) == "" {
			errs = append(errs, fmt.Errorf("users.seed[%d]: email is required", i))
		}
	}

	if _, err := c.Presets(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Presets builds the provider presets in configuration order.
func (c *Config) Presets() ([]auth.Preset, error) {
	presets := make([]auth.Preset, 0, len(c.OAuth.Providers))
	configs := make([]auth.ProviderConfig, 0, len(c.OAuth.Providers))
	for i, p := range c.OAuth.Providers {
		preset, err := auth.BuildPreset(p.Kind, auth.PresetOptions{
			Key:                   p.Key,
			DisplayName:           p.Name,
			ClientID:              p.ClientID,
			ClientSecret:          p.ClientSecret,
			Scopes:                p.Scopes,
			Tenant:                p.Tenant,
			Domain:                p.Domain,
			AuthorizationEndpoint: p.AuthorizationEndpoint,
			TokenEndpoint:         p.TokenEndpoint,
			UserinfoEndpoint:      p.UserinfoEndpoint,
			Attributes:            p.Attributes,
			AlwaysVerified:        p.AlwaysVerified,
		})
		if err != nil {
			return nil, fmt.Errorf("oauth.providers[%d]: %w", i, err)
		}
		presets = append(presets, preset)
		configs = append(configs, preset.Config)
	}
	if _, err := auth.NewRegistry(configs...); err != nil {
		return nil, err
	}
	return presets, nil
}

// Policy returns the access policy settings.
func (c *Config) Policy() auth.PolicyConfig {
	return auth.PolicyConfig{
		OnlyExistingUsers: c.OAuth.OnlyExistingUsers,
		AllowEveryone:     c.OAuth.AllowEveryone,
		EmailWhitelist:    c.OAuth.EmailWhitelist,
		DomainWhitelist:   c.OAuth.DomainWhitelist,
	}
}

// RedirectBaseURL is the absolute URL of the login entry point.
func (c *Config) RedirectBaseURL() string {
	return strings.TrimRight(c.Server.PublicURL, "/") + c.Server.LoginPath
}
