// Package metrics exposes login bridge counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/Mattszczp/kirby-oauth/pkg/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry      *prometheus.Registry
	loginAttempts *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, along with the Go runtime
// and process collectors.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loginbridge_login_attempts_total",
			Help: "Login entry point results by provider and outcome",
		}, []string{"provider", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loginbridge_http_requests_total",
			Help: "HTTP requests by route pattern, method and status",
		}, []string{"route", "method", "status"}),
	}
	for _, c := range []prometheus.Collector{
		m.loginAttempts,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registerCollector(reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return err
	}
	return nil
}

// Outcome labels a bridge result: its event on success, the error kind on
// failure.
func Outcome(res auth.Result) string {
	if res.Err != nil {
		if kind := auth.KindOf(res.Err); kind != "" {
			return string(kind)
		}
		return "error"
	}
	if res.Event == "" {
		return "unknown"
	}
	return res.Event
}

// ObserveLogin counts one pass through the login entry point.
func (m *Metrics) ObserveLogin(provider string, res auth.Result) {
	m.loginAttempts.WithLabelValues(provider, Outcome(res)).Inc()
}

// LoginAttempts exposes the login counter for inspection.
func (m *Metrics) LoginAttempts() *prometheus.CounterVec { return m.loginAttempts }

// ObserveRequest counts one HTTP request.
func (m *Metrics) ObserveRequest(route, method, status string) {
	m.httpRequests.WithLabelValues(route, method, status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
