package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Mattszczp/kirby-oauth/internal/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// requestID assigns every request an id, echoes it in the response and
// stores it with a scoped logger in the context.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := logger.WithRequestID(r.Context(), id)
		ctx = logger.ToContext(ctx, s.logger.With(zap.String("trace_id", id)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLog logs request details once the handler has finished.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routeLabel(r)
		logger.From(r.Context(), s.logger).Info("HTTP Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)),
		)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.ObserveRequest(route, r.Method, strconv.Itoa(status))
		}
	})
}
