package auth

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// TraceIDEnricher returns a LogEnricher that adds the string stored in the
// context under key as a "trace_id" field.
func TraceIDEnricher(key any) LogEnricher {
	return func(ctx context.Context, logger *zap.Logger) *zap.Logger {
		if ctx == nil {
			return logger
		}
		if id, ok := ctx.Value(key).(string); ok && id != "" {
			return logger.With(zap.String("trace_id", id))
		}
		return logger
	}
}

// maskEmail keeps the first two characters and the domain: "jo***@x.com".
func maskEmail(email string) string {
	if len(email) < 3 {
		return "***"
	}
	at := strings.IndexByte(email, '@')
	if at < 2 {
		return email[:2] + "***"
	}
	return email[:2] + "***" + email[at:]
}
