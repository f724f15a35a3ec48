// Package session keeps per-browser state for the login bridge behind a
// cookie-held session id, in memory or in Redis.
package session

import (
	"context"
	"time"
)

// Backend stores session values. Keys are already namespaced by session id.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Take reads and deletes key atomically.
	Take(ctx context.Context, key string) (string, bool, error)
	Ping(ctx context.Context) error
	Close() error
}
