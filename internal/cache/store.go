// Package cache keeps reference data shared across sessions, such as the user
// directory, so every open tab does not refetch it.
package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var ErrMiss = errors.New("cache miss")

// Store is a byte-oriented TTL cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
