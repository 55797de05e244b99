// Package kvstore abstracts the small per-session key-value state this
// service keeps outside the relational store (the cached current-workspace
// pointer). Implementations must be safe for concurrent use.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the key has no value.
var ErrNotFound = errors.New("kvstore: not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
