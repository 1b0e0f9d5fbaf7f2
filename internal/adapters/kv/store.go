// Package kv provides small local key-value stores for device state such as
// the signed-in session.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when a key is absent.
var ErrNotFound = errors.New("kv: key not found")

// Store is a string key-value store. Implementations are safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
