// Package secret resolves opaque secret keys to their current values.
//
// Several backends implement Resolver: the process environment, the persisted
// secrets table, and a fixed in-memory map for tests and fixtures. Nothing is
// cached, so a rotated secret is picked up on the next call.
package secret

import (
	"context"
	"errors"
	"fmt"
)

// Resolver maps a secret key to its value.
//
// Implementations must be safe for concurrent use and must not log values.
type Resolver interface {
	Secret(ctx context.Context, key string) (string, error)
}

// Kind classifies a resolution failure.
type Kind int

const (
	// KindNotFound means the backend has no value for the key.
	KindNotFound Kind = iota + 1
	// KindStore means the backend itself failed.
	KindStore
)

var (
	ErrNotFound = errors.New("secret not found")
	ErrStore    = errors.New("secret store error")
)

// Error is returned by every Resolver in this package.
type Error struct {
	Kind Kind
	Key  string
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("secret not found: %s", e.Key)
	case KindStore:
		return fmt.Sprintf("secret store error: %v", e.Err)
	default:
		return fmt.Sprintf("secret %q: %v", e.Key, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers match on ErrNotFound and ErrStore.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrStore:
		return e.Kind == KindStore
	}
	return false
}

// NotFound returns a KindNotFound error for key.
func NotFound(key string) error {
	return &Error{Kind: KindNotFound, Key: key}
}

// StoreFailure wraps a backend failure for key.
func StoreFailure(key string, err error) error {
	return &Error{Kind: KindStore, Key: key, Err: err}
}
