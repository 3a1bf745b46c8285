// Package store persists source buffers keyed by question.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("store: not found")

// KeyPrefix is prepended to the question identifier.
const KeyPrefix = "savedCode"

// Key returns the storage key of a question's source buffer.
func Key(questionID string) string {
	return KeyPrefix + questionID
}

// Store is a string key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type scoped struct {
	prefix string
	inner  Store
}

// Scoped returns a view of s whose keys are all prefixed with prefix.
func Scoped(s Store, prefix string) Store {
	return &scoped{prefix: prefix, inner: s}
}

func (s *scoped) Get(ctx context.Context, key string) (string, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *scoped) Set(ctx context.Context, key, value string) error {
	return s.inner.Set(ctx, s.prefix+key, value)
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}
