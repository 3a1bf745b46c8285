package store

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

// Memory is an in-process store.
type Memory struct {
	m *xsync.MapOf[string, string]
}

func NewMemory() *Memory {
	return &Memory{m: xsync.NewMapOf[string, string]()}
}

func (s *Memory) Get(ctx context.Context, key string) (string, error) {
	v, ok := s.m.Load(key)
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *Memory) Set(ctx context.Context, key, value string) error {
	s.m.Store(key, value)
	return nil
}

func (s *Memory) Delete(ctx context.Context, key string) error {
	s.m.Delete(key)
	return nil
}

// Len returns the number of stored keys.
func (s *Memory) Len() int {
	return s.m.Size()
}
