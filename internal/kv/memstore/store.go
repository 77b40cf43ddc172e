// Package memstore keeps kv values in process memory.
// It is meant for local development and tests; nothing survives a restart.
package memstore

import (
	"context"
	"encoding/json"

	"github.com/lumenpress/lumenpress/internal/kv"
	"github.com/puzpuzpuz/xsync/v3"
)

// Store is an in-memory kv.Store.
type Store struct {
	values *xsync.MapOf[string, []byte]
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{values: xsync.NewMapOf[string, []byte]()}
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return nil, false, err
	}
	raw, ok := s.values.Load(key)
	if !ok {
		return nil, false, nil
	}
	return kv.Clone(raw), true, nil
}

// Set stores a copy of value under key.
func (s *Store) Set(_ context.Context, key string, value json.RawMessage) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}
	s.values.Store(key, kv.Clone(value))
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close drops all values.
func (s *Store) Close() error {
	s.values.Clear()
	return nil
}
