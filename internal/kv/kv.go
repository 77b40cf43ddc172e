// Package kv defines the whole-value key-value store used to persist
// resources, along with the helpers shared by its drivers.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Store driver identifiers.
const (
	// DriverFile stores each key as a JSON file on disk.
	DriverFile = "file"
	// DriverRedis stores keys in a Redis-compatible hosted KV.
	DriverRedis = "redis"
	// DriverDatabase stores keys in a SQL table through gorm.
	DriverDatabase = "database"
	// DriverMemory keeps keys in process memory.
	DriverMemory = "memory"
)

// ErrInvalidKey reports a key that cannot be used as a storage name.
var ErrInvalidKey = errors.New("kv: invalid key")

// Store persists opaque JSON values addressed by key.
// Values are always read and written whole; there are no partial updates.
type Store interface {
	// Get returns the stored value. found is false when the key was never set.
	Get(ctx context.Context, key string) (value json.RawMessage, found bool, err error)
	// Set overwrites the value stored under key.
	Set(ctx context.Context, key string, value json.RawMessage) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// ValidateKey rejects keys that are empty or could escape a namespace.
func ValidateKey(key string) error {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" || trimmed != key {
		return ErrInvalidKey
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}

// Clone returns a copy of raw so callers cannot alias stored bytes.
func Clone(raw []byte) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}
