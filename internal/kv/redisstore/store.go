// Package redisstore persists kv values in a Redis-compatible server.
// Hosted KV offerings (Vercel KV, Upstash) speak this protocol over rediss://.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lumenpress/lumenpress/internal/kv"
	"github.com/redis/go-redis/v9"
)

// Options configures the Redis connection.
type Options struct {
	URL          string        // redis:// or rediss:// connection URL.
	DialTimeout  time.Duration // Optional dial timeout override.
	ReadTimeout  time.Duration // Optional read timeout override.
	WriteTimeout time.Duration // Optional write timeout override.
}

// Store is a Redis-backed kv.Store.
type Store struct {
	client redis.UniversalClient
}

// Open connects to the server described by opts and pings it.
func Open(ctx context.Context, opts Options) (*Store, error) {
	clientOpts, err := clientOptions(opts)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(clientOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping: %w", errPing)
	}
	return &Store{client: client}, nil
}

// New wraps an existing client.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// clientOptions parses the URL and applies timeout overrides.
func clientOptions(opts Options) (*redis.Options, error) {
	rawURL := strings.TrimSpace(opts.URL)
	if rawURL == "" {
		return nil, fmt.Errorf("redisstore: empty url")
	}
	parsed, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse url: %w", err)
	}
	if opts.DialTimeout > 0 {
		parsed.DialTimeout = opts.DialTimeout
	}
	if opts.ReadTimeout > 0 {
		parsed.ReadTimeout = opts.ReadTimeout
	}
	if opts.WriteTimeout > 0 {
		parsed.WriteTimeout = opts.WriteTimeout
	}
	return parsed, nil
}

// Get fetches the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return nil, false, err
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redisstore: get %s: %w", key, err)
	}
	if !json.Valid(data) {
		return nil, false, fmt.Errorf("redisstore: %s contains invalid json", key)
	}
	return data, true, nil
}

// Set stores value under key without expiry.
func (s *Store) Set(ctx context.Context, key string, value json.RawMessage) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}
	if errSet := s.client.Set(ctx, key, []byte(value), 0).Err(); errSet != nil {
		return fmt.Errorf("redisstore: set %s: %w", key, errSet)
	}
	return nil
}

// Ping checks server connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
