// Package filestore persists kv values as flat JSON files, one file per key.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lumenpress/lumenpress/internal/kv"
)

// fileSuffix is appended to every key to form the file name.
const fileSuffix = ".json"

// Store is a directory-backed kv.Store.
type Store struct {
	dir string // Directory holding <key>.json files.
}

// Open prepares dir for use, creating it when missing.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("filestore: empty data dir")
	}
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return nil, fmt.Errorf("filestore: create data dir: %w", errMkdir)
	}
	return &Store{dir: filepath.Clean(dir)}, nil
}

// Get reads <dir>/<key>.json.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	if errCtx := ctx.Err(); errCtx != nil {
		return nil, false, errCtx
	}
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		if errors.Is(errRead, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("filestore: read %s: %w", key, errRead)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, false, nil
	}
	if !json.Valid(data) {
		return nil, false, fmt.Errorf("filestore: %s contains invalid json", key)
	}
	return data, true, nil
}

// Set replaces <dir>/<key>.json through a temp file and rename.
func (s *Store) Set(ctx context.Context, key string, value json.RawMessage) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if errCtx := ctx.Err(); errCtx != nil {
		return errCtx
	}

	var pretty bytes.Buffer
	if errIndent := json.Indent(&pretty, value, "", "  "); errIndent != nil {
		return fmt.Errorf("filestore: encode %s: %w", key, errIndent)
	}
	pretty.WriteByte('\n')

	tmp, errTemp := os.CreateTemp(s.dir, "."+key+"-*.tmp")
	if errTemp != nil {
		return fmt.Errorf("filestore: create temp for %s: %w", key, errTemp)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, errWrite := tmp.Write(pretty.Bytes()); errWrite != nil {
		_ = tmp.Close()
		return fmt.Errorf("filestore: write %s: %w", key, errWrite)
	}
	if errSync := tmp.Sync(); errSync != nil {
		_ = tmp.Close()
		return fmt.Errorf("filestore: sync %s: %w", key, errSync)
	}
	if errClose := tmp.Close(); errClose != nil {
		return fmt.Errorf("filestore: close %s: %w", key, errClose)
	}
	if errRename := os.Rename(tmpName, path); errRename != nil {
		return fmt.Errorf("filestore: replace %s: %w", key, errRename)
	}
	return nil
}

// Ping verifies the data directory is still accessible.
func (s *Store) Ping(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("filestore: stat data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("filestore: %s is not a directory", s.dir)
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// path maps a key to its file path.
func (s *Store) path(key string) (string, error) {
	if err := kv.ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, key+fileSuffix), nil
}
