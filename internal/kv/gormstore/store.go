// Package gormstore persists kv values in a SQL table through gorm.
// Both SQLite and PostgreSQL are supported; see internal/db for DSN handling.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lumenpress/lumenpress/internal/kv"
	"github.com/lumenpress/lumenpress/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is a gorm-backed kv.Store.
type Store struct {
	db *gorm.DB // Database handle holding the kv_entries table.
}

// New wraps an open, migrated connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get loads the row for key.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return nil, false, err
	}
	var row models.KVEntry
	errFind := s.db.WithContext(ctx).Select("key", "value").Where("key = ?", key).Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("gormstore: get %s: %w", key, errFind)
	}
	return kv.Clone(row.Value), true, nil
}

// Set upserts the row for key.
func (s *Store) Set(ctx context.Context, key string, value json.RawMessage) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}
	if !json.Valid(value) {
		return fmt.Errorf("gormstore: set %s: invalid json", key)
	}
	row := models.KVEntry{
		Key:       key,
		Value:     datatypes.JSON(kv.Clone(value)),
		UpdatedAt: time.Now().UTC(),
	}
	errCreate := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if errCreate != nil {
		return fmt.Errorf("gormstore: set %s: %w", key, errCreate)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying sql.DB.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
