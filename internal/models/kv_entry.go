package models

import (
	"time"

	"gorm.io/datatypes"
)

// KVEntry stores one whole JSON value under a key.
type KVEntry struct {
	Key       string         `gorm:"type:varchar(255);primaryKey"`                      // Store key, e.g. a resource name.
	Value     datatypes.JSON `gorm:"type:jsonb;not null"`                               // JSON-encoded value.
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime;default:CURRENT_TIMESTAMP"` // Last write timestamp.
}

// TableName pins the table name independent of gorm pluralization.
func (KVEntry) TableName() string { return "kv_entries" }
