package models

import "time"

// CacheEntry is a row of the SQL key-value store backing persisted flags and
// rate limit windows. A zero ExpiresAt never expires.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Value     []byte
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
