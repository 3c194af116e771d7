package models

import (
	"time"
)

// DefaultCollection is the table (or bucket) name used when none is configured.
const DefaultCollection = "rails_cache_store"

// Entry represents one cached value in the store
type Entry struct {
	Key       string    `json:"key" gorm:"column:cache_key;primaryKey;size:512"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"column:expires_at;not null"`
	Payload   []byte    `json:"-" gorm:"column:payload;type:blob"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the default table name for Entry Model
func (Entry) TableName() string {
	return DefaultCollection
}

// ExpiredAt reports whether the entry is stale at the given instant.
func (e *Entry) ExpiredAt(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}
