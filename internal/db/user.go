package db

import (
	"time"
)

// User is an operator account that can call the admin endpoints and own
// ingest API keys. The bootstrap admin (from env) is created as a row in
// this table on startup.
type User struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"size:255;not null"`

	// IsAdmin marks users allowed to trigger rollup refreshes and cache
	// resets. The bootstrap admin has IsAdmin=true.
	IsAdmin bool `gorm:"default:false"`
}
