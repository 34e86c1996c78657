package db

import (
	"time"

	"gorm.io/datatypes"
)

// DetectionEvent is one person-detection reported by a branch CCTV
// deployment. Rows are append-only from this service's perspective; the
// dashboard only ever reads them.
type DetectionEvent struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	// ExpiresAt is the timestamp after which this event is eligible for
	// deletion by the retention worker. A nil value means the event does
	// not currently expire.
	ExpiresAt *time.Time `gorm:"index"`

	// ReID is the re-identification id of the detected person, stable for
	// one subject across devices and branches.
	ReID string `gorm:"column:re_id;index;size:128;not null"`

	BranchID uint   `gorm:"index;not null"`
	DeviceID string `gorm:"index;size:128;not null"`

	// DetectedAt is when the camera saw the subject, as reported by the
	// ingestion pipeline. All range scans key off this, not CreatedAt.
	DetectedAt time.Time `gorm:"index;not null"`

	// Attributes holds arbitrary key/value pairs for this detection
	// (e.g. camera zone, confidence, appearance tags) so pipelines can
	// attach extra data without schema changes.
	Attributes datatypes.JSONMap `gorm:"type:json"`
}

// DailyBranchRollup is the precomputed per-day per-branch aggregate the
// historical dashboard path reads. Rebuilt by the rollup refresher; only
// eventually consistent with detection_events between refreshes. UniqueSubjects
// and UniqueDevices are distinct counts within one (date, branch) cell, so
// summing them across rows over-counts subjects seen at several branches.
type DailyBranchRollup struct {
	ID uint `gorm:"primaryKey"`

	Date     time.Time `gorm:"type:date;uniqueIndex:idx_daily_branch_rollup,priority:1;not null"`
	BranchID uint      `gorm:"uniqueIndex:idx_daily_branch_rollup,priority:2;not null"`

	TotalDetections int64 `gorm:"not null"`
	UniqueSubjects  int64 `gorm:"not null"`
	UniqueDevices   int64 `gorm:"not null"`
}
