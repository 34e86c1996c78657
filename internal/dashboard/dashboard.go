// Package dashboard implements the detection statistics engine: it routes a
// date-range query to either the raw event store (recent ranges) or the
// precomputed daily rollups (settled ranges), shapes the result, and caches
// it under a TTL chosen by the caller.
package dashboard

import (
	"context"
	"fmt"
	"time"
)

// DataMode identifies which data path produced a Result.
type DataMode string

const (
	ModeRealtime   DataMode = "realtime"
	ModeHistorical DataMode = "historical"
)

// Query describes one dashboard request. DateFrom and DateTo are calendar
// dates (midnight UTC), DateTo inclusive. A nil BranchID means no branch
// filter; this is deliberately a pointer so "no filter" and "branch 0" can
// never be confused.
type Query struct {
	DateFrom time.Time
	DateTo   time.Time
	BranchID *uint
}

// CacheKey builds the deterministic cache key for this query under the given
// namespace ("dashboard", "export"). Identical queries always map to the
// same key; distinct ones never collide because the three parts are
// fixed-format and joined with separators that cannot appear inside them.
func (q Query) CacheKey(namespace string) string {
	branch := "all"
	if q.BranchID != nil {
		branch = fmt.Sprintf("%d", *q.BranchID)
	}
	return fmt.Sprintf("%s_%s_%s_%s",
		namespace, q.DateFrom.Format(dateLayout), q.DateTo.Format(dateLayout), branch)
}

const dateLayout = "2006-01-02"

// DailyCount is one point of the daily trend chart.
type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// BranchCount is one entry of the top-branches list. BranchName is resolved
// from the branch directory and may be empty for unknown branch ids.
type BranchCount struct {
	BranchID       uint   `json:"branch_id"`
	BranchName     string `json:"branch_name"`
	DetectionCount int64  `json:"detection_count"`
}

// Summary holds the four headline numbers of a dashboard result.
type Summary struct {
	TotalDetections int64
	UniquePersons   int64
	UniqueBranches  int64
	UniqueDevices   int64
}

// Result is the full dashboard payload. Immutable once produced; cached
// entries are replaced, never mutated in place.
type Result struct {
	TotalDetections int64         `json:"total_detections"`
	UniquePersons   int64         `json:"unique_persons"`
	UniqueBranches  int64         `json:"unique_branches"`
	UniqueDevices   int64         `json:"unique_devices"`
	DailyTrend      []DailyCount  `json:"daily_trend"`
	MaxDailyCount   int64         `json:"max_daily_count"`
	TopBranches     []BranchCount `json:"top_branches"`
	DataMode        DataMode      `json:"data_mode"`
}

// EventStore is the raw detection event collaborator. Timestamps passed to
// it span [dateFrom 00:00:00, dateTo 23:59:59] inclusive.
type EventStore interface {
	Summary(ctx context.Context, from, to time.Time, branchID *uint) (Summary, error)
	DailyCounts(ctx context.Context, from, to time.Time, branchID *uint) ([]DailyCount, error)
	TopBranches(ctx context.Context, from, to time.Time, branchID *uint, limit int) ([]BranchCount, error)
}

// RollupStore is the precomputed per-day per-branch aggregate collaborator.
// Dates passed to it are calendar dates, both ends inclusive.
type RollupStore interface {
	Summary(ctx context.Context, from, to time.Time, branchID *uint) (Summary, error)
	DailyCounts(ctx context.Context, from, to time.Time, branchID *uint) ([]DailyCount, error)
	TopBranches(ctx context.Context, from, to time.Time, branchID *uint, limit int) ([]BranchCount, error)
}

// BranchDirectory resolves branch ids to display names for decorating the
// top-branches list.
type BranchDirectory interface {
	Names(ctx context.Context, ids []uint) (map[uint]string, error)
}

// ResultCache is the time-bounded memoization layer. GetOrCompute returns
// the cached value when present, otherwise runs compute with at most one
// concurrent execution per key. The bool reports whether the value came from
// cache. Implementations backed by an external service should return
// ErrCacheUnavailable (possibly wrapped) when the backend is down so the
// service can degrade to computing directly.
type ResultCache interface {
	GetOrCompute(key string, ttl time.Duration, compute func() (any, error)) (any, bool, error)
	Forget(key string)
	FlushAll()
}
