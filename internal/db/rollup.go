package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
)

// ErrRefreshFailed wraps any rollup refresh failure. The previous rollup
// content is left untouched when it is returned, so historical reads keep
// serving last-good data.
var ErrRefreshFailed = errors.New("rollup refresh failed")

// RefreshResult reports one completed refresh run.
type RefreshResult struct {
	RefreshedCount int           `json:"refreshed_count"`
	Duration       time.Duration `json:"-"`
	DurationMs     int64         `json:"duration_ms"`
}

// RollupRefresher rebuilds daily_branch_rollups from detection_events for a
// trailing window of days. It is the sole writer to the rollup table.
type RollupRefresher struct {
	db         *gorm.DB
	windowDays int

	// onRefresh runs after a successful refresh, used to flush the result
	// cache so historical reads pick up the new rows.
	onRefresh func()

	mu sync.Mutex
}

func NewRollupRefresher(db *gorm.DB, windowDays int, onRefresh func()) *RollupRefresher {
	if windowDays <= 0 {
		windowDays = 7
	}
	return &RollupRefresher{db: db, windowDays: windowDays, onRefresh: onRefresh}
}

// Refresh recomputes the rollups for the trailing window (today-windowDays
// up to and including yesterday; days older than the window are settled and
// never touched again). The window is rewritten in one transaction, so a
// concurrent reader sees either the old rows or the new rows, never a mix,
// and a failed run leaves prior content intact. Running it twice with no new
// events produces identical table content.
func (r *RollupRefresher) Refresh(ctx context.Context) (RefreshResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	today := dateOf(start.UTC())
	windowStart := today.AddDate(0, 0, -r.windowDays)

	var events []DetectionEvent
	if err := r.db.WithContext(ctx).
		Where("detected_at >= ? AND detected_at < ?", windowStart, today).
		Select("re_id", "branch_id", "device_id", "detected_at").
		Find(&events).Error; err != nil {
		return RefreshResult{}, fmt.Errorf("%w: loading events: %v", ErrRefreshFailed, err)
	}

	rows := buildDailyRollups(events)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("date >= ? AND date < ?", windowStart, today).
			Delete(&DailyBranchRollup{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return RefreshResult{}, fmt.Errorf("%w: rewriting window: %v", ErrRefreshFailed, err)
	}

	if r.onRefresh != nil {
		r.onRefresh()
	}

	d := time.Since(start)
	return RefreshResult{RefreshedCount: len(rows), Duration: d, DurationMs: d.Milliseconds()}, nil
}

// buildDailyRollups groups raw events into per-(date, branch) rollup rows.
// Output is sorted by date then branch id and is deterministic for a given
// event set, which is what makes Refresh idempotent.
func buildDailyRollups(events []DetectionEvent) []DailyBranchRollup {
	type key struct {
		date     time.Time
		branchID uint
	}
	type cell struct {
		total    int64
		subjects map[string]struct{}
		devices  map[string]struct{}
	}

	cells := make(map[key]*cell)
	for _, e := range events {
		k := key{date: dateOf(e.DetectedAt.UTC()), branchID: e.BranchID}
		c := cells[k]
		if c == nil {
			c = &cell{subjects: make(map[string]struct{}), devices: make(map[string]struct{})}
			cells[k] = c
		}
		c.total++
		c.subjects[e.ReID] = struct{}{}
		c.devices[e.DeviceID] = struct{}{}
	}

	rows := make([]DailyBranchRollup, 0, len(cells))
	for k, c := range cells {
		rows = append(rows, DailyBranchRollup{
			Date:            k.date,
			BranchID:        k.branchID,
			TotalDetections: c.total,
			UniqueSubjects:  int64(len(c.subjects)),
			UniqueDevices:   int64(len(c.devices)),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].BranchID < rows[j].BranchID
	})
	return rows
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StartRollupWorker launches a background goroutine that refreshes the
// rollups once at startup and then once per day. On-demand refreshes go
// through the admin endpoint and share the refresher's lock.
func StartRollupWorker(r *RollupRefresher) {
	go func() {
		run := func() {
			res, err := r.Refresh(context.Background())
			if err != nil {
				log.Printf("rollup refresh error: %v", err)
				return
			}
			log.Printf("rollup refresh: %d rows in %s", res.RefreshedCount, res.Duration)
		}

		run()

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			run()
		}
	}()
}
