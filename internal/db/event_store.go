package db

import (
	"context"
	"time"

	"gorm.io/gorm"

	"detectinsight/internal/dashboard"
)

// EventStore runs the realtime dashboard queries directly against
// detection_events. All counts are exact; these scans are the expensive path
// and are only used for ranges ending today or yesterday.
type EventStore struct {
	db *gorm.DB
}

func NewEventStore(db *gorm.DB) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) scoped(ctx context.Context, from, to time.Time, branchID *uint) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&DetectionEvent{}).
		Where("detected_at BETWEEN ? AND ?", from, to)
	if branchID != nil {
		q = q.Where("branch_id = ?", *branchID)
	}
	return q
}

// Summary returns the headline counts for the window in one query.
func (s *EventStore) Summary(ctx context.Context, from, to time.Time, branchID *uint) (dashboard.Summary, error) {
	var row struct {
		TotalDetections int64
		UniquePersons   int64
		UniqueBranches  int64
		UniqueDevices   int64
	}
	err := s.scoped(ctx, from, to, branchID).
		Select("COUNT(*) AS total_detections, " +
			"COUNT(DISTINCT re_id) AS unique_persons, " +
			"COUNT(DISTINCT branch_id) AS unique_branches, " +
			"COUNT(DISTINCT device_id) AS unique_devices").
		Scan(&row).Error
	if err != nil {
		return dashboard.Summary{}, err
	}
	return dashboard.Summary{
		TotalDetections: row.TotalDetections,
		UniquePersons:   row.UniquePersons,
		UniqueBranches:  row.UniqueBranches,
		UniqueDevices:   row.UniqueDevices,
	}, nil
}

// DailyCounts groups matching events by calendar date, ascending. Dates with
// no events are absent; the aggregator gap-fills them.
func (s *EventStore) DailyCounts(ctx context.Context, from, to time.Time, branchID *uint) ([]dashboard.DailyCount, error) {
	// Raw so GROUP BY is never parameterized, same as the traffic series
	// queries this grew out of.
	sql := `SELECT to_char(date_trunc('day', detected_at), 'YYYY-MM-DD') AS date, count(*) AS count
		FROM detection_events WHERE detected_at BETWEEN ? AND ?`
	args := []any{from, to}
	if branchID != nil {
		sql += ` AND branch_id = ?`
		args = append(args, *branchID)
	}
	sql += ` GROUP BY date_trunc('day', detected_at) ORDER BY 1`

	var rows []dashboard.DailyCount
	if err := s.db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// TopBranches returns the busiest branches in the window, descending by
// event count, capped at limit. Names are resolved by the caller.
func (s *EventStore) TopBranches(ctx context.Context, from, to time.Time, branchID *uint, limit int) ([]dashboard.BranchCount, error) {
	var rows []dashboard.BranchCount
	err := s.scoped(ctx, from, to, branchID).
		Select("branch_id AS branch_id, count(*) AS detection_count").
		Group("branch_id").
		Order("count(*) DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
