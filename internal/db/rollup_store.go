package db

import (
	"context"
	"time"

	"gorm.io/gorm"

	"detectinsight/internal/dashboard"
)

// RollupStore runs the historical dashboard queries against
// daily_branch_rollups. Everything is a sum over precomputed rows, so these
// queries stay cheap no matter how wide the range is.
type RollupStore struct {
	db *gorm.DB
}

func NewRollupStore(db *gorm.DB) *RollupStore {
	return &RollupStore{db: db}
}

func (s *RollupStore) scoped(ctx context.Context, from, to time.Time, branchID *uint) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&DailyBranchRollup{}).
		Where("date BETWEEN ? AND ?", from, to)
	if branchID != nil {
		q = q.Where("branch_id = ?", *branchID)
	}
	return q
}

// Summary sums the rollup aggregates over the range. UniquePersons is
// SUM(unique_subjects), which double-counts subjects seen at more than one
// branch; the realtime path is exact, this one is the documented trade-off.
func (s *RollupStore) Summary(ctx context.Context, from, to time.Time, branchID *uint) (dashboard.Summary, error) {
	var row struct {
		TotalDetections int64
		UniquePersons   int64
		UniqueBranches  int64
		UniqueDevices   int64
	}
	err := s.scoped(ctx, from, to, branchID).
		Select("COALESCE(SUM(total_detections), 0) AS total_detections, " +
			"COALESCE(SUM(unique_subjects), 0) AS unique_persons, " +
			"COUNT(DISTINCT branch_id) AS unique_branches, " +
			"COALESCE(SUM(unique_devices), 0) AS unique_devices").
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

// DailyCounts sums detections per rollup date, ascending.
func (s *RollupStore) DailyCounts(ctx context.Context, from, to time.Time, branchID *uint) ([]dashboard.DailyCount, error) {
	var rows []dashboard.DailyCount
	err := s.scoped(ctx, from, to, branchID).
		Select("to_char(date, 'YYYY-MM-DD') AS date, COALESCE(SUM(total_detections), 0) AS count").
		Group("date").
		Order("date").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// TopBranches sums detections per branch over the range, descending, capped
// at limit.
func (s *RollupStore) TopBranches(ctx context.Context, from, to time.Time, branchID *uint, limit int) ([]dashboard.BranchCount, error) {
	var rows []dashboard.BranchCount
	err := s.scoped(ctx, from, to, branchID).
		Select("branch_id AS branch_id, COALESCE(SUM(total_detections), 0) AS detection_count").
		Group("branch_id").
		Order("SUM(total_detections) DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
