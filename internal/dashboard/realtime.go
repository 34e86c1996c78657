package dashboard

import (
	"context"
	"time"
)

// topBranchLimit caps the top-branches list on both paths.
const topBranchLimit = 5

// RealtimeAggregator serves ranges ending today or yesterday by scanning
// raw detection events directly. Counts are exact, including distinct
// subject counts across branches.
type RealtimeAggregator struct {
	events   EventStore
	branches BranchDirectory
}

func NewRealtimeAggregator(events EventStore, branches BranchDirectory) *RealtimeAggregator {
	return &RealtimeAggregator{events: events, branches: branches}
}

// Aggregate runs the three event-store queries for q and shapes the result.
// Any store error is wrapped as a retryable AggregationError and nothing is
// cached by the caller.
func (a *RealtimeAggregator) Aggregate(ctx context.Context, q Query) (*Result, error) {
	from := q.DateFrom
	to := endOfDay(q.DateTo)

	sum, err := a.events.Summary(ctx, from, to, q.BranchID)
	if err != nil {
		return nil, &AggregationError{Mode: ModeRealtime, Err: err}
	}
	daily, err := a.events.DailyCounts(ctx, from, to, q.BranchID)
	if err != nil {
		return nil, &AggregationError{Mode: ModeRealtime, Err: err}
	}
	top, err := a.events.TopBranches(ctx, from, to, q.BranchID, topBranchLimit)
	if err != nil {
		return nil, &AggregationError{Mode: ModeRealtime, Err: err}
	}
	top, err = resolveBranchNames(ctx, a.branches, top)
	if err != nil {
		return nil, &AggregationError{Mode: ModeRealtime, Err: err}
	}

	trend, maxCount := fillDailyTrend(daily, q.DateFrom, q.DateTo)
	return &Result{
		TotalDetections: sum.TotalDetections,
		UniquePersons:   sum.UniquePersons,
		UniqueBranches:  sum.UniqueBranches,
		UniqueDevices:   sum.UniqueDevices,
		DailyTrend:      trend,
		MaxDailyCount:   maxCount,
		TopBranches:     top,
		DataMode:        ModeRealtime,
	}, nil
}

// endOfDay returns the last second of d's calendar day, matching the
// inclusive dateTo contract of the event store scan.
func endOfDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, d.Location())
}
