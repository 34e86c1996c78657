package dashboard

import (
	"context"
	"time"
)

// fillDailyTrend expands sparse per-day counts into one entry per calendar
// date in [from, to], zero where no events matched. The dashboard chart
// relies on there being no gaps.
func fillDailyTrend(counts []DailyCount, from, to time.Time) (trend []DailyCount, maxCount int64) {
	byDate := make(map[string]int64, len(counts))
	for _, c := range counts {
		byDate[c.Date] = c.Count
	}

	days := int(to.Sub(from).Hours()/24) + 1
	trend = make([]DailyCount, 0, days)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := d.Format(dateLayout)
		count := byDate[key]
		trend = append(trend, DailyCount{Date: key, Count: count})
		if count > maxCount {
			maxCount = count
		}
	}
	// Never zero: chart bars are scaled by maxCount and must not divide by it.
	if maxCount < 1 {
		maxCount = 1
	}
	return trend, maxCount
}

// resolveBranchNames decorates top-branch entries with display names from
// the directory. Unknown ids keep an empty name.
func resolveBranchNames(ctx context.Context, dir BranchDirectory, top []BranchCount) ([]BranchCount, error) {
	if len(top) == 0 {
		return top, nil
	}
	ids := make([]uint, 0, len(top))
	for _, b := range top {
		ids = append(ids, b.BranchID)
	}
	names, err := dir.Names(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range top {
		top[i].BranchName = names[top[i].BranchID]
	}
	return top, nil
}
