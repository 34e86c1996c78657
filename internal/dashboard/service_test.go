package dashboard_test

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"detectinsight/internal/cache"
	"detectinsight/internal/dashboard"
)

// =============================================================================
// TEST FAKES
// =============================================================================

type fakeEvent struct {
	reID     string
	branchID uint
	deviceID string
	at       time.Time
}

// fakeEventStore mirrors the raw-event SQL semantics over a slice: exact
// counts, COUNT(DISTINCT ...) across the whole window.
type fakeEventStore struct {
	events  []fakeEvent
	err     error
	queries int64
}

func (s *fakeEventStore) match(from, to time.Time, branchID *uint) []fakeEvent {
	var out []fakeEvent
	for _, e := range s.events {
		if e.at.Before(from) || e.at.After(to) {
			continue
		}
		if branchID != nil && e.branchID != *branchID {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *fakeEventStore) Summary(_ context.Context, from, to time.Time, branchID *uint) (dashboard.Summary, error) {
	atomic.AddInt64(&s.queries, 1)
	if s.err != nil {
		return dashboard.Summary{}, s.err
	}
	subjects := map[string]struct{}{}
	branches := map[uint]struct{}{}
	devices := map[string]struct{}{}
	var total int64
	for _, e := range s.match(from, to, branchID) {
		total++
		subjects[e.reID] = struct{}{}
		branches[e.branchID] = struct{}{}
		devices[e.deviceID] = struct{}{}
	}
	return dashboard.Summary{
		TotalDetections: total,
		UniquePersons:   int64(len(subjects)),
		UniqueBranches:  int64(len(branches)),
		UniqueDevices:   int64(len(devices)),
	}, nil
}

func (s *fakeEventStore) DailyCounts(_ context.Context, from, to time.Time, branchID *uint) ([]dashboard.DailyCount, error) {
	if s.err != nil {
		return nil, s.err
	}
	byDate := map[string]int64{}
	for _, e := range s.match(from, to, branchID) {
		byDate[e.at.UTC().Format("2006-01-02")]++
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	out := make([]dashboard.DailyCount, 0, len(dates))
	for _, d := range dates {
		out = append(out, dashboard.DailyCount{Date: d, Count: byDate[d]})
	}
	return out, nil
}

func (s *fakeEventStore) TopBranches(_ context.Context, from, to time.Time, branchID *uint, limit int) ([]dashboard.BranchCount, error) {
	if s.err != nil {
		return nil, s.err
	}
	byBranch := map[uint]int64{}
	for _, e := range s.match(from, to, branchID) {
		byBranch[e.branchID]++
	}
	out := make([]dashboard.BranchCount, 0, len(byBranch))
	for id, n := range byBranch {
		out = append(out, dashboard.BranchCount{BranchID: id, DetectionCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectionCount != out[j].DetectionCount {
			return out[i].DetectionCount > out[j].DetectionCount
		}
		return out[i].BranchID < out[j].BranchID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeRollupRow struct {
	date           string
	branchID       uint
	total          int64
	uniqueSubjects int64
	uniqueDevices  int64
}

// fakeRollupStore mirrors the rollup SQL: sums over precomputed rows,
// including the summed (double-counting) uniquePersons figure.
type fakeRollupStore struct {
	rows []fakeRollupRow
	err  error
}

func (s *fakeRollupStore) match(from, to time.Time, branchID *uint) []fakeRollupRow {
	var out []fakeRollupRow
	for _, r := range s.rows {
		d, _ := time.Parse("2006-01-02", r.date)
		if d.Before(from) || d.After(to) {
			continue
		}
		if branchID != nil && r.branchID != *branchID {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *fakeRollupStore) Summary(_ context.Context, from, to time.Time, branchID *uint) (dashboard.Summary, error) {
	if s.err != nil {
		return dashboard.Summary{}, s.err
	}
	branches := map[uint]struct{}{}
	var sum dashboard.Summary
	for _, r := range s.match(from, to, branchID) {
		sum.TotalDetections += r.total
		sum.UniquePersons += r.uniqueSubjects
		sum.UniqueDevices += r.uniqueDevices
		branches[r.branchID] = struct{}{}
	}
	sum.UniqueBranches = int64(len(branches))
	return sum, nil
}

func (s *fakeRollupStore) DailyCounts(_ context.Context, from, to time.Time, branchID *uint) ([]dashboard.DailyCount, error) {
	if s.err != nil {
		return nil, s.err
	}
	byDate := map[string]int64{}
	for _, r := range s.match(from, to, branchID) {
		byDate[r.date] += r.total
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	out := make([]dashboard.DailyCount, 0, len(dates))
	for _, d := range dates {
		out = append(out, dashboard.DailyCount{Date: d, Count: byDate[d]})
	}
	return out, nil
}

func (s *fakeRollupStore) TopBranches(_ context.Context, from, to time.Time, branchID *uint, limit int) ([]dashboard.BranchCount, error) {
	if s.err != nil {
		return nil, s.err
	}
	byBranch := map[uint]int64{}
	for _, r := range s.match(from, to, branchID) {
		byBranch[r.branchID] += r.total
	}
	out := make([]dashboard.BranchCount, 0, len(byBranch))
	for id, n := range byBranch {
		out = append(out, dashboard.BranchCount{BranchID: id, DetectionCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectionCount != out[j].DetectionCount {
			return out[i].DetectionCount > out[j].DetectionCount
		}
		return out[i].BranchID < out[j].BranchID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeDirectory map[uint]string

func (d fakeDirectory) Names(_ context.Context, ids []uint) (map[uint]string, error) {
	out := map[uint]string{}
	for _, id := range ids {
		if name, ok := d[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

// downCache simulates an unavailable external cache backend.
type downCache struct{}

func (downCache) GetOrCompute(string, time.Duration, func() (any, error)) (any, bool, error) {
	return nil, false, dashboard.ErrCacheUnavailable
}
func (downCache) Forget(string) {}
func (downCache) FlushAll()     {}

// =============================================================================
// TEST SETUP
// =============================================================================

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func at(s string, hour int) time.Time {
	return date(s).Add(time.Duration(hour) * time.Hour)
}

func newService(events *fakeEventStore, rollups *fakeRollupStore, dir fakeDirectory, now time.Time, rc dashboard.ResultCache) *dashboard.Service {
	if rc == nil {
		rc = cache.New()
	}
	return dashboard.NewService(dashboard.ServiceConfig{
		Cache:      rc,
		Realtime:   dashboard.NewRealtimeAggregator(events, dir),
		Historical: dashboard.NewHistoricalAggregator(rollups, dir),
		Now:        func() time.Time { return now },
	})
}

// =============================================================================
// TESTS
// =============================================================================

func TestHistoricalExampleScenario(t *testing.T) {
	// 3 detections on 2025-01-01 at branch 1 (subjects X, Y, X), 2 on
	// 2025-01-02 at branch 2 (subject Z twice). Queried well after the
	// fact, so the historical path serves it from rollups.
	rollups := &fakeRollupStore{rows: []fakeRollupRow{
		{date: "2025-01-01", branchID: 1, total: 3, uniqueSubjects: 2, uniqueDevices: 1},
		{date: "2025-01-02", branchID: 2, total: 2, uniqueSubjects: 1, uniqueDevices: 1},
	}}
	svc := newService(&fakeEventStore{}, rollups, fakeDirectory{1: "HQ", 2: "North"}, date("2025-02-01"), nil)

	res, err := svc.GetStats(context.Background(), dashboard.Query{
		DateFrom: date("2025-01-01"),
		DateTo:   date("2025-01-02"),
	})
	require.NoError(t, err)

	assert.Equal(t, dashboard.ModeHistorical, res.DataMode)
	assert.Equal(t, int64(5), res.TotalDetections)
	assert.Equal(t, []dashboard.DailyCount{
		{Date: "2025-01-01", Count: 3},
		{Date: "2025-01-02", Count: 2},
	}, res.DailyTrend)
	require.Len(t, res.TopBranches, 2)
	assert.Equal(t, dashboard.BranchCount{BranchID: 1, BranchName: "HQ", DetectionCount: 3}, res.TopBranches[0])
	assert.Equal(t, dashboard.BranchCount{BranchID: 2, BranchName: "North", DetectionCount: 2}, res.TopBranches[1])
	assert.Equal(t, int64(3), res.MaxDailyCount)
}

func TestGapFillingInvariant(t *testing.T) {
	// Events only on the first and last day of a ten-day range ending
	// today; every date in between must still appear, with count zero.
	now := date("2025-06-10").Add(8 * time.Hour)
	events := &fakeEventStore{events: []fakeEvent{
		{reID: "p1", branchID: 1, deviceID: "cam-1", at: at("2025-06-01", 9)},
		{reID: "p2", branchID: 1, deviceID: "cam-1", at: at("2025-06-10", 7)},
	}}
	svc := newService(events, &fakeRollupStore{}, fakeDirectory{1: "HQ"}, now, nil)

	res, err := svc.GetStats(context.Background(), dashboard.Query{
		DateFrom: date("2025-06-01"),
		DateTo:   date("2025-06-10"),
	})
	require.NoError(t, err)

	assert.Equal(t, dashboard.ModeRealtime, res.DataMode)
	require.Len(t, res.DailyTrend, 10)
	for i, p := range res.DailyTrend {
		expectedDate := date("2025-06-01").AddDate(0, 0, i).Format("2006-01-02")
		assert.Equal(t, expectedDate, p.Date)
		if i == 0 || i == 9 {
			assert.Equal(t, int64(1), p.Count)
		} else {
			assert.Zero(t, p.Count)
		}
	}
}

func TestMaxDailyCountNeverZero(t *testing.T) {
	now := date("2025-06-10").Add(8 * time.Hour)
	svc := newService(&fakeEventStore{}, &fakeRollupStore{}, fakeDirectory{}, now, nil)

	res, err := svc.GetStats(context.Background(), dashboard.Query{
		DateFrom: date("2025-06-09"),
		DateTo:   date("2025-06-10"),
	})
	require.NoError(t, err)

	assert.Zero(t, res.TotalDetections)
	assert.Equal(t, int64(1), res.MaxDailyCount, "chart scaling divisor must not be zero")
}

func TestUniquePersonsDivergenceAcrossPaths(t *testing.T) {
	// One subject seen at two branches on the same settled date. The
	// realtime path counts the subject once; the historical path sums
	// per-branch distinct counts and counts it twice. This divergence is a
	// property of the rollup schema, not a bug.
	day := "2025-03-01"
	events := &fakeEventStore{events: []fakeEvent{
		{reID: "subject", branchID: 1, deviceID: "cam-a", at: at(day, 10)},
		{reID: "subject", branchID: 2, deviceID: "cam-b", at: at(day, 14)},
	}}
	rollups := &fakeRollupStore{rows: []fakeRollupRow{
		{date: day, branchID: 1, total: 1, uniqueSubjects: 1, uniqueDevices: 1},
		{date: day, branchID: 2, total: 1, uniqueSubjects: 1, uniqueDevices: 1},
	}}
	q := dashboard.Query{DateFrom: date(day), DateTo: date(day)}

	// Queried the same evening: realtime, exact.
	recent := newService(events, rollups, fakeDirectory{}, date(day).Add(20*time.Hour), nil)
	res, err := recent.GetStats(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, dashboard.ModeRealtime, res.DataMode)
	assert.Equal(t, int64(1), res.UniquePersons)

	// Queried a month later: historical, approximate.
	settled := newService(events, rollups, fakeDirectory{}, date("2025-04-01"), nil)
	res, err = settled.GetStats(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, dashboard.ModeHistorical, res.DataMode)
	assert.Equal(t, int64(2), res.UniquePersons, "summed per-branch distincts double-count cross-branch subjects")

	// Totals agree either way.
	assert.Equal(t, int64(2), res.TotalDetections)
}

func TestCacheIdempotence(t *testing.T) {
	now := date("2025-06-10").Add(8 * time.Hour)
	events := &fakeEventStore{events: []fakeEvent{
		{reID: "p1", branchID: 1, deviceID: "cam-1", at: at("2025-06-10", 7)},
	}}
	svc := newService(events, &fakeRollupStore{}, fakeDirectory{1: "HQ"}, now, nil)
	q := dashboard.Query{DateFrom: date("2025-06-09"), DateTo: date("2025-06-10")}

	first, err := svc.GetStats(context.Background(), q)
	require.NoError(t, err)
	second, err := svc.GetStats(context.Background(), q)
	require.NoError(t, err)

	assert.Same(t, first, second, "cache hit must return the identical result")
	assert.Equal(t, int64(1), atomic.LoadInt64(&events.queries), "second call must not hit the store")
}

func TestDashboardAndExportNamespacesAreDistinct(t *testing.T) {
	now := date("2025-06-10").Add(8 * time.Hour)
	events := &fakeEventStore{}
	svc := newService(events, &fakeRollupStore{}, fakeDirectory{}, now, nil)
	q := dashboard.Query{DateFrom: date("2025-06-09"), DateTo: date("2025-06-10")}

	_, err := svc.GetStats(context.Background(), q)
	require.NoError(t, err)
	_, err = svc.GetExportSnapshot(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, int64(2), atomic.LoadInt64(&events.queries),
		"interactive and export results are cached under separate keys")
}

func TestInvalidRangeRejectedBeforeAggregation(t *testing.T) {
	events := &fakeEventStore{}
	svc := newService(events, &fakeRollupStore{}, fakeDirectory{}, date("2025-06-10"), nil)

	_, err := svc.GetStats(context.Background(), dashboard.Query{
		DateFrom: date("2025-06-10"),
		DateTo:   date("2025-06-01"),
	})
	require.ErrorIs(t, err, dashboard.ErrInvalidRange)
	assert.Zero(t, atomic.LoadInt64(&events.queries), "stores must not be touched")

	_, err = svc.GetStats(context.Background(), dashboard.Query{})
	require.ErrorIs(t, err, dashboard.ErrInvalidRange)
}

func TestAggregationFailureIsRetryableAndNotCached(t *testing.T) {
	now := date("2025-06-10").Add(8 * time.Hour)
	events := &fakeEventStore{err: errors.New("connection refused")}
	svc := newService(events, &fakeRollupStore{}, fakeDirectory{}, now, nil)
	q := dashboard.Query{DateFrom: date("2025-06-09"), DateTo: date("2025-06-10")}

	_, err := svc.GetStats(context.Background(), q)
	var aggErr *dashboard.AggregationError
	require.ErrorAs(t, err, &aggErr)
	assert.Equal(t, dashboard.ModeRealtime, aggErr.Mode)

	// The store recovers; the failure must not have been cached.
	events.err = nil
	res, err := svc.GetStats(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, dashboard.ModeRealtime, res.DataMode)
}

// blockingEventStore hangs in Summary until the query context is cancelled
// while block is set, then behaves like its embedded store.
type blockingEventStore struct {
	fakeEventStore
	block bool
}

func (s *blockingEventStore) Summary(ctx context.Context, from, to time.Time, branchID *uint) (dashboard.Summary, error) {
	if s.block {
		<-ctx.Done()
		return dashboard.Summary{}, ctx.Err()
	}
	return s.fakeEventStore.Summary(ctx, from, to, branchID)
}

func TestQueryTimeoutFailureIsNotCached(t *testing.T) {
	now := date("2025-06-10").Add(8 * time.Hour)
	events := &blockingEventStore{block: true}
	c := cache.New()
	defer c.Stop()
	svc := dashboard.NewService(dashboard.ServiceConfig{
		Cache:        c,
		Realtime:     dashboard.NewRealtimeAggregator(events, fakeDirectory{}),
		Historical:   dashboard.NewHistoricalAggregator(&fakeRollupStore{}, fakeDirectory{}),
		QueryTimeout: 20 * time.Millisecond,
		Now:          func() time.Time { return now },
	})
	q := dashboard.Query{DateFrom: date("2025-06-09"), DateTo: date("2025-06-10")}

	_, err := svc.GetStats(context.Background(), q)
	var aggErr *dashboard.AggregationError
	require.ErrorAs(t, err, &aggErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The store recovers; a fresh call must recompute instead of replaying
	// the timed-out attempt from cache.
	events.block = false
	res, err := svc.GetStats(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, dashboard.ModeRealtime, res.DataMode)
}

func TestCacheUnavailableDegradesToDirectCompute(t *testing.T) {
	now := date("2025-06-10").Add(8 * time.Hour)
	events := &fakeEventStore{events: []fakeEvent{
		{reID: "p1", branchID: 1, deviceID: "cam-1", at: at("2025-06-10", 7)},
	}}
	svc := newService(events, &fakeRollupStore{}, fakeDirectory{1: "HQ"}, now, downCache{})
	q := dashboard.Query{DateFrom: date("2025-06-10"), DateTo: date("2025-06-10")}

	res, err := svc.GetStats(context.Background(), q)
	require.NoError(t, err, "a dead cache must not fail the request")
	assert.Equal(t, int64(1), res.TotalDetections)

	// Every request computes while the cache is down.
	_, err = svc.GetStats(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&events.queries))
}

func TestBranchFilterNarrowsEverything(t *testing.T) {
	now := date("2025-06-10").Add(8 * time.Hour)
	events := &fakeEventStore{events: []fakeEvent{
		{reID: "p1", branchID: 1, deviceID: "cam-1", at: at("2025-06-10", 7)},
		{reID: "p2", branchID: 2, deviceID: "cam-2", at: at("2025-06-10", 8)},
		{reID: "p3", branchID: 2, deviceID: "cam-3", at: at("2025-06-10", 9)},
	}}
	svc := newService(events, &fakeRollupStore{}, fakeDirectory{1: "HQ", 2: "North"}, now, nil)

	branch := uint(2)
	res, err := svc.GetStats(context.Background(), dashboard.Query{
		DateFrom: date("2025-06-10"),
		DateTo:   date("2025-06-10"),
		BranchID: &branch,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.TotalDetections)
	assert.Equal(t, int64(1), res.UniqueBranches)
	require.Len(t, res.TopBranches, 1)
	assert.Equal(t, uint(2), res.TopBranches[0].BranchID)
	assert.Equal(t, "North", res.TopBranches[0].BranchName)
}
