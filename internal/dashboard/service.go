package dashboard

import (
	"context"
	"errors"
	"time"
)

// Cache key namespaces. Interactive views and export snapshots cache the
// same computation under different keys so their TTLs stay independent.
const (
	KeyDashboard = "dashboard"
	KeyExport    = "export"
)

// Service orchestrates one dashboard request: build the cache key, then on
// miss classify the range and run the matching aggregator. No statistics
// logic lives here.
type Service struct {
	cache      ResultCache
	realtime   *RealtimeAggregator
	historical *HistoricalAggregator

	dashboardTTL time.Duration
	exportTTL    time.Duration
	queryTimeout time.Duration

	now func() time.Time
}

// ServiceConfig wires a Service. Now is optional and defaults to time.Now;
// tests inject a fixed clock.
type ServiceConfig struct {
	Cache        ResultCache
	Realtime     *RealtimeAggregator
	Historical   *HistoricalAggregator
	DashboardTTL time.Duration
	ExportTTL    time.Duration
	QueryTimeout time.Duration
	Now          func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		cache:        cfg.Cache,
		realtime:     cfg.Realtime,
		historical:   cfg.Historical,
		dashboardTTL: cfg.DashboardTTL,
		exportTTL:    cfg.ExportTTL,
		queryTimeout: cfg.QueryTimeout,
		now:          cfg.Now,
	}
	if s.dashboardTTL <= 0 {
		s.dashboardTTL = 10 * time.Second
	}
	if s.exportTTL <= 0 {
		s.exportTTL = 30 * time.Minute
	}
	if s.queryTimeout <= 0 {
		s.queryTimeout = 15 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// GetStats answers an interactive dashboard query under the short TTL.
func (s *Service) GetStats(ctx context.Context, q Query) (*Result, error) {
	return s.stats(ctx, q, KeyDashboard, s.dashboardTTL)
}

// GetExportSnapshot answers the same query under the export namespace and
// long TTL, so repeated export clicks for one range reuse one snapshot.
func (s *Service) GetExportSnapshot(ctx context.Context, q Query) (*Result, error) {
	return s.stats(ctx, q, KeyExport, s.exportTTL)
}

func (s *Service) stats(ctx context.Context, q Query, namespace string, ttl time.Duration) (*Result, error) {
	if err := validate(q); err != nil {
		return nil, err
	}

	compute := func() (any, error) {
		return s.aggregate(ctx, q)
	}

	v, _, err := s.cache.GetOrCompute(q.CacheKey(namespace), ttl, compute)
	if err != nil {
		if errors.Is(err, ErrCacheUnavailable) {
			// Cache down: serve uncached rather than fail the request.
			return s.aggregate(ctx, q)
		}
		return nil, err
	}
	return v.(*Result), nil
}

func (s *Service) aggregate(ctx context.Context, q Query) (*Result, error) {
	// Raw-event scans over wide ranges are the latency risk; bound every
	// aggregation so a slow store fails the request instead of hanging it.
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if Classify(q.DateTo, s.now()) == ModeRealtime {
		return s.realtime.Aggregate(ctx, q)
	}
	return s.historical.Aggregate(ctx, q)
}

// InvalidateRange drops cached results for one query from both namespaces.
func (s *Service) InvalidateRange(q Query) {
	s.cache.Forget(q.CacheKey(KeyDashboard))
	s.cache.Forget(q.CacheKey(KeyExport))
}

// InvalidateAll resets the whole result cache, e.g. after a rollup refresh.
func (s *Service) InvalidateAll() {
	s.cache.FlushAll()
}

func validate(q Query) error {
	if q.DateFrom.IsZero() || q.DateTo.IsZero() || q.DateFrom.After(q.DateTo) {
		return ErrInvalidRange
	}
	return nil
}
