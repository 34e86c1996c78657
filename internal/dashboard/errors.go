package dashboard

import (
	"errors"
	"fmt"
)

// ErrInvalidRange rejects queries where dateFrom is after dateTo. Raised
// before any store is touched and never cached.
var ErrInvalidRange = errors.New("invalid date range: date_from is after date_to")

// ErrCacheUnavailable marks a cache backend failure. The service responds by
// computing directly rather than failing the request; correctness never
// depends on the cache.
var ErrCacheUnavailable = errors.New("result cache unavailable")

// AggregationError wraps a data-store failure on either path. It is
// transient from the caller's perspective: the request can be retried, and
// nothing is cached.
type AggregationError struct {
	Mode DataMode
	Err  error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("%s aggregation failed: %v", e.Mode, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }
