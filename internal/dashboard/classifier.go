package dashboard

import (
	"math"
	"time"
)

// Classify decides the data path for a query ending at dateTo. Ranges ending
// today or yesterday are served from raw events because the daily rollup
// refresh has not necessarily covered them yet; older ranges read rollups.
//
// The whole range is routed by dateTo alone: a query spanning sixty days up
// to today goes entirely through the realtime path. Splitting such ranges
// into a historical part plus a realtime tail would change cache-key
// semantics and is intentionally not done.
func Classify(dateTo, now time.Time) DataMode {
	// Floor so fractional day counts from timestamp arithmetic stay on the
	// recent side: 1.9 days ago is still "yesterday".
	daysSince := math.Floor(now.Sub(dateTo).Hours() / 24)
	if daysSince <= 1 {
		return ModeRealtime
	}
	return ModeHistorical
}
