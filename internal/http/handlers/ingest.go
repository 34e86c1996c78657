package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"detectinsight/internal/config"
	dbpkg "detectinsight/internal/db"
	httpctx "detectinsight/internal/http/ctx"
)

var (
	detectionsIngestedTotal *prometheus.CounterVec
	dashboardRequestsTotal  *prometheus.CounterVec
	rollupRefreshSeconds    prometheus.Histogram
)

func InitPrometheusMetrics() {
	detectionsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "detectinsight",
			Name:      "detections_ingested_total",
			Help:      "Total number of ingested detection events.",
		},
		[]string{"branch_id", "environment"},
	)
	dashboardRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "detectinsight",
			Name:      "dashboard_requests_total",
			Help:      "Dashboard statistics requests served, by data path.",
		},
		[]string{"data_mode"},
	)
	rollupRefreshSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "detectinsight",
			Name:      "rollup_refresh_duration_seconds",
			Help:      "Histogram of on-demand rollup refresh durations in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	prometheus.MustRegister(detectionsIngestedTotal, dashboardRequestsTotal, rollupRefreshSeconds)
}

type IngestDetection struct {
	ReID       string         `json:"re_id"`
	BranchID   uint           `json:"branch_id"`
	DeviceID   string         `json:"device_id"`
	DetectedAt *time.Time     `json:"detected_at,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type ingestRequest struct {
	Detections []IngestDetection `json:"detections"`
}

// IngestHandler accepts a batch of detection events from an authenticated
// branch pipeline and persists them with the key's retention expiry.
func IngestHandler(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var payload ingestRequest
		if err := json.Unmarshal(ctx.PostBody(), &payload); err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("invalid JSON body")
			return
		}
		if len(payload.Detections) == 0 {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("no detections provided")
			return
		}

		now := time.Now()
		retentionDays := cfg.RetentionDays
		environment := ""
		if ak, ok := httpctx.APIKeyFromCtx(ctx); ok && ak != nil {
			if ak.RetentionDays > 0 && ak.RetentionDays < retentionDays {
				retentionDays = ak.RetentionDays
			}
			environment = ak.Environment
		}

		records := make([]dbpkg.DetectionEvent, 0, len(payload.Detections))

		for _, d := range payload.Detections {
			if d.ReID == "" || d.BranchID == 0 {
				continue
			}

			detectedAt := now
			if d.DetectedAt != nil {
				detectedAt = *d.DetectedAt
			}

			attrs := datatypes.JSONMap{}
			for k, v := range d.Attributes {
				attrs[k] = v
			}

			var expiresAt *time.Time
			if retentionDays > 0 {
				t := detectedAt.Add(time.Duration(retentionDays) * 24 * time.Hour)
				expiresAt = &t
			}

			records = append(records, dbpkg.DetectionEvent{
				CreatedAt:  now,
				ExpiresAt:  expiresAt,
				ReID:       d.ReID,
				BranchID:   d.BranchID,
				DeviceID:   d.DeviceID,
				DetectedAt: detectedAt,
				Attributes: attrs,
			})

			detectionsIngestedTotal.
				WithLabelValues(strconv.Itoa(int(d.BranchID)), environment).
				Inc()
		}

		if len(records) == 0 {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("no valid detections after validation")
			return
		}

		if err := db.Create(&records).Error; err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to persist detections")
			return
		}

		ctx.SetStatusCode(fasthttp.StatusAccepted)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"status":"accepted","count":` + strconv.Itoa(len(records)) + `}`)
	}
}
