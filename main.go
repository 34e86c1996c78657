package main

import (
	"log"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"detectinsight/internal/cache"
	"detectinsight/internal/config"
	"detectinsight/internal/dashboard"
	"detectinsight/internal/db"
	"detectinsight/internal/http/handlers"
	appmw "detectinsight/internal/http/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	if err := db.EnsureBootstrapAdmin(sqlDB, cfg); err != nil {
		log.Fatalf("failed to ensure bootstrap admin: %v", err)
	}
	if cfg.InternalAPIKey != "" {
		if err := db.EnsureBootstrapAPIKey(sqlDB, cfg); err != nil {
			log.Printf("warning: failed to ensure bootstrap API key: %v", err)
		} else {
			log.Printf("internal ingest API key configured and associated with admin user")
		}
	}

	resultCache := cache.New()
	branches := db.NewBranchDirectory(sqlDB)
	svc := dashboard.NewService(dashboard.ServiceConfig{
		Cache:        resultCache,
		Realtime:     dashboard.NewRealtimeAggregator(db.NewEventStore(sqlDB), branches),
		Historical:   dashboard.NewHistoricalAggregator(db.NewRollupStore(sqlDB), branches),
		DashboardTTL: cfg.DashboardCacheTTL,
		ExportTTL:    cfg.ExportCacheTTL,
	})

	// A completed refresh makes every cached historical result stale, so the
	// refresher flushes the whole result cache on success.
	refresher := db.NewRollupRefresher(sqlDB, cfg.RollupWindowDays, resultCache.FlushAll)

	db.StartRetentionWorker(sqlDB)
	db.StartRollupWorker(refresher)

	handlers.InitPrometheusMetrics()

	r := router.New()

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})
	r.GET("/metrics", handlers.PrometheusMetrics())

	admin := appmw.AdminAuth(sqlDB)
	r.GET("/v1/dashboard/stats", admin(handlers.DashboardStats(svc)))
	r.GET("/v1/dashboard/export", admin(handlers.DashboardExport(svc)))
	r.POST("/admin/rollups/refresh", admin(handlers.RollupRefresh(refresher)))
	r.POST("/admin/cache/clear", admin(handlers.CacheClear(svc, resultCache)))

	r.POST("/v1/detections", appmw.BearerAuth(sqlDB)(handlers.IngestHandler(sqlDB, cfg)))

	handler := handlers.RequestLogger(r.Handler)

	log.Printf("detectinsight listening on %s", cfg.ListenAddr)
	if err := fasthttp.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
