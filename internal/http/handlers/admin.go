package handlers

import (
	"log"

	"github.com/valyala/fasthttp"

	"detectinsight/internal/cache"
	"detectinsight/internal/dashboard"
	dbpkg "detectinsight/internal/db"
)

// RollupRefresh triggers an on-demand rollup rebuild. The scheduled daily
// worker and this endpoint share the refresher's lock, so runs never overlap.
func RollupRefresh(refresher *dbpkg.RollupRefresher) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		res, err := refresher.Refresh(ctx)
		if err != nil {
			// Old rollups keep serving; this only concerns operators.
			log.Printf("on-demand rollup refresh failed: %v", err)
			errResponse(ctx, fasthttp.StatusInternalServerError, "rollup refresh failed")
			return
		}

		rollupRefreshSeconds.Observe(res.Duration.Seconds())
		jsonResponse(ctx, res)
	}
}

// CacheClear invalidates cached dashboard results. With date_from and
// date_to present it forgets that one range (both the interactive and the
// export snapshot keys); without them it resets the whole cache.
func CacheClear(svc *dashboard.Service, c *cache.Cache) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		hasRange := len(ctx.QueryArgs().Peek("date_from")) > 0 && len(ctx.QueryArgs().Peek("date_to")) > 0
		if hasRange {
			q, err := parseDashboardQuery(ctx)
			if err != nil {
				errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
				return
			}
			svc.InvalidateRange(q)
			log.Printf("dashboard cache cleared for %s..%s", q.DateFrom.Format(queryDateLayout), q.DateTo.Format(queryDateLayout))
		} else {
			svc.InvalidateAll()
			log.Printf("dashboard cache fully cleared")
		}

		jsonResponse(ctx, map[string]any{
			"status": "cleared",
			"scoped": hasRange,
			"stats":  c.Stats(),
		})
	}
}
