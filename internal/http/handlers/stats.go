package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"detectinsight/internal/dashboard"
)

const queryDateLayout = "2006-01-02"

// parseDashboardQuery reads date_from, date_to and branch_id from the query
// string. Dates default to the trailing seven days ending today. Malformed
// values are rejected here, before any aggregation is attempted.
func parseDashboardQuery(ctx *fasthttp.RequestCtx) (dashboard.Query, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	q := dashboard.Query{
		DateFrom: today.AddDate(0, 0, -7),
		DateTo:   today,
	}

	if s := string(ctx.QueryArgs().Peek("date_from")); s != "" {
		t, err := time.ParseInLocation(queryDateLayout, s, time.UTC)
		if err != nil {
			return dashboard.Query{}, errors.New("invalid date_from, expected YYYY-MM-DD")
		}
		q.DateFrom = t
	}
	if s := string(ctx.QueryArgs().Peek("date_to")); s != "" {
		t, err := time.ParseInLocation(queryDateLayout, s, time.UTC)
		if err != nil {
			return dashboard.Query{}, errors.New("invalid date_to, expected YYYY-MM-DD")
		}
		q.DateTo = t
	}
	if s := string(ctx.QueryArgs().Peek("branch_id")); s != "" {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return dashboard.Query{}, errors.New("invalid branch_id")
		}
		id := uint(n)
		q.BranchID = &id
	}

	return q, nil
}

// DashboardStats serves the interactive dashboard payload (short cache TTL).
func DashboardStats(svc *dashboard.Service) fasthttp.RequestHandler {
	return statsHandler(svc, (*dashboard.Service).GetStats)
}

// DashboardExport serves the same payload under the export snapshot TTL, so
// a spreadsheet and a PDF export of one range see identical numbers.
func DashboardExport(svc *dashboard.Service) fasthttp.RequestHandler {
	return statsHandler(svc, (*dashboard.Service).GetExportSnapshot)
}

// statsHandler is shared by both endpoints; *fasthttp.RequestCtx satisfies
// context.Context, so aggregation is bounded by the request lifetime.
func statsHandler(svc *dashboard.Service, get func(*dashboard.Service, context.Context, dashboard.Query) (*dashboard.Result, error)) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		q, err := parseDashboardQuery(ctx)
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}

		res, err := get(svc, ctx, q)
		if err != nil {
			var aggErr *dashboard.AggregationError
			switch {
			case errors.Is(err, dashboard.ErrInvalidRange):
				errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
			case errors.As(err, &aggErr):
				// Transient: the caller may retry.
				errResponse(ctx, fasthttp.StatusServiceUnavailable, "statistics temporarily unavailable")
			default:
				errResponse(ctx, fasthttp.StatusInternalServerError, "failed to compute statistics")
			}
			return
		}

		dashboardRequestsTotal.WithLabelValues(string(res.DataMode)).Inc()
		jsonResponse(ctx, res)
	}
}
