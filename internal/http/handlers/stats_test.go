package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func requestWithURI(uri string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI(uri)
	return &ctx
}

func TestParseDashboardQueryExplicitRange(t *testing.T) {
	ctx := requestWithURI("/v1/dashboard/stats?date_from=2025-01-01&date_to=2025-01-31&branch_id=4")

	q, err := parseDashboardQuery(ctx)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), q.DateFrom)
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), q.DateTo)
	require.NotNil(t, q.BranchID)
	assert.Equal(t, uint(4), *q.BranchID)
}

func TestParseDashboardQueryDefaultsToTrailingWeek(t *testing.T) {
	ctx := requestWithURI("/v1/dashboard/stats")

	q, err := parseDashboardQuery(ctx)
	require.NoError(t, err)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	assert.Equal(t, today, q.DateTo)
	assert.Equal(t, today.AddDate(0, 0, -7), q.DateFrom)
	assert.Nil(t, q.BranchID, "absent branch filter must stay nil, not zero")
}

func TestParseDashboardQueryRejectsMalformedInput(t *testing.T) {
	for _, uri := range []string{
		"/v1/dashboard/stats?date_from=01-01-2025",
		"/v1/dashboard/stats?date_to=yesterday",
		"/v1/dashboard/stats?branch_id=north",
		"/v1/dashboard/stats?branch_id=-2",
	} {
		_, err := parseDashboardQuery(requestWithURI(uri))
		assert.Error(t, err, uri)
	}
}
