package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-optimizer/apperr"
	"listing-optimizer/metrics"
	"listing-optimizer/models"
	"listing-optimizer/ratelimit"
	"listing-optimizer/utils"
)

type stubPipeline struct {
	result *models.OptimizationResult
	err    error

	gotASIN        string
	gotMarketplace string
	ctxErr         error
}

func (p *stubPipeline) Run(ctx context.Context, asin, marketplace string) (*models.OptimizationResult, error) {
	p.gotASIN, p.gotMarketplace = asin, marketplace
	p.ctxErr = ctx.Err()
	return p.result, p.err
}

type stubHistory struct {
	page    *models.HistoryPage
	recent  []models.RecentOptimization
	detail  *models.OptimizationDetail
	listing *models.Listing
	deleted int64
	err     error

	gotLimit, gotOffset int
}

func (h *stubHistory) History(_ context.Context, asin string, limit, offset int) (*models.HistoryPage, error) {
	h.gotLimit, h.gotOffset = limit, offset
	return h.page, h.err
}

func (h *stubHistory) Recent(_ context.Context, limit int) ([]models.RecentOptimization, error) {
	h.gotLimit = limit
	return h.recent, h.err
}

func (h *stubHistory) Get(_ context.Context, id int64) (*models.OptimizationDetail, error) {
	return h.detail, h.err
}

func (h *stubHistory) Latest(_ context.Context, asin string) (*models.Listing, error) {
	return h.listing, h.err
}

func (h *stubHistory) Purge(_ context.Context, asin string) (int64, error) {
	return h.deleted, h.err
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(p *stubPipeline, h *stubHistory, mutate func(*RouterConfig)) *gin.Engine {
	cfg := RouterConfig{
		Pipeline:      p,
		History:       h,
		IsMarketplace: func(s string) bool { return s == "amazon.in" || s == "amazon.com" },
		Health:        func(context.Context) error { return nil },
		Metrics:       metrics.New(),
		Logger:        utils.NewNopLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewRouter(cfg)
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestOptimizeCreated(t *testing.T) {
	p := &stubPipeline{result: &models.OptimizationResult{
		ID:        9,
		ASIN:      "B0PRODUCT1",
		ModelUsed: "gemini-2.0-flash",
		CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}}
	r := newTestRouter(p, &stubHistory{}, nil)

	w, env := do(t, r, http.MethodPost, "/api/products/optimize", `{"asin":" b0product1 ","marketplace":"Amazon.in"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "B0PRODUCT1", p.gotASIN)
	assert.Equal(t, "amazon.in", p.gotMarketplace)
	assert.NoError(t, p.ctxErr)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var res models.OptimizationResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, int64(9), res.ID)
	assert.Contains(t, string(env.Data), `"modelUsed":"gemini-2.0-flash"`)
}

func TestOptimizeValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `asin=B0PRODUCT1`},
		{"short asin", `{"asin":"B0PROD"}`},
		{"symbols", `{"asin":"B0PROD-CT1"}`},
		{"unknown marketplace", `{"asin":"B0PRODUCT1","marketplace":"ebay.com"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubPipeline{}
			r := newTestRouter(p, &stubHistory{}, nil)

			w, env := do(t, r, http.MethodPost, "/api/products/optimize", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, string(apperr.KindValidation), env.Error.Code)
			assert.Empty(t, p.gotASIN, "pipeline must not run")
		})
	}
}

func TestOptimizeErrorStatuses(t *testing.T) {
	tests := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindBlocked, http.StatusServiceUnavailable},
		{apperr.KindExtractionFailed, http.StatusUnprocessableEntity},
		{apperr.KindTransport, http.StatusBadGateway},
		{apperr.KindRewriteUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			p := &stubPipeline{err: apperr.New(tt.kind, "upstream said no")}
			r := newTestRouter(p, &stubHistory{}, nil)

			w, env := do(t, r, http.MethodPost, "/api/products/optimize", `{"asin":"B0PRODUCT1"}`)
			assert.Equal(t, tt.want, w.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, string(tt.kind), env.Error.Code)
			assert.Equal(t, "upstream said no", env.Error.Message)
		})
	}
}

func TestInternalErrorHidesDetailOutsideDevelopment(t *testing.T) {
	p := &stubPipeline{err: errors.New("pq: password authentication failed")}

	r := newTestRouter(p, &stubHistory{}, nil)
	w, env := do(t, r, http.MethodPost, "/api/products/optimize", `{"asin":"B0PRODUCT1"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", env.Error.Message)
	assert.Empty(t, env.Error.Detail)

	r = newTestRouter(p, &stubHistory{}, func(c *RouterConfig) { c.ExposeDetail = true })
	_, env = do(t, r, http.MethodPost, "/api/products/optimize", `{"asin":"B0PRODUCT1"}`)
	assert.Contains(t, env.Error.Detail, "password authentication failed")
}

func TestHistoryEndpoint(t *testing.T) {
	h := &stubHistory{page: &models.HistoryPage{
		ASIN:          "B0PRODUCT1",
		Optimizations: []models.Optimization{{ID: 3}, {ID: 2}},
		Total:         2,
		Limit:         5,
		Offset:        0,
	}}
	r := newTestRouter(&stubPipeline{}, h, nil)

	w, env := do(t, r, http.MethodGet, "/api/optimizations/history/B0PRODUCT1?limit=5&offset=0", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, h.gotLimit)

	var page models.HistoryPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Optimizations, 2)

	w, env = do(t, r, http.MethodGet, "/api/optimizations/history/B0PRODUCT1?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(apperr.KindValidation), env.Error.Code)
}

func TestRecentAndGetRoutesCoexist(t *testing.T) {
	h := &stubHistory{
		recent: []models.RecentOptimization{{ID: 4, ASIN: "B0PRODUCT1"}},
		detail: &models.OptimizationDetail{Optimization: models.Optimization{ID: 4}, OriginalTitle: "Steel Bottle"},
	}
	r := newTestRouter(&stubPipeline{}, h, nil)

	w, env := do(t, r, http.MethodGet, "/api/optimizations/recent", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"asin":"B0PRODUCT1"`)

	w, env = do(t, r, http.MethodGet, "/api/optimizations/4", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"originalTitle":"Steel Bottle"`)

	w, _ = do(t, r, http.MethodGet, "/api/optimizations/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMissingOptimization(t *testing.T) {
	h := &stubHistory{err: apperr.New(apperr.KindNotFoundOptimization, "optimization 99 not found")}
	r := newTestRouter(&stubPipeline{}, h, nil)

	w, env := do(t, r, http.MethodGet, "/api/optimizations/99", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(apperr.KindNotFoundOptimization), env.Error.Code)
}

func TestDeleteHistory(t *testing.T) {
	h := &stubHistory{deleted: 3}
	r := newTestRouter(&stubPipeline{}, h, nil)

	w, env := do(t, r, http.MethodDelete, "/api/optimizations/history/b0product1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"asin":"B0PRODUCT1","deleted":3}`, string(env.Data))
}

func TestLatestListing(t *testing.T) {
	h := &stubHistory{listing: &models.Listing{ID: 1, ASIN: "B0PRODUCT1", Title: "Steel Bottle"}}
	r := newTestRouter(&stubPipeline{}, h, nil)

	w, env := do(t, r, http.MethodGet, "/api/products/B0PRODUCT1/latest", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"title":"Steel Bottle"`)
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&stubPipeline{}, &stubHistory{}, nil)
	w, env := do(t, r, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	r = newTestRouter(&stubPipeline{}, &stubHistory{}, func(c *RouterConfig) {
		c.Health = func(context.Context) error { return errors.New("db down") }
	})
	w, env = do(t, r, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, env.Success)
}

func TestOptimizeRateLimit(t *testing.T) {
	p := &stubPipeline{result: &models.OptimizationResult{ID: 1}}
	r := newTestRouter(p, &stubHistory{}, func(c *RouterConfig) {
		c.OptimizeLimiter = ratelimit.NewMemoryLimiter(2, time.Minute)
	})

	for i := 0; i < 2; i++ {
		w, _ := do(t, r, http.MethodPost, "/api/products/optimize", `{"asin":"B0PRODUCT1"}`)
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w, env := do(t, r, http.MethodPost, "/api/products/optimize", `{"asin":"B0PRODUCT1"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, string(apperr.KindRateLimited), env.Error.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	w, _ = do(t, r, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code, "other routes use the general limiter")
}

func optimizeFrom(r http.Handler, remoteAddr, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/products/optimize", strings.NewReader(`{"asin":"B0PRODUCT1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	req.Header.Set("X-Forwarded-For", forwardedFor)
	req.Header.Set("X-Real-IP", forwardedFor)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	p := &stubPipeline{result: &models.OptimizationResult{ID: 1}}
	r := newTestRouter(p, &stubHistory{}, func(c *RouterConfig) {
		c.OptimizeLimiter = ratelimit.NewMemoryLimiter(1, time.Minute)
	})

	var codes []int
	for i := 0; i < 5; i++ {
		codes = append(codes, optimizeFrom(r, "203.0.113.7:40000", fmt.Sprintf("198.51.100.%d", i+1)))
	}
	assert.Equal(t, []int{
		http.StatusCreated,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
	}, codes)
}

func TestRateLimitUsesForwardedForFromTrustedProxy(t *testing.T) {
	p := &stubPipeline{result: &models.OptimizationResult{ID: 1}}
	r := newTestRouter(p, &stubHistory{}, func(c *RouterConfig) {
		c.OptimizeLimiter = ratelimit.NewMemoryLimiter(1, time.Minute)
		c.TrustedProxies = []string{"10.0.0.0/8"}
	})

	assert.Equal(t, http.StatusCreated, optimizeFrom(r, "10.1.2.3:40000", "198.51.100.1"))
	assert.Equal(t, http.StatusCreated, optimizeFrom(r, "10.1.2.3:40000", "198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, optimizeFrom(r, "10.1.2.3:40000", "198.51.100.1"))
}

func TestUnknownRoute(t *testing.T) {
	r := newTestRouter(&stubPipeline{}, &stubHistory{}, nil)
	w, env := do(t, r, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(&stubPipeline{}, &stubHistory{}, nil)
	_, _ = do(t, r, http.MethodGet, "/api/health", "")

	w, _ := do(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "listing_optimizer_http_requests_total")
}
