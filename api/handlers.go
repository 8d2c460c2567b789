package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"listing-optimizer/apperr"
	"listing-optimizer/models"
)

// Pipeline runs one optimization.
type Pipeline interface {
	Run(ctx context.Context, asin, marketplace string) (*models.OptimizationResult, error)
}

// HistoryReader answers the read and purge endpoints.
type HistoryReader interface {
	History(ctx context.Context, asin string, limit, offset int) (*models.HistoryPage, error)
	Recent(ctx context.Context, limit int) ([]models.RecentOptimization, error)
	Get(ctx context.Context, id int64) (*models.OptimizationDetail, error)
	Latest(ctx context.Context, asin string) (*models.Listing, error)
	Purge(ctx context.Context, asin string) (int64, error)
}

// MarketplaceChecker reports whether a marketplace selector is supported.
type MarketplaceChecker func(selector string) bool

// HealthCheck pings a dependency.
type HealthCheck func(ctx context.Context) error

type optimizeRequest struct {
	ASIN        string `json:"asin"`
	Marketplace string `json:"marketplace"`
}

type handlers struct {
	pipeline      Pipeline
	history       HistoryReader
	isMarketplace MarketplaceChecker
	health        HealthCheck
	exposeDetail  bool
}

func (h *handlers) optimize(c *gin.Context) {
	var req optimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Wrap(apperr.KindValidation, "request body must be JSON with an asin field", err))
		return
	}

	asin := models.NormalizeASIN(req.ASIN)
	if !models.IsValidASIN(asin) {
		h.fail(c, apperr.New(apperr.KindValidation, "ASIN must be exactly 10 uppercase letters or digits"))
		return
	}
	marketplace := strings.ToLower(strings.TrimSpace(req.Marketplace))
	if marketplace != "" && !h.isMarketplace(marketplace) {
		h.fail(c, apperr.Newf(apperr.KindValidation, "unsupported marketplace %q", req.Marketplace))
		return
	}

	// A client disconnect must not abort a run that may already be scraping.
	ctx := context.WithoutCancel(c.Request.Context())
	res, err := h.pipeline.Run(ctx, asin, marketplace)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, http.StatusCreated, res)
}

func (h *handlers) latestListing(c *gin.Context) {
	listing, err := h.history.Latest(c.Request.Context(), c.Param("asin"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, http.StatusOK, listing)
}

func (h *handlers) listHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.fail(c, err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		h.fail(c, err)
		return
	}

	page, err := h.history.History(c.Request.Context(), c.Param("asin"), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, http.StatusOK, page)
}

func (h *handlers) recent(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.fail(c, err)
		return
	}
	items, err := h.history.Recent(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, http.StatusOK, items)
}

func (h *handlers) getOptimization(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, apperr.Newf(apperr.KindValidation, "invalid optimization id %q", c.Param("id")))
		return
	}
	detail, err := h.history.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, http.StatusOK, detail)
}

func (h *handlers) deleteHistory(c *gin.Context) {
	asin := models.NormalizeASIN(c.Param("asin"))
	n, err := h.history.Purge(c.Request.Context(), asin)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"asin": asin, "deleted": n})
}

func (h *handlers) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if h.health != nil {
		if err := h.health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, dataEnvelope{
				Success: false,
				Data:    gin.H{"status": "degraded", "database": "down"},
			})
			return
		}
	}
	respondData(c, http.StatusOK, gin.H{"status": "ok", "database": "up"})
}

func (h *handlers) noRoute(c *gin.Context) {
	h.fail(c, apperr.Newf(apperr.KindNotFound, "route %s %s not found", c.Request.Method, c.Request.URL.Path))
}

func (h *handlers) fail(c *gin.Context, err error) {
	respondError(c, err, h.exposeDetail)
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Newf(apperr.KindValidation, "%s must be an integer", name)
	}
	return n, nil
}
