package services

import (
	"context"
	"fmt"

	"listing-optimizer/apperr"
	"listing-optimizer/models"
	"listing-optimizer/storage"
	"listing-optimizer/utils"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
	DefaultRecentLimit  = 10
	MaxRecentLimit      = 50
)

// HistoryService answers read and purge queries over stored listings and
// optimizations.
type HistoryService struct {
	listings      storage.ListingStore
	optimizations storage.OptimizationStore
	logger        *utils.Logger
}

func NewHistoryService(listings storage.ListingStore, optimizations storage.OptimizationStore, logger *utils.Logger) *HistoryService {
	return &HistoryService{listings: listings, optimizations: optimizations, logger: logger}
}

// History returns one page of optimizations for asin plus the total count.
func (h *HistoryService) History(ctx context.Context, asin string, limit, offset int) (*models.HistoryPage, error) {
	asin, err := validASIN(asin)
	if err != nil {
		return nil, err
	}
	limit = clamp(limit, DefaultHistoryLimit, MaxHistoryLimit)
	if offset < 0 {
		offset = 0
	}

	items, err := h.optimizations.ListByIdentifier(ctx, asin, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", asin, err)
	}
	total, err := h.optimizations.CountByIdentifier(ctx, asin)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", asin, err)
	}

	return &models.HistoryPage{
		ASIN:          asin,
		Optimizations: items,
		Total:         total,
		Limit:         limit,
		Offset:        offset,
	}, nil
}

// Recent returns the newest optimization of each ASIN.
func (h *HistoryService) Recent(ctx context.Context, limit int) ([]models.RecentOptimization, error) {
	items, err := h.optimizations.MostRecentPerIdentifier(ctx, clamp(limit, DefaultRecentLimit, MaxRecentLimit))
	if err != nil {
		return nil, fmt.Errorf("recent optimizations: %w", err)
	}
	return items, nil
}

// Get returns one optimization with its source listing.
func (h *HistoryService) Get(ctx context.Context, id int64) (*models.OptimizationDetail, error) {
	if id <= 0 {
		return nil, apperr.Newf(apperr.KindValidation, "invalid optimization id %d", id)
	}
	detail, err := h.optimizations.GetWithListing(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("optimization %d: %w", id, err)
	}
	if detail == nil {
		return nil, apperr.Newf(apperr.KindNotFoundOptimization, "optimization %d not found", id)
	}
	return detail, nil
}

// Latest returns the newest stored snapshot for asin, however old.
func (h *HistoryService) Latest(ctx context.Context, asin string) (*models.Listing, error) {
	asin, err := validASIN(asin)
	if err != nil {
		return nil, err
	}
	listing, err := h.listings.FindLatest(ctx, asin)
	if err != nil {
		return nil, fmt.Errorf("latest listing %s: %w", asin, err)
	}
	if listing == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "no stored listing for %s", asin)
	}
	return listing, nil
}

// Purge deletes every optimization for asin and reports how many went away.
// Listing snapshots are not touched.
func (h *HistoryService) Purge(ctx context.Context, asin string) (int64, error) {
	asin, err := validASIN(asin)
	if err != nil {
		return 0, err
	}
	n, err := h.optimizations.DeleteByIdentifier(ctx, asin)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", asin, err)
	}
	h.logger.Info("[history] Purged %d optimizations for %s", n, asin)
	return n, nil
}

func validASIN(raw string) (string, error) {
	asin := models.NormalizeASIN(raw)
	if !models.IsValidASIN(asin) {
		return "", apperr.Newf(apperr.KindValidation, "invalid ASIN %q: expected 10 uppercase letters or digits", raw)
	}
	return asin, nil
}

func clamp(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
