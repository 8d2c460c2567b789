package storage

import (
	"context"
	"time"

	"listing-optimizer/models"
)

// ListingStore is the append-only snapshot log. Lookups that find nothing
// return nil with a nil error.
type ListingStore interface {
	FindFreshSnapshot(ctx context.Context, asin string, ttl time.Duration) (*models.Listing, error)
	FindLatest(ctx context.Context, asin string) (*models.Listing, error)
	Save(ctx context.Context, listing *models.Listing) (int64, error)
}

// OptimizationStore is the ledger of rewrites. Lookups that find nothing
// return nil with a nil error.
type OptimizationStore interface {
	Record(ctx context.Context, opt *models.Optimization) (int64, error)
	ListByIdentifier(ctx context.Context, asin string, limit, offset int) ([]models.Optimization, error)
	CountByIdentifier(ctx context.Context, asin string) (int, error)
	GetWithListing(ctx context.Context, id int64) (*models.OptimizationDetail, error)
	MostRecentPerIdentifier(ctx context.Context, limit int) ([]models.RecentOptimization, error)
	DeleteByIdentifier(ctx context.Context, asin string) (int64, error)
}
