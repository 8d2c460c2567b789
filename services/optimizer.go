package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"listing-optimizer/apperr"
	"listing-optimizer/metrics"
	"listing-optimizer/models"
	"listing-optimizer/storage"
	"listing-optimizer/utils"
)

// ListingExtractor fetches a fresh snapshot from the marketplace.
type ListingExtractor interface {
	Extract(ctx context.Context, asin, marketplace string) (*models.Listing, error)
}

// ListingRewriter produces optimized copy for a snapshot.
type ListingRewriter interface {
	Rewrite(ctx context.Context, listing *models.Listing) (*models.Rewrite, error)
}

// Optimizer runs the acquire, rewrite, persist pipeline for one ASIN.
//
// There is no per-ASIN lock: two concurrent runs for the same ASIN may both
// scrape and both record an optimization.
type Optimizer struct {
	ttl           time.Duration
	extractor     ListingExtractor
	rewriter      ListingRewriter
	listings      storage.ListingStore
	optimizations storage.OptimizationStore
	metrics       *metrics.Metrics
	logger        *utils.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewOptimizer wires the pipeline. ttl bounds how old a stored snapshot may be
// before the marketplace is scraped again.
func NewOptimizer(
	ttl time.Duration,
	extractor ListingExtractor,
	rewriter ListingRewriter,
	listings storage.ListingStore,
	optimizations storage.OptimizationStore,
	m *metrics.Metrics,
	logger *utils.Logger,
) *Optimizer {
	return &Optimizer{
		ttl:           ttl,
		extractor:     extractor,
		rewriter:      rewriter,
		listings:      listings,
		optimizations: optimizations,
		metrics:       m,
		logger:        logger,
		tracer:        otel.Tracer("listing-optimizer/services"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run resolves a listing snapshot (cached or freshly scraped), rewrites it and
// records the result. Failures keep the kind they were classified with. A
// rewrite failure after a fresh scrape leaves the saved snapshot in place but
// never records a partial optimization.
func (o *Optimizer) Run(ctx context.Context, asin, marketplace string) (result *models.OptimizationResult, err error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "optimizer.Run", trace.WithAttributes(
		attribute.String("asin", asin),
		attribute.String("marketplace", marketplace),
	))
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = string(apperr.KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		o.metrics.PipelineRuns.WithLabelValues(outcome).Inc()
		o.metrics.ObserveStep("total", start)
		span.End()
	}()

	asin, err = validASIN(asin)
	if err != nil {
		return nil, err
	}

	listing, cacheHit, err := o.resolveListing(ctx, asin, marketplace)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("cache_hit", cacheHit), attribute.Int64("listing_id", listing.ID))

	var rewrite *models.Rewrite
	err = o.step(ctx, "rewrite", func(ctx context.Context) error {
		var err error
		rewrite, err = o.rewriter.Rewrite(ctx, listing)
		return err
	})
	if err != nil {
		return nil, err
	}
	o.metrics.AddTokens("prompt", rewrite.PromptTokens)
	o.metrics.AddTokens("completion", rewrite.CompletionTokens)

	opt := &models.Optimization{
		ListingID:            listing.ID,
		ASIN:                 asin,
		OptimizedTitle:       rewrite.Optimized.Title,
		OptimizedBullets:     rewrite.Optimized.BulletPoints,
		OptimizedDescription: rewrite.Optimized.Description,
		Keywords:             rewrite.Optimized.Keywords,
		ModelUsed:            rewrite.ModelUsed,
		PromptTokens:         rewrite.PromptTokens,
		CompletionTokens:     rewrite.CompletionTokens,
		CreatedAt:            o.now(),
	}
	err = o.step(ctx, "record", func(ctx context.Context) error {
		id, err := o.optimizations.Record(ctx, opt)
		if err != nil {
			return fmt.Errorf("record optimization: %w", err)
		}
		opt.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("[optimizer] %s optimized (optimization=%d listing=%d cache_hit=%v model=%s) in %v",
		asin, opt.ID, listing.ID, cacheHit, opt.ModelUsed, time.Since(start).Round(time.Millisecond))

	return &models.OptimizationResult{
		ID:   opt.ID,
		ASIN: asin,
		Original: models.OriginalListing{
			Title:        listing.Title,
			BulletPoints: models.NonNil(listing.BulletPoints),
			Description:  listing.Description,
			Price:        listing.Price,
			ImageURL:     listing.ImageURL,
		},
		Optimized: models.OptimizedListing{
			Title:        opt.OptimizedTitle,
			BulletPoints: models.NonNil(opt.OptimizedBullets),
			Description:  opt.OptimizedDescription,
			Keywords:     models.NonNil(opt.Keywords),
		},
		ModelUsed: opt.ModelUsed,
		CacheHit:  cacheHit,
		CreatedAt: opt.CreatedAt,
	}, nil
}

// resolveListing returns a fresh stored snapshot, or scrapes and saves a new one.
func (o *Optimizer) resolveListing(ctx context.Context, asin, marketplace string) (*models.Listing, bool, error) {
	var cached *models.Listing
	err := o.step(ctx, "lookup", func(ctx context.Context) error {
		var err error
		cached, err = o.listings.FindFreshSnapshot(ctx, asin, o.ttl)
		if err != nil {
			return fmt.Errorf("lookup snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if cached != nil {
		o.metrics.CacheLookups.WithLabelValues("hit").Inc()
		o.logger.Debug("[optimizer] %s served from snapshot %d (fetched %s)",
			asin, cached.ID, cached.FetchedAt.Format(time.RFC3339))
		return cached, true, nil
	}
	o.metrics.CacheLookups.WithLabelValues("miss").Inc()

	var listing *models.Listing
	err = o.step(ctx, "extract", func(ctx context.Context) error {
		var err error
		listing, err = o.extractor.Extract(ctx, asin, marketplace)
		return err
	})
	if err != nil {
		o.metrics.ExtractionFailures.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return nil, false, err
	}

	err = o.step(ctx, "save", func(ctx context.Context) error {
		id, err := o.listings.Save(ctx, listing)
		if err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		listing.ID = id
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return listing, false, nil
}

// step runs fn inside a child span and records its latency.
func (o *Optimizer) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "optimizer."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	o.metrics.ObserveStep(name, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	}
	return err
}
