package cli

import (
	"context"
	"time"

	"listing-optimizer/apperr"
	"listing-optimizer/models"
	"listing-optimizer/utils"
)

type pipeline interface {
	Run(ctx context.Context, asin, marketplace string) (*models.OptimizationResult, error)
}

type batchOptions struct {
	Marketplace string
	Concurrency int
	RateLimitMs int
	MaxAttempts int
	BaseDelay   time.Duration
}

type batchResult struct {
	ASIN   string
	Result *models.OptimizationResult
	Err    error
}

// runBatch optimizes every distinct ASIN on a rate-limited worker pool.
// Results come back in input order. Only failures that may clear on their own
// (blocked, transport, model unavailable) are retried.
func runBatch(ctx context.Context, p pipeline, asins []string, opts batchOptions, logger *utils.Logger) []batchResult {
	seen := utils.NewKeySet()
	unique := make([]string, 0, len(asins))
	for _, raw := range asins {
		asin := models.NormalizeASIN(raw)
		if !seen.Add(asin) {
			logger.Warn("[batch] Skipping duplicate ASIN %s", asin)
			continue
		}
		unique = append(unique, asin)
	}

	logger.Info("[batch] Optimizing %d ASINs (concurrency %d, %dms apart)",
		len(unique), opts.Concurrency, opts.RateLimitMs)

	results := make([]batchResult, len(unique))
	pool := utils.NewWorkerPool(opts.Concurrency, opts.RateLimitMs)
	for i, asin := range unique {
		pool.Submit(func() {
			results[i] = runOne(ctx, p, asin, opts, logger)
		})
	}
	pool.Wait()
	return results
}

func runOne(ctx context.Context, p pipeline, asin string, opts batchOptions, logger *utils.Logger) batchResult {
	out := batchResult{ASIN: asin}
	retry := &utils.RetryConfig{
		MaxAttempts: opts.MaxAttempts,
		BaseDelay:   opts.BaseDelay,
		Logger:      logger,
		Retryable: func(err error) bool {
			return apperr.Retryable(apperr.KindOf(err))
		},
	}

	out.Err = retry.Do(ctx, "optimize "+asin, func(ctx context.Context) error {
		res, err := p.Run(ctx, asin, opts.Marketplace)
		if err != nil {
			return err
		}
		out.Result = res
		return nil
	})
	if out.Err != nil {
		logger.Error("[batch] %s failed: %v", asin, out.Err)
	}
	return out
}
