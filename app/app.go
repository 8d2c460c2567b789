// Package app wires configuration into the stores, the pipeline and the HTTP
// router shared by every command.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"listing-optimizer/api"
	"listing-optimizer/config"
	"listing-optimizer/gemini"
	"listing-optimizer/metrics"
	"listing-optimizer/ratelimit"
	"listing-optimizer/scraper/amazon"
	"listing-optimizer/services"
	"listing-optimizer/storage"
	"listing-optimizer/tracing"
	"listing-optimizer/utils"
)

type App struct {
	Config        *config.Config
	Logger        *utils.Logger
	DB            *sql.DB
	Metrics       *metrics.Metrics
	Listings      *storage.PostgresListingStore
	Optimizations *storage.PostgresOptimizationStore
	Optimizer     *services.Optimizer
	History       *services.HistoryService

	redisClient *redis.Client
	stopTracing func(context.Context) error
}

// New connects to Postgres, installs tracing and builds the pipeline.
func New(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*App, error) {
	stopTracing := tracing.Init(ctx, cfg, logger)

	db, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		_ = stopTracing(context.Background())
		return nil, err
	}

	client, err := gemini.New(ctx, cfg, logger)
	if err != nil {
		_ = db.Close()
		_ = stopTracing(context.Background())
		return nil, err
	}

	m := metrics.New()
	listings := storage.NewPostgresListingStore(db)
	optimizations := storage.NewPostgresOptimizationStore(db)
	extractor := amazon.New(cfg, nil, logger)
	rewriter := services.NewRewriter(client, cfg.GeminiModel, logger)

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            db,
		Metrics:       m,
		Listings:      listings,
		Optimizations: optimizations,
		Optimizer:     services.NewOptimizer(cfg.ProductCacheTTL, extractor, rewriter, listings, optimizations, m, logger),
		History:       services.NewHistoryService(listings, optimizations, logger),
		stopTracing:   stopTracing,
	}, nil
}

// Router builds the HTTP handler. Rate limits live in Redis when REDIS_ADDR
// is set and reachable, otherwise in process memory.
func (a *App) Router(ctx context.Context) *gin.Engine {
	apiLimiter, optimizeLimiter := a.limiters(ctx)

	return api.NewRouter(api.RouterConfig{
		Pipeline:      a.Optimizer,
		History:       a.History,
		IsMarketplace: a.Config.IsSupportedMarketplace,
		Health: func(ctx context.Context) error {
			return storage.Ping(ctx, a.DB)
		},
		Metrics:         a.Metrics,
		Logger:          a.Logger,
		APILimiter:      apiLimiter,
		OptimizeLimiter: optimizeLimiter,
		ExposeDetail:    a.Config.IsDevelopment(),
		TrustedProxies:  a.Config.TrustedProxies,
	})
}

func (a *App) limiters(ctx context.Context) (ratelimit.Limiter, ratelimit.Limiter) {
	apiPerMin := a.Config.RateLimitAPIPerMin
	optimizePerMin := a.Config.RateLimitOptimizePerMin

	if a.Config.RedisAddr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		client, err := ratelimit.NewRedisClient(pingCtx, a.Config.RedisAddr)
		cancel()
		if err == nil {
			a.redisClient = client
			a.Logger.Info("[ratelimit] Using Redis at %s", a.Config.RedisAddr)
			return ratelimit.NewRedisLimiter(client, "rl:api:", apiPerMin, time.Minute),
				ratelimit.NewRedisLimiter(client, "rl:optimize:", optimizePerMin, time.Minute)
		}
		a.Logger.Warn("[ratelimit] %v, falling back to in-process limits", err)
	}

	return ratelimit.NewMemoryLimiter(apiPerMin, time.Minute),
		ratelimit.NewMemoryLimiter(optimizePerMin, time.Minute)
}

// Close releases the database pool and the Redis client and flushes spans.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.redisClient != nil {
		errs = append(errs, a.redisClient.Close())
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("postgres: close: %w", err))
	}
	if a.stopTracing != nil {
		errs = append(errs, a.stopTracing(ctx))
	}
	return errors.Join(errs...)
}
