// Package api exposes the optimization pipeline and its history over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"listing-optimizer/metrics"
	"listing-optimizer/ratelimit"
	"listing-optimizer/utils"
)

// RouterConfig carries everything the router needs. Limiters may be nil to
// disable rate limiting. Forwarding headers are only honoured from
// TrustedProxies; with none, the client IP is the socket peer.
type RouterConfig struct {
	Pipeline        Pipeline
	History         HistoryReader
	IsMarketplace   MarketplaceChecker
	Health          HealthCheck
	Metrics         *metrics.Metrics
	Logger          *utils.Logger
	APILimiter      ratelimit.Limiter
	OptimizeLimiter ratelimit.Limiter
	ExposeDetail    bool
	TrustedProxies  []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		cfg.Logger.Warn("[http] invalid trusted proxies %v, trusting none: %v", cfg.TrustedProxies, err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("listing-optimizer"))
	r.Use(RequestID())
	r.Use(RequestLogger(cfg.Logger))
	r.Use(Metrics(cfg.Metrics))
	r.Use(CORS())

	h := &handlers{
		pipeline:      cfg.Pipeline,
		history:       cfg.History,
		isMarketplace: cfg.IsMarketplace,
		health:        cfg.Health,
		exposeDetail:  cfg.ExposeDetail,
	}

	r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	r.NoRoute(h.noRoute)

	api := r.Group("/api")
	if cfg.APILimiter != nil {
		api.Use(RateLimit(cfg.APILimiter, "Too many requests, please try again later", cfg.Logger))
	}
	api.GET("/health", h.healthz)

	optimize := []gin.HandlerFunc{h.optimize}
	if cfg.OptimizeLimiter != nil {
		limit := RateLimit(cfg.OptimizeLimiter, "Optimization rate limit reached, please wait before trying again", cfg.Logger)
		optimize = append([]gin.HandlerFunc{limit}, optimize...)
	}
	api.POST("/products/optimize", optimize...)
	api.GET("/products/:asin/latest", h.latestListing)

	api.GET("/optimizations/recent", h.recent)
	api.GET("/optimizations/history/:asin", h.listHistory)
	api.DELETE("/optimizations/history/:asin", h.deleteHistory)
	api.GET("/optimizations/:id", h.getOptimization)

	return r
}

// Server runs the router with graceful shutdown.
type Server struct {
	srv    *http.Server
	logger *utils.Logger
}

func NewServer(addr string, handler http.Handler, logger *utils.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests for up to
// 30 seconds.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("[http] Listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("[http] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
