package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"listing-optimizer/api"
	"listing-optimizer/app"
	"listing-optimizer/storage"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		a.Logger.Info("=== Listing optimizer starting (env=%s, marketplace=%s, ttl=%v) ===",
			a.Config.AppEnv, a.Config.DefaultMarketplace, a.Config.ProductCacheTTL)
		return api.NewServer(a.Config.HTTPAddr, a.Router(ctx), a.Logger).Run(ctx)
	})
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the listings and optimizations tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := storage.Open(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			logger.Info("[migrate] Schema is up to date")
			return db.Close()
		},
	}
}

func optimizeCmd() *cobra.Command {
	var (
		marketplace string
		concurrency int
		retries     int
	)

	cmd := &cobra.Command{
		Use:   "optimize ASIN...",
		Short: "Optimize one or more listings and print the comparison",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if marketplace != "" && !a.Config.IsSupportedMarketplace(marketplace) {
					return fmt.Errorf("unsupported marketplace %q", marketplace)
				}
				if concurrency < 1 {
					concurrency = a.Config.MaxConcurrency
				}
				if !cmd.Flags().Changed("retries") {
					retries = a.Config.MaxRetries
				}

				results := runBatch(ctx, a.Optimizer, args, batchOptions{
					Marketplace: marketplace,
					Concurrency: concurrency,
					RateLimitMs: a.Config.RateLimitMs,
					MaxAttempts: retries,
					BaseDelay:   2 * time.Second,
				}, a.Logger)

				out := cmd.OutOrStdout()
				failed := 0
				for _, r := range results {
					if r.Err != nil {
						failed++
						continue
					}
					PrintComparison(out, r.Result)
				}
				if len(results) > 1 || failed > 0 {
					PrintBatchSummary(out, results)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d optimizations failed", failed, len(results))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&marketplace, "marketplace", "", "marketplace selector, e.g. amazon.de (default from config)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel runs (default MAX_CONCURRENCY)")
	cmd.Flags().IntVar(&retries, "retries", 0, "attempts per ASIN for transient failures (default MAX_RETRIES)")
	return cmd
}

func historyCmd() *cobra.Command {
	var (
		limit   int
		offset  int
		csvPath string
	)

	cmd := &cobra.Command{
		Use:   "history ASIN",
		Short: "List past optimizations for an ASIN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				page, err := a.History.History(ctx, args[0], limit, offset)
				if err != nil {
					return err
				}
				PrintHistory(cmd.OutOrStdout(), page)

				if csvPath == "" {
					return nil
				}
				w, err := storage.NewCSVWriter(csvPath)
				if err != nil {
					return err
				}
				if err := w.WriteOptimizations(page.Optimizations); err != nil {
					_ = w.Close()
					return err
				}
				a.Logger.Info("[history] Wrote %d rows to %s", len(page.Optimizations), csvPath)
				return w.Close()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "page size (default 20, max 100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	cmd.Flags().StringVar(&csvPath, "csv", "", "also export the page to this CSV file")
	return cmd
}

func recentCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the latest optimization for each ASIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.History.Recent(ctx, limit)
				if err != nil {
					return err
				}
				PrintRecent(cmd.OutOrStdout(), items)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "number of ASINs (default 10, max 50)")
	return cmd
}

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge ASIN",
		Short: "Delete every optimization recorded for an ASIN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.History.Purge(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d optimizations for %s\n", n, args[0])
				return nil
			})
		},
	}
}
