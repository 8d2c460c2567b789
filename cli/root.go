// Package cli holds the listing-optimizer command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"listing-optimizer/app"
	"listing-optimizer/config"
	"listing-optimizer/utils"
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "listing-optimizer",
		Short:         "Scrape marketplace listings and rewrite them with Gemini",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(optimizeCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(recentCmd())
	root.AddCommand(purgeCmd())
	return root
}

func bootstrap() (*config.Config, *utils.Logger, error) {
	cfg := config.Load()
	logger, err := utils.NewLoggerWithMode(cfg.LogMode)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}

// withApp builds the application, runs fn and tears everything down.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn("[app] shutdown: %v", err)
		}
	}()

	return fn(ctx, a)
}
