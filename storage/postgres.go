package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"listing-optimizer/config"
	"listing-optimizer/utils"
)

// Open connects to PostgreSQL, waits for it to accept connections and applies
// the schema. The returned pool is shared by both stores.
func Open(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	retry := &utils.RetryConfig{MaxAttempts: 10, BaseDelay: time.Second, Logger: logger}
	if err := retry.Do(ctx, "postgres ping", db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	logger.Info("[postgres] Connected to %s:%s/%s", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB)
	return db, nil
}

// Migrate creates the listings and optimizations tables if they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			id            BIGSERIAL     PRIMARY KEY,
			asin          VARCHAR(10)   NOT NULL,
			marketplace   VARCHAR(50)   NOT NULL DEFAULT '',
			title         TEXT          NOT NULL,
			bullet_points TEXT[]        NOT NULL DEFAULT '{}',
			description   TEXT          NOT NULL DEFAULT '',
			price         VARCHAR(50),
			image_url     VARCHAR(2048),
			fetched_at    TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			created_at    TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_asin_fetched ON listings(asin, fetched_at DESC);

		CREATE TABLE IF NOT EXISTS optimizations (
			id                    BIGSERIAL    PRIMARY KEY,
			listing_id            BIGINT       NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
			asin                  VARCHAR(10)  NOT NULL,
			optimized_title       TEXT         NOT NULL,
			optimized_bullets     TEXT[]       NOT NULL DEFAULT '{}',
			optimized_description TEXT         NOT NULL,
			keywords              TEXT[]       NOT NULL DEFAULT '{}',
			model_used            VARCHAR(100) NOT NULL,
			prompt_tokens         INTEGER,
			completion_tokens     INTEGER,
			created_at            TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_optimizations_asin_created ON optimizations(asin, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_optimizations_listing      ON optimizations(listing_id);
	`)
	return err
}

// Ping reports whether the database answers within ctx.
func Ping(ctx context.Context, db *sql.DB) error {
	return db.PingContext(ctx)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
