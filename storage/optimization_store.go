package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"listing-optimizer/models"
)

const optimizationColumns = `o.id, o.listing_id, o.asin, o.optimized_title, o.optimized_bullets,
	o.optimized_description, o.keywords, o.model_used, o.prompt_tokens, o.completion_tokens, o.created_at`

// PostgresOptimizationStore persists rewrites to PostgreSQL.
type PostgresOptimizationStore struct {
	db *sql.DB
}

// NewPostgresOptimizationStore wraps an open pool.
func NewPostgresOptimizationStore(db *sql.DB) *PostgresOptimizationStore {
	return &PostgresOptimizationStore{db: db}
}

// Record inserts one optimization and returns its id.
func (s *PostgresOptimizationStore) Record(ctx context.Context, o *models.Optimization) (int64, error) {
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO optimizations (
			listing_id, asin, optimized_title, optimized_bullets, optimized_description,
			keywords, model_used, prompt_tokens, completion_tokens, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		o.ListingID, o.ASIN, o.OptimizedTitle,
		pq.Array(models.NonNil(o.OptimizedBullets)),
		o.OptimizedDescription,
		pq.Array(models.NonNil(o.Keywords)),
		o.ModelUsed, nullInt(o.PromptTokens), nullInt(o.CompletionTokens), createdAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: record optimization %s: %w", o.ASIN, err)
	}
	return id, nil
}

// ListByIdentifier returns a page of optimizations for asin, newest first.
func (s *PostgresOptimizationStore) ListByIdentifier(ctx context.Context, asin string, limit, offset int) ([]models.Optimization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+optimizationColumns+`
		FROM optimizations o
		WHERE o.asin = $1
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $2 OFFSET $3
	`, asin, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list optimizations %s: %w", asin, err)
	}
	defer rows.Close()

	out := []models.Optimization{}
	for rows.Next() {
		o, err := scanOptimization(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan optimization: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountByIdentifier returns how many optimizations exist for asin.
func (s *PostgresOptimizationStore) CountByIdentifier(ctx context.Context, asin string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM optimizations WHERE asin = $1`, asin,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count optimizations %s: %w", asin, err)
	}
	return n, nil
}

// GetWithListing returns an optimization joined with the snapshot it was made from.
func (s *PostgresOptimizationStore) GetWithListing(ctx context.Context, id int64) (*models.OptimizationDetail, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+optimizationColumns+`,
			l.title, l.bullet_points, l.description, l.price, l.image_url
		FROM optimizations o
		JOIN listings l ON l.id = o.listing_id
		WHERE o.id = $1
	`, id)

	var (
		d        models.OptimizationDetail
		price    sql.NullString
		imageURL sql.NullString
	)
	o, err := scanOptimization(row,
		&d.OriginalTitle, pq.Array(&d.OriginalBullets), &d.OriginalDescription, &price, &imageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get optimization %d: %w", id, err)
	}
	d.Optimization = o
	d.OriginalBullets = models.NonNil(d.OriginalBullets)
	d.OriginalPrice = stringPtr(price)
	d.OriginalImageURL = stringPtr(imageURL)
	return &d, nil
}

// MostRecentPerIdentifier returns the latest optimization of each ASIN,
// newest first.
func (s *PostgresOptimizationStore) MostRecentPerIdentifier(ctx context.Context, limit int) ([]models.RecentOptimization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.asin, o.optimized_title, o.model_used, o.created_at, l.title, l.image_url
		FROM optimizations o
		JOIN (
			SELECT asin, MAX(id) AS max_id
			FROM optimizations
			GROUP BY asin
		) latest ON latest.max_id = o.id
		JOIN listings l ON l.id = o.listing_id
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent optimizations: %w", err)
	}
	defer rows.Close()

	out := []models.RecentOptimization{}
	for rows.Next() {
		var (
			r        models.RecentOptimization
			imageURL sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.ASIN, &r.OptimizedTitle, &r.ModelUsed, &r.CreatedAt,
			&r.OriginalTitle, &imageURL); err != nil {
			return nil, fmt.Errorf("postgres: scan recent optimization: %w", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		r.OriginalImageURL = stringPtr(imageURL)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteByIdentifier removes every optimization for asin and reports how many
// rows were deleted. Listing snapshots are kept.
func (s *PostgresOptimizationStore) DeleteByIdentifier(ctx context.Context, asin string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM optimizations WHERE asin = $1`, asin)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete optimizations %s: %w", asin, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: delete optimizations %s: %w", asin, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanOptimization reads optimizationColumns followed by any extra columns.
func scanOptimization(row rowScanner, extra ...any) (models.Optimization, error) {
	var (
		o          models.Optimization
		prompt     sql.NullInt64
		completion sql.NullInt64
	)
	dest := append([]any{
		&o.ID, &o.ListingID, &o.ASIN, &o.OptimizedTitle, pq.Array(&o.OptimizedBullets),
		&o.OptimizedDescription, pq.Array(&o.Keywords), &o.ModelUsed,
		&prompt, &completion, &o.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return o, err
	}
	o.OptimizedBullets = models.NonNil(o.OptimizedBullets)
	o.Keywords = models.NonNil(o.Keywords)
	o.PromptTokens = intPtr(prompt)
	o.CompletionTokens = intPtr(completion)
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}
