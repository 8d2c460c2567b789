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

const listingColumns = `id, asin, marketplace, title, bullet_points, description, price, image_url, fetched_at`

// PostgresListingStore persists listing snapshots to PostgreSQL.
type PostgresListingStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresListingStore wraps an open pool.
func NewPostgresListingStore(db *sql.DB) *PostgresListingStore {
	return &PostgresListingStore{db: db, now: time.Now}
}

// FindFreshSnapshot returns the newest snapshot fetched less than ttl ago.
func (s *PostgresListingStore) FindFreshSnapshot(ctx context.Context, asin string, ttl time.Duration) (*models.Listing, error) {
	cutoff := s.now().Add(-ttl)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE asin = $1 AND fetched_at > $2
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1
	`, asin, cutoff)

	l, err := scanListing(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: find fresh snapshot %s: %w", asin, err)
	}
	return l, nil
}

// FindLatest returns the newest snapshot regardless of age.
func (s *PostgresListingStore) FindLatest(ctx context.Context, asin string) (*models.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE asin = $1
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1
	`, asin)

	l, err := scanListing(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: find latest %s: %w", asin, err)
	}
	return l, nil
}

// Save inserts a new snapshot and returns its id. Snapshots are never updated.
func (s *PostgresListingStore) Save(ctx context.Context, l *models.Listing) (int64, error) {
	fetchedAt := l.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = s.now()
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO listings (asin, marketplace, title, bullet_points, description, price, image_url, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		l.ASIN, l.Marketplace, l.Title,
		pq.Array(models.NonNil(l.BulletPoints)),
		models.TruncateDescription(l.Description),
		nullString(l.Price), nullString(l.ImageURL), fetchedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: save listing %s: %w", l.ASIN, err)
	}
	return id, nil
}

func scanListing(row *sql.Row) (*models.Listing, error) {
	var (
		l        models.Listing
		price    sql.NullString
		imageURL sql.NullString
	)
	err := row.Scan(
		&l.ID, &l.ASIN, &l.Marketplace, &l.Title, pq.Array(&l.BulletPoints),
		&l.Description, &price, &imageURL, &l.FetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.BulletPoints = models.NonNil(l.BulletPoints)
	l.Price = stringPtr(price)
	l.ImageURL = stringPtr(imageURL)
	l.FetchedAt = l.FetchedAt.UTC()
	return &l, nil
}
