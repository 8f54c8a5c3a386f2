// Package postgres provides the Postgres-backed market.Store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the connection pool.
type Config struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// dbPool is the slice of pgxpool.Pool the store uses; pgxmock satisfies
// it in tests.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store implements market.Store on Postgres.
type Store struct {
	pool   dbPool
	logger *zap.Logger
}

// New connects a pool and ensures the schema exists.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: pool, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing). The schema is not touched.
func NewWithPool(pool dbPool, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const listingColumns = `source_id, url, title, price_current, price_initial,
	brand, model, year, mileage, fuel_type, transmission, color,
	city, postal_code, region_code, seller_type, photo_count, description,
	first_seen, last_seen, status, sold_at`

func scanListing(row pgx.Row) (market.Listing, error) {
	var l market.Listing
	err := row.Scan(
		&l.SourceID, &l.URL, &l.Title, &l.PriceCurrent, &l.PriceInitial,
		&l.Brand, &l.Model, &l.Year, &l.Mileage, &l.FuelType, &l.Transmission, &l.Color,
		&l.City, &l.PostalCode, &l.RegionCode, &l.SellerType, &l.PhotoCount, &l.Description,
		&l.FirstSeen, &l.LastSeen, &l.Status, &l.SoldAt,
	)
	return l, err
}

// Upsert applies one observation inside a transaction: the row is read
// with FOR UPDATE, merged in Go with the same semantics the memory
// store uses, and written back. SOLD rows are left untouched.
func (s *Store) Upsert(ctx context.Context, partial market.PartialListing, observedAt time.Time) (market.Listing, bool, error) {
	if !partial.Viable() {
		return market.Listing{}, false, market.ErrNotViable
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return market.Listing{}, false, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := scanListing(tx.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE source_id = $1 FOR UPDATE`,
		partial.SourceID,
	))

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		l := market.NewListingFrom(partial, observedAt)
		inserted, err := insertListing(ctx, tx, l)
		if err != nil {
			return market.Listing{}, false, err
		}
		if inserted {
			if l.PriceCurrent != nil {
				if err := insertObservation(ctx, tx, l.SourceID, *l.PriceCurrent, observedAt, l.Status); err != nil {
					return market.Listing{}, false, err
				}
			}
			if err := tx.Commit(ctx); err != nil {
				return market.Listing{}, false, fmt.Errorf("commit upsert: %w", err)
			}
			return l, true, nil
		}
		// A concurrent upsert created the row between our empty select
		// and the insert. Lock it and merge like any known listing.
		existing, err = scanListing(tx.QueryRow(ctx,
			`SELECT `+listingColumns+` FROM listings WHERE source_id = $1 FOR UPDATE`,
			partial.SourceID,
		))
		if err != nil {
			return market.Listing{}, false, fmt.Errorf("load listing: %w", err)
		}

	case err != nil:
		return market.Listing{}, false, fmt.Errorf("load listing: %w", err)
	}

	if existing.Status == market.StatusSold {
		s.logger.Warn("observation for sold listing dropped",
			zap.String("source_id", partial.SourceID),
		)
		return existing, false, nil
	}

	priceChanged := partial.Price != nil &&
		(existing.PriceCurrent == nil || *existing.PriceCurrent != *partial.Price)
	existing.Merge(partial, observedAt)

	if err := updateListing(ctx, tx, existing); err != nil {
		return market.Listing{}, false, err
	}
	if priceChanged {
		if err := insertObservation(ctx, tx, existing.SourceID, *partial.Price, observedAt, existing.Status); err != nil {
			return market.Listing{}, false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return market.Listing{}, false, fmt.Errorf("commit upsert: %w", err)
	}
	return existing, false, nil
}

// insertListing reports whether the row was actually created; a
// conflict means another transaction inserted the id first.
func insertListing(ctx context.Context, tx pgx.Tx, l market.Listing) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (source_id) DO NOTHING`,
		l.SourceID, l.URL, l.Title, l.PriceCurrent, l.PriceInitial,
		l.Brand, l.Model, l.Year, l.Mileage, l.FuelType, l.Transmission, l.Color,
		l.City, l.PostalCode, l.RegionCode, l.SellerType, l.PhotoCount, l.Description,
		l.FirstSeen, l.LastSeen, l.Status, l.SoldAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert listing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func updateListing(ctx context.Context, tx pgx.Tx, l market.Listing) error {
	_, err := tx.Exec(ctx, `
		UPDATE listings SET
			url = $2, title = $3, price_current = $4, price_initial = $5,
			brand = $6, model = $7, year = $8, mileage = $9, fuel_type = $10,
			transmission = $11, color = $12, city = $13, postal_code = $14,
			region_code = $15, seller_type = $16, photo_count = $17,
			description = $18, last_seen = $19
		WHERE source_id = $1`,
		l.SourceID, l.URL, l.Title, l.PriceCurrent, l.PriceInitial,
		l.Brand, l.Model, l.Year, l.Mileage, l.FuelType,
		l.Transmission, l.Color, l.City, l.PostalCode,
		l.RegionCode, l.SellerType, l.PhotoCount,
		l.Description, l.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	return nil
}

func insertObservation(ctx context.Context, tx pgx.Tx, sourceID string, price int64, at time.Time, status market.ListingStatus) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO price_observations (source_id, price, observed_at, status)
		VALUES ($1, $2, $3, $4)`,
		sourceID, price, at, status,
	)
	if err != nil {
		return fmt.Errorf("insert price observation: %w", err)
	}
	return nil
}

// Sweep refreshes last-seen for observed ids, then flips ACTIVE rows
// unseen for at least the grace period to SOLD.
func (s *Store) Sweep(ctx context.Context, observedIDs map[string]struct{}, observedAt time.Time, grace time.Duration) (int, error) {
	if len(observedIDs) > 0 {
		ids := make([]string, 0, len(observedIDs))
		for id := range observedIDs {
			ids = append(ids, id)
		}
		_, err := s.pool.Exec(ctx, `
			UPDATE listings SET last_seen = $1
			WHERE status = $2 AND source_id = ANY($3) AND last_seen < $1`,
			observedAt, market.StatusActive, ids,
		)
		if err != nil {
			return 0, fmt.Errorf("refresh observed listings: %w", err)
		}
	}

	cutoff := observedAt.Add(-grace)
	tag, err := s.pool.Exec(ctx, `
		UPDATE listings SET status = $1, sold_at = $2
		WHERE status = $3 AND last_seen <= $4`,
		market.StatusSold, observedAt, market.StatusActive, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("sweep sold listings: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) Get(ctx context.Context, sourceID string) (market.Listing, error) {
	l, err := scanListing(s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE source_id = $1`,
		sourceID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Listing{}, market.ErrNotFound
	}
	if err != nil {
		return market.Listing{}, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func (s *Store) KnownIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT source_id FROM listings`)
	if err != nil {
		return nil, fmt.Errorf("load known ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan known id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate known ids: %w", err)
	}
	return ids, nil
}

func (s *Store) List(ctx context.Context, limit, offset int) ([]market.Listing, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM listings`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count listings: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings
		ORDER BY last_seen DESC, source_id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	out, err := collectListings(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) PriceHistory(ctx context.Context, sourceID string) ([]market.PriceObservation, error) {
	if _, err := s.Get(ctx, sourceID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT source_id, price, observed_at, status
		FROM price_observations WHERE source_id = $1 ORDER BY observed_at`,
		sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("load price history: %w", err)
	}
	defer rows.Close()

	var out []market.PriceObservation
	for rows.Next() {
		var o market.PriceObservation
		if err := rows.Scan(&o.SourceID, &o.Price, &o.ObservedAt, &o.Status); err != nil {
			return nil, fmt.Errorf("scan price observation: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price history: %w", err)
	}
	return out, nil
}

func collectListings(rows pgx.Rows) ([]market.Listing, error) {
	var out []market.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return out, nil
}
