package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

// RecordRun inserts or replaces a run record. The same id is written
// twice per run: once at start and once with the final counters.
func (s *Store) RecordRun(ctx context.Context, run market.CrawlRun) error {
	counters, err := json.Marshal(run.Counters)
	if err != nil {
		return fmt.Errorf("marshal run counters: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO crawl_runs (id, started_at, finished_at, status, counters)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET finished_at = EXCLUDED.finished_at,
			status = EXCLUDED.status,
			counters = EXCLUDED.counters`,
		run.ID, run.StartedAt, run.FinishedAt, run.Status, counters,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]market.CrawlRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, started_at, finished_at, status, counters
		FROM crawl_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []market.CrawlRun
	for rows.Next() {
		var run market.CrawlRun
		var counters []byte
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Status, &counters); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if len(counters) > 0 {
			if err := json.Unmarshal(counters, &run.Counters); err != nil {
				return nil, fmt.Errorf("unmarshal run counters: %w", err)
			}
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
