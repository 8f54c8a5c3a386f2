// Package memory provides an in-memory market.Store. It backs tests and
// the standalone serve mode when no database is configured; semantics
// mirror the Postgres store exactly.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

const defaultSearchLimit = 100

// Store holds listings, price history and run records behind one lock.
type Store struct {
	mu       sync.RWMutex
	listings map[string]*market.Listing
	prices   map[string][]market.PriceObservation
	runs     []market.CrawlRun
	logger   *zap.Logger
}

func New(logger *zap.Logger) *Store {
	return &Store{
		listings: make(map[string]*market.Listing),
		prices:   make(map[string][]market.PriceObservation),
		logger:   logger,
	}
}

// Upsert applies one observation. New ids create an ACTIVE listing;
// known ids get a null-preserving merge. SOLD is terminal: a reappearing
// id is logged and dropped without touching the stored record.
func (s *Store) Upsert(ctx context.Context, partial market.PartialListing, observedAt time.Time) (market.Listing, bool, error) {
	if err := ctx.Err(); err != nil {
		return market.Listing{}, false, err
	}
	if !partial.Viable() {
		return market.Listing{}, false, market.ErrNotViable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.listings[partial.SourceID]
	if !ok {
		l := market.NewListingFrom(partial, observedAt)
		s.listings[partial.SourceID] = &l
		if partial.Price != nil {
			s.appendPrice(partial.SourceID, *partial.Price, observedAt, market.StatusActive)
		}
		return l, true, nil
	}

	if existing.Status == market.StatusSold {
		s.logger.Warn("observation for sold listing dropped",
			zap.String("source_id", partial.SourceID),
		)
		return *existing, false, nil
	}

	priceChanged := partial.Price != nil &&
		(existing.PriceCurrent == nil || *existing.PriceCurrent != *partial.Price)
	existing.Merge(partial, observedAt)
	if priceChanged {
		s.appendPrice(partial.SourceID, *partial.Price, observedAt, existing.Status)
	}
	return *existing, false, nil
}

func (s *Store) appendPrice(sourceID string, price int64, at time.Time, status market.ListingStatus) {
	s.prices[sourceID] = append(s.prices[sourceID], market.PriceObservation{
		SourceID:   sourceID,
		Price:      price,
		ObservedAt: at,
		Status:     status,
	})
}

// Sweep refreshes last-seen for every observed id, then marks ACTIVE
// listings unseen for at least the grace period as SOLD.
func (s *Store) Sweep(ctx context.Context, observedIDs map[string]struct{}, observedAt time.Time, grace time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range observedIDs {
		if l, ok := s.listings[id]; ok && l.Status == market.StatusActive {
			if l.LastSeen.Before(observedAt) {
				l.LastSeen = observedAt
			}
		}
	}

	sold := 0
	for _, l := range s.listings {
		if l.Status != market.StatusActive {
			continue
		}
		if observedAt.Sub(l.LastSeen) >= grace {
			at := observedAt
			l.Status = market.StatusSold
			l.SoldAt = &at
			sold++
		}
	}
	return sold, nil
}

func (s *Store) Get(ctx context.Context, sourceID string) (market.Listing, error) {
	if err := ctx.Err(); err != nil {
		return market.Listing{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[sourceID]
	if !ok {
		return market.Listing{}, market.ErrNotFound
	}
	return *l, nil
}

func (s *Store) KnownIDs(ctx context.Context) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(map[string]struct{}, len(s.listings))
	for id := range s.listings {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// List returns listings newest-first by last-seen with the total count.
func (s *Store) List(ctx context.Context, limit, offset int) ([]market.Listing, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.snapshot()
	total := len(all)
	if offset >= len(all) {
		return []market.Listing{}, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (s *Store) Search(ctx context.Context, filter market.ListingFilter) ([]market.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	out := make([]market.Listing, 0, limit)
	for _, l := range s.snapshot() {
		if !filter.Matches(l) {
			continue
		}
		out = append(out, l)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) PriceHistory(ctx context.Context, sourceID string) ([]market.PriceObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.listings[sourceID]; !ok {
		return nil, market.ErrNotFound
	}
	history := s.prices[sourceID]
	out := make([]market.PriceObservation, len(history))
	copy(out, history)
	return out, nil
}

func (s *Store) RecordRun(ctx context.Context, run market.CrawlRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == run.ID {
			s.runs[i] = run
			return nil
		}
	}
	s.runs = append(s.runs, run)
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]market.CrawlRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]market.CrawlRun, len(s.runs))
	copy(out, s.runs)
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Close() {}

// snapshot copies listings sorted newest-first by last-seen, id as a
// tiebreak for determinism.
func (s *Store) snapshot() []market.Listing {
	all := make([]market.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		all = append(all, *l)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].LastSeen.Equal(all[j].LastSeen) {
			return all[i].LastSeen.After(all[j].LastSeen)
		}
		return all[i].SourceID < all[j].SourceID
	})
	return all
}
