// Package frontier discovers detail-page URLs by walking paginated
// search results. It dedups within a page, across the run, and against
// ids the store already knows, and stops a seed early once the stream
// turns into listings seen in previous runs.
package frontier

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

// Config carries the discovery settings from the config layer.
type Config struct {
	PagesPerSeed int
	// KnownStreak stops a seed after this many consecutive
	// already-known detail URLs. Search results are ordered newest
	// first, so a long known run means the rest of the seed is old.
	KnownStreak int
	// RefreshKnown re-queues known listings for fetching so price
	// changes are observed. When false they only count as seen.
	RefreshKnown bool
}

// detailURLRe matches absolute vehicle detail URLs, with or without the
// .htm suffix, the way they appear in rendered search result markup.
var detailURLRe = regexp.MustCompile(`https://www\.leboncoin\.fr/ad/voitures/\d+(?:\.htm)?`)

// Result is the outcome of walking one seed.
type Result struct {
	// FetchURLs are the detail pages to fetch this run, in discovery
	// order. Known listings are included only when RefreshKnown is set.
	FetchURLs []string
	// SeenIDs are all ids observed in the seed's result pages,
	// fetched or not. The sold sweep treats them as alive.
	SeenIDs map[string]struct{}
	// PagesWalked counts result pages fetched, failures included.
	PagesWalked int
	// Stopped reports an early stop on a known-listing streak.
	Stopped bool
}

// Frontier walks seeds through a renderer.
type Frontier struct {
	cfg      Config
	renderer market.Renderer
	logger   *zap.Logger
}

func New(cfg Config, renderer market.Renderer, logger *zap.Logger) *Frontier {
	return &Frontier{cfg: cfg, renderer: renderer, logger: logger}
}

// Walk pages through one seed. A failed page is skipped, not fatal:
// the seed continues on the next page. known holds source ids from the
// store; seenRun dedups across seeds within the run and is mutated.
func (f *Frontier) Walk(ctx context.Context, seed market.SeedConfig, known map[string]struct{}, seenRun map[string]struct{}) (Result, error) {
	res := Result{SeenIDs: make(map[string]struct{})}
	streak := 0

	for page := 1; page <= f.cfg.PagesPerSeed; page++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		pageURL := buildPageURL(seed.BaseURL, page)
		rendered, err := f.renderer.Fetch(ctx, pageURL)
		res.PagesWalked++
		if err != nil {
			if market.IsBlocked(err) {
				// Let the orchestrator cool down instead of burning
				// through the remaining pages while blocked.
				return res, err
			}
			f.logger.Warn("search page fetch failed, skipping",
				zap.String("seed", seed.Name),
				zap.Int("page", page),
				zap.Error(err),
			)
			continue
		}

		urls := extractDetailURLs(rendered.HTML)
		if len(urls) == 0 {
			f.logger.Debug("search page yielded no listings",
				zap.String("seed", seed.Name),
				zap.Int("page", page),
			)
			continue
		}

		for _, u := range urls {
			id := market.SourceIDFromURL(u)
			if id == "" {
				continue
			}
			if _, dup := res.SeenIDs[id]; dup {
				continue
			}
			res.SeenIDs[id] = struct{}{}

			if _, inRun := seenRun[id]; inRun {
				continue
			}
			seenRun[id] = struct{}{}

			if _, old := known[id]; old {
				streak++
				if f.cfg.RefreshKnown {
					res.FetchURLs = append(res.FetchURLs, u)
				}
				if f.cfg.KnownStreak > 0 && streak >= f.cfg.KnownStreak {
					res.Stopped = true
					f.logger.Info("seed stopped on known streak",
						zap.String("seed", seed.Name),
						zap.Int("page", page),
						zap.Int("streak", streak),
					)
					return res, nil
				}
				continue
			}
			streak = 0
			res.FetchURLs = append(res.FetchURLs, u)
		}
	}
	return res, nil
}

// buildPageURL appends the page parameter the way the site paginates.
// Page 1 is the seed itself.
func buildPageURL(base string, page int) string {
	if page <= 1 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spage=%d", base, sep, page)
}

func extractDetailURLs(html string) []string {
	return detailURLRe.FindAllString(html, -1)
}
