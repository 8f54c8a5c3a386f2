// Package orchestrator drives one crawl run end to end: seed discovery,
// paced detail fetching, extraction, upserts, and the closing sold
// sweep. A run always finishes with a summary, even when aborted.
package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/frontier"
	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
	"github.com/Toufic99/Rapport-Marche-Auto/internal/metrics"
)

// Config carries the run settings from the config layer.
type Config struct {
	Seeds      []market.SeedConfig
	MaxRecords int
	// MinDelay and MaxDelay bound the randomized pause between detail
	// fetches.
	MinDelay time.Duration
	MaxDelay time.Duration
	// RotateEvery forces a session rotation after that many fetches.
	RotateEvery int
	// BlockedCooldown is how long to back off after a blocked fetch
	// before rotating and retrying.
	BlockedCooldown  time.Duration
	MaxFetchAttempts int
	GracePeriod      time.Duration
}

// Orchestrator wires the crawl components together.
type Orchestrator struct {
	cfg      Config
	renderer market.Renderer
	frontier *frontier.Frontier
	extract  market.Extractor
	store    market.Store
	clock    market.Clock
	logger   *zap.Logger

	rng *rand.Rand
	// sleep is swapped for an instant version in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, renderer market.Renderer, fr *frontier.Frontier, ex market.Extractor, store market.Store, clock market.Clock, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		renderer: renderer,
		frontier: fr,
		extract:  ex,
		store:    store,
		clock:    clock,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes one crawl run. The returned CrawlRun is valid even when
// err is non-nil: an aborted run still carries the counters collected
// so far and is persisted as aborted.
func (o *Orchestrator) Run(ctx context.Context) (market.CrawlRun, error) {
	run := market.CrawlRun{
		ID:        uuid.NewString(),
		StartedAt: o.clock.Now(),
		Status:    market.RunStatusRunning,
	}
	if err := o.store.RecordRun(ctx, run); err != nil {
		o.logger.Warn("record run start failed", zap.Error(err))
	}
	metrics.SetRunActive(true)
	defer metrics.SetRunActive(false)

	o.logger.Info("crawl run started",
		zap.String("run_id", run.ID),
		zap.Int("seeds", len(o.cfg.Seeds)),
	)

	observed := make(map[string]struct{})
	runErr := o.crawl(ctx, &run, observed)

	// An aborted run skips the sweep: an incomplete crawl has not
	// observed enough of the market to declare anything sold.
	if runErr == nil {
		sweepAt := o.clock.Now()
		sold, err := o.store.Sweep(ctx, observed, sweepAt, o.cfg.GracePeriod)
		if err != nil {
			o.logger.Error("sold sweep failed", zap.Error(err))
		} else {
			run.Counters.Sold = sold
			metrics.ObserveSold(sold)
		}
	}

	finished := o.clock.Now()
	run.FinishedAt = &finished
	run.Status = market.RunStatusDone
	if runErr != nil {
		run.Status = market.RunStatusAborted
	}
	if err := o.store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		o.logger.Warn("record run finish failed", zap.Error(err))
	}

	o.logger.Info("crawl run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("urls_discovered", run.Counters.URLsDiscovered),
		zap.Int("fetched", run.Counters.Fetched),
		zap.Int("new_listings", run.Counters.NewListings),
		zap.Int("updated", run.Counters.Updated),
		zap.Int("sold", run.Counters.Sold),
		zap.Int("failed_fetches", run.Counters.FailedFetches),
		zap.Int("discarded", run.Counters.Discarded),
	)
	return run, runErr
}

func (o *Orchestrator) crawl(ctx context.Context, run *market.CrawlRun, observed map[string]struct{}) error {
	known, err := o.store.KnownIDs(ctx)
	if err != nil {
		return err
	}

	seenRun := make(map[string]struct{})
	var fetchURLs []string
	for _, seed := range o.cfg.Seeds {
		res, err := o.frontier.Walk(ctx, seed, known, seenRun)
		for id := range res.SeenIDs {
			observed[id] = struct{}{}
		}
		fetchURLs = append(fetchURLs, res.FetchURLs...)
		if err != nil {
			if market.IsBlocked(err) {
				if cErr := o.cooldown(ctx); cErr != nil {
					return cErr
				}
				continue
			}
			return err
		}
	}
	run.Counters.URLsDiscovered = len(fetchURLs)

	processed := 0
	sinceRotation := 0
	for _, u := range fetchURLs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.cfg.MaxRecords > 0 && processed >= o.cfg.MaxRecords {
			o.logger.Info("record cap reached, stopping run early",
				zap.Int("max_records", o.cfg.MaxRecords),
			)
			break
		}

		if err := o.pace(ctx); err != nil {
			return err
		}
		if o.cfg.RotateEvery > 0 && sinceRotation >= o.cfg.RotateEvery {
			o.rotate(ctx)
			sinceRotation = 0
		}

		page, err := o.fetchWithRetry(ctx, u)
		sinceRotation++
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			run.Counters.FailedFetches++
			metrics.ObserveFetch("failed")
			o.logger.Warn("detail fetch failed",
				zap.String("url", u),
				zap.Error(err),
			)
			continue
		}
		run.Counters.Fetched++
		metrics.ObserveFetch("ok")

		partial := o.extract.Extract(page)
		if !partial.Viable() {
			run.Counters.Discarded++
			metrics.ObserveListing("discarded")
			o.logger.Debug("extraction below minimum field set",
				zap.String("url", u),
			)
			continue
		}

		_, created, err := o.store.Upsert(ctx, partial, o.clock.Now())
		if err != nil {
			o.logger.Error("upsert failed",
				zap.String("source_id", partial.SourceID),
				zap.Error(err),
			)
			continue
		}
		observed[partial.SourceID] = struct{}{}
		processed++
		if created {
			run.Counters.NewListings++
			metrics.ObserveListing("new")
		} else {
			run.Counters.Updated++
			metrics.ObserveListing("updated")
		}
	}
	return nil
}

// fetchWithRetry applies the retry policy: blocked fetches cool down
// and rotate the session before retrying, transient failures retry
// immediately, not-found gives up at once.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, u string) (market.RenderedPage, error) {
	attempts := o.cfg.MaxFetchAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		page, err := o.renderer.Fetch(ctx, u)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return market.RenderedPage{}, err
		}
		if !market.Retryable(err) {
			return market.RenderedPage{}, err
		}
		if market.IsBlocked(err) {
			if cErr := o.cooldown(ctx); cErr != nil {
				return market.RenderedPage{}, cErr
			}
		}
	}
	return market.RenderedPage{}, lastErr
}

// pace sleeps a random duration between the configured bounds.
func (o *Orchestrator) pace(ctx context.Context) error {
	d := o.cfg.MinDelay
	if spread := o.cfg.MaxDelay - o.cfg.MinDelay; spread > 0 {
		d += time.Duration(o.rng.Int63n(int64(spread)))
	}
	if d <= 0 {
		return ctx.Err()
	}
	metrics.ObservePacingDelay(d)
	return o.sleep(ctx, d)
}

// cooldown backs off after a blocked response and starts over with a
// fresh session.
func (o *Orchestrator) cooldown(ctx context.Context) error {
	o.logger.Info("blocked by target, cooling down",
		zap.Duration("cooldown", o.cfg.BlockedCooldown),
	)
	if err := o.sleep(ctx, o.cfg.BlockedCooldown); err != nil {
		return err
	}
	o.rotate(ctx)
	return nil
}

func (o *Orchestrator) rotate(ctx context.Context) {
	if err := o.renderer.RotateSession(ctx); err != nil {
		o.logger.Warn("session rotation failed", zap.Error(err))
		return
	}
	metrics.ObserveSessionRotation()
}
