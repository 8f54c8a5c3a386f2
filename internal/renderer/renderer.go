// Package renderer fetches marketplace pages. Every URL goes through a
// cheap HTTP probe first; responses that look like an anti-bot wall or
// a JavaScript shell are retried through a shared headless Chrome
// session. Both paths come back as a market.RenderedPage.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

// Config carries the renderer settings from the config layer.
type Config struct {
	UserAgent      string
	FetchTimeout   time.Duration
	HeadlessAlways bool
	DomainQPS      float64
	PromotionBytes int
}

type fetcher interface {
	Fetch(ctx context.Context, rawURL string) (market.RenderedPage, error)
}

type session interface {
	fetcher
	RotateSession(ctx context.Context) error
	Close(ctx context.Context) error
}

// Promoting implements market.Renderer with the probe-then-promote
// policy.
type Promoting struct {
	cfg            Config
	probe          fetcher
	headless       session
	domainLimiters sync.Map
	logger         *zap.Logger
}

// New builds the probe collector and warms up the headless browser.
func New(cfg Config, logger *zap.Logger) (*Promoting, error) {
	probe, err := newProbeFetcher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("probe fetcher: %w", err)
	}
	headless, err := newHeadlessSession(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("headless session: %w", err)
	}
	return &Promoting{
		cfg:      cfg,
		probe:    probe,
		headless: headless,
		logger:   logger,
	}, nil
}

// Fetch returns the rendered page or a *market.FetchError describing
// why the URL could not be fetched.
func (p *Promoting) Fetch(ctx context.Context, rawURL string) (market.RenderedPage, error) {
	if err := p.waitDomainBudget(ctx, rawURL); err != nil {
		return market.RenderedPage{}, err
	}

	if p.cfg.HeadlessAlways {
		return p.fetchHeadless(ctx, rawURL)
	}

	page, err := p.probe.Fetch(ctx, rawURL)
	if err != nil {
		return market.RenderedPage{}, err
	}
	if page.StatusCode == http.StatusNotFound || page.StatusCode == http.StatusGone {
		return market.RenderedPage{}, market.NewFetchError(market.FetchNotFound, rawURL,
			fmt.Errorf("status %d", page.StatusCode))
	}
	if looksBlocked(page) || needsRender(page, p.cfg.PromotionBytes) {
		p.logger.Debug("promoting to headless",
			zap.String("url", rawURL),
			zap.Int("status", page.StatusCode),
			zap.Int("bytes", len(page.HTML)),
		)
		return p.fetchHeadless(ctx, rawURL)
	}
	return page, nil
}

func (p *Promoting) fetchHeadless(ctx context.Context, rawURL string) (market.RenderedPage, error) {
	page, err := p.headless.Fetch(ctx, rawURL)
	if err != nil {
		return market.RenderedPage{}, err
	}
	if page.StatusCode == http.StatusNotFound || page.StatusCode == http.StatusGone {
		return market.RenderedPage{}, market.NewFetchError(market.FetchNotFound, rawURL,
			fmt.Errorf("status %d", page.StatusCode))
	}
	if looksBlocked(page) {
		return market.RenderedPage{}, market.NewFetchError(market.FetchBlocked, rawURL,
			errors.New("anti-bot wall after render"))
	}
	return page, nil
}

// RotateSession discards the headless browser's identity. Called by the
// orchestrator on a schedule and after every blocked fetch.
func (p *Promoting) RotateSession(ctx context.Context) error {
	return p.headless.RotateSession(ctx)
}

func (p *Promoting) Close(ctx context.Context) error {
	return p.headless.Close(ctx)
}

func (p *Promoting) waitDomainBudget(ctx context.Context, rawURL string) error {
	if p.cfg.DomainQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return market.NewFetchError(market.FetchNotFound, rawURL,
			fmt.Errorf("parse url: %w", err))
	}
	host := strings.ToLower(parsed.Host)
	val, _ := p.domainLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(p.cfg.DomainQPS), 1))
	limiter := val.(*rate.Limiter)
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait domain budget: %w", err)
	}
	return nil
}
