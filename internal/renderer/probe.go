package renderer

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

// probeFetcher does the cheap first pass over a URL: plain HTTP through
// a Colly collector, no JavaScript. Pages that come back blocked or as
// an empty client-side shell get promoted to the headless session.
type probeFetcher struct {
	baseCollector *colly.Collector
	timeout       time.Duration
	logger        *zap.Logger
}

func newProbeFetcher(cfg Config, logger *zap.Logger) (*probeFetcher, error) {
	base := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
	)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.FetchTimeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.FetchTimeout)

	return &probeFetcher{
		baseCollector: base,
		timeout:       cfg.FetchTimeout,
		logger:        logger,
	}, nil
}

type probeResult struct {
	page market.RenderedPage
	err  error
}

func (f *probeFetcher) Fetch(ctx context.Context, rawURL string) (market.RenderedPage, error) {
	start := time.Now()
	collector := f.baseCollector.Clone()

	resultCh := make(chan probeResult, 1)
	var once sync.Once
	send := func(res probeResult) {
		once.Do(func() { resultCh <- res })
	}

	collector.OnResponse(func(r *colly.Response) {
		send(probeResult{page: market.RenderedPage{
			URL:        rawURL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			HTML:       string(r.Body),
			UsedJS:     false,
			Duration:   time.Since(start),
		}})
	})

	collector.OnError(func(r *colly.Response, err error) {
		// Colly reports non-2xx statuses through OnError with the
		// response attached. Keep the body: a 403 interstitial still
		// feeds the block detector.
		if r != nil && r.StatusCode != 0 {
			send(probeResult{page: market.RenderedPage{
				URL:        rawURL,
				FinalURL:   rawURL,
				StatusCode: r.StatusCode,
				HTML:       string(r.Body),
				Duration:   time.Since(start),
			}})
			return
		}
		if err == nil {
			err = errors.New("colly error with no detail")
		}
		send(probeResult{err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return market.RenderedPage{}, classifyProbeErr(rawURL, err)
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return market.RenderedPage{}, err
		}
		if res.err != nil {
			return market.RenderedPage{}, classifyProbeErr(rawURL, res.err)
		}
		return res.page, nil
	default:
		return market.RenderedPage{}, market.NewFetchError(market.FetchTransient, rawURL,
			errors.New("probe produced no result"))
	}
}

func classifyProbeErr(rawURL string, err error) error {
	kind := market.FetchTransient
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		kind = market.FetchTimeout
	}
	return market.NewFetchError(kind, rawURL, err)
}
