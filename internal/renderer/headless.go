package renderer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/Toufic99/Rapport-Marche-Auto/internal/market"
)

// headlessSession owns one headless Chrome browser. Rotation tears the
// browser down and starts a fresh one, dropping cookies and fingerprint
// state the marketplace accumulates against a session.
type headlessSession struct {
	mu              sync.Mutex
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	userAgent       string
	timeout         time.Duration
	logger          *zap.Logger
}

func newHeadlessSession(cfg Config, logger *zap.Logger) (*headlessSession, error) {
	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	s := &headlessSession{
		allocatorCtx:    allocatorCtx,
		allocatorCancel: allocatorCancel,
		userAgent:       cfg.UserAgent,
		timeout:         cfg.FetchTimeout,
		logger:          logger,
	}
	if err := s.startBrowser(); err != nil {
		allocatorCancel()
		return nil, err
	}
	return s, nil
}

func (s *headlessSession) startBrowser() error {
	browserCtx, browserCancel := chromedp.NewContext(s.allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		return fmt.Errorf("chromedp warmup: %w", err)
	}
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	return nil
}

// RotateSession replaces the browser under the allocator. Safe to call
// between fetches; concurrent fetches hold the same lock.
func (s *headlessSession) RotateSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.browserCancel()
	if err := s.startBrowser(); err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	s.logger.Info("headless session rotated")
	return nil
}

func (s *headlessSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.browserCancel()
	s.allocatorCancel()
	return nil
}

// Fetch navigates a fresh tab and snapshots both the DOM and the body
// text the extractor's line scanner needs.
func (s *headlessSession) Fetch(ctx context.Context, rawURL string) (market.RenderedPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, s.timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	meta := newResponseMeta()
	recordResponse(tabCtx, meta)

	var html, text string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(s.userAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Text("body", &text, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		kind := market.FetchTransient
		if taskCtx.Err() == context.DeadlineExceeded {
			kind = market.FetchTimeout
		}
		return market.RenderedPage{}, market.NewFetchError(kind, rawURL,
			fmt.Errorf("chromedp run: %w", err))
	}

	page := market.RenderedPage{
		URL:        rawURL,
		FinalURL:   meta.finalURL(rawURL),
		StatusCode: meta.statusCode,
		HTML:       html,
		Text:       text,
		UsedJS:     true,
		Duration:   time.Since(start),
	}
	return page, nil
}

type responseMeta struct {
	once       sync.Once
	statusCode int
	url        string
}

func newResponseMeta() *responseMeta { return &responseMeta{} }

func (m *responseMeta) finalURL(raw string) string {
	if m.url == "" {
		return raw
	}
	return m.url
}

func recordResponse(tabCtx context.Context, meta *responseMeta) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		meta.once.Do(func() {
			meta.statusCode = int(resp.Response.Status)
			meta.url = resp.Response.URL
		})
	})
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
