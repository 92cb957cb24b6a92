// Package website implements the rendered-page logo fetcher. It loads a
// ticker's symbol page in headless Chrome, probes an ordered list of
// selectors for a logo element, and extracts either inline SVG markup or a
// downloadable image URL. A colly-based static probe runs first so a browser
// session is only paid for when plain HTML yields nothing.
package website

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/finbrand/logo-crawler/internal/logo"
)

// Config controls the behavior of the rendered-page fetcher.
type Config struct {
	BaseURL   string
	Selectors []string
	Retry     logo.RetryPolicy
	// SelectorWait overrides the per-selector wait. When zero the wait is
	// derived from the attempt's navigation timeout plus five seconds.
	SelectorWait    time.Duration
	DownloadTimeout time.Duration
	StaticProbe     bool
}

// Fetcher implements logo.Fetcher against the rendered symbol page.
type Fetcher struct {
	cfg      Config
	probe    *Probe
	download *http.Client
	logger   *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = logo.DefaultRetryPolicy()
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 10 * time.Second
	}
	f := &Fetcher{
		cfg:      cfg,
		download: &http.Client{Timeout: cfg.DownloadTimeout},
		logger:   logger,
	}
	if cfg.StaticProbe {
		f.probe = NewProbe(cfg.DownloadTimeout, logger)
	}
	return f
}

// Source reports the provenance tag for artifacts this fetcher produces.
func (f *Fetcher) Source() logo.Source {
	return logo.SourceWebsite
}

// Fetch retries the navigate+probe sequence with a growing per-attempt
// timeout. Exhausting retries returns (nil, nil): the orchestrator treats an
// empty result as "try the next source", not as an error.
func (f *Fetcher) Fetch(ctx context.Context, target logo.Target) ([]byte, error) {
	if strings.TrimSpace(target.Ticker) == "" {
		return nil, nil
	}
	pageURL := f.pageURL(target.Ticker)

	if f.probe != nil {
		if data := f.probe.Find(ctx, pageURL); len(data) > 0 {
			f.logger.Debug("static probe hit",
				zap.String("infomax_code", target.InfomaxCode),
				zap.String("url", pageURL),
			)
			return data, nil
		}
	}

	for attempt := 0; ; attempt++ {
		timeout := f.cfg.Retry.AttemptTimeout(attempt)
		data, err := f.attempt(ctx, pageURL, timeout)
		if err == nil && len(data) > 0 {
			return data, nil
		}
		if err != nil {
			f.logger.Debug("rendered fetch attempt failed",
				zap.String("infomax_code", target.InfomaxCode),
				zap.Int("attempt", attempt+1),
				zap.Duration("timeout", timeout),
				zap.Error(err),
			)
		}
		if !f.cfg.Retry.ShouldRetry(ctx, attempt) {
			return nil, nil
		}
	}
}

// attempt runs one isolated browser session: allocator and tab contexts are
// scoped to the attempt and canceled on every exit path, so no Chrome
// process outlives a retry.
func (f *Fetcher) attempt(ctx context.Context, pageURL string, timeout time.Duration) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	// The attempt timeout bounds navigation; selector waits get their own
	// slightly longer budget so a slow-rendering page can still surface the
	// logo element after the document loads.
	navCtx, navCancel := context.WithTimeout(taskCtx, timeout)
	defer navCancel()

	ua := randomUserAgent()
	if err := chromedp.Run(navCtx,
		f.sessionSetupAction(ua),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", pageURL, err)
	}

	wait := f.selectorWait(timeout)
	for _, selector := range f.cfg.Selectors {
		data, err := f.extract(taskCtx, selector, wait)
		if err != nil {
			// Selector miss or timeout: advance to the next candidate.
			continue
		}
		if len(data) > 0 {
			return data, nil
		}
	}
	return nil, nil
}

func (f *Fetcher) selectorWait(attemptTimeout time.Duration) time.Duration {
	if f.cfg.SelectorWait > 0 {
		return f.cfg.SelectorWait
	}
	return attemptTimeout + 5*time.Second
}

func (f *Fetcher) sessionSetupAction(userAgent string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(1920, 1080, 1.0, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		return nil
	})
}

// extract waits for one selector and pulls bytes out of it: inline markup
// for SVG selectors, an image download for <img> selectors.
func (f *Fetcher) extract(ctx context.Context, selector string, wait time.Duration) ([]byte, error) {
	selCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	if isSVGSelector(selector) {
		var markup string
		if err := chromedp.Run(selCtx,
			chromedp.WaitReady(selector, chromedp.ByQuery),
			chromedp.OuterHTML(selector, &markup, chromedp.ByQuery),
		); err != nil {
			return nil, fmt.Errorf("extract svg %q: %w", selector, err)
		}
		if strings.TrimSpace(markup) == "" {
			return nil, nil
		}
		return []byte(markup), nil
	}

	var src string
	var ok bool
	if err := chromedp.Run(selCtx,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.AttributeValue(selector, "src", &src, &ok, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("extract img %q: %w", selector, err)
	}
	if !ok || !strings.HasPrefix(src, "http") {
		return nil, nil
	}
	return f.downloadImage(ctx, src)
}

func (f *Fetcher) downloadImage(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	resp, err := f.download.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image %s: %w", src, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.logger.Warn("close image body failed", zap.Error(cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image %s: status %d", src, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	return data, nil
}

func (f *Fetcher) pageURL(ticker string) string {
	return fmt.Sprintf("%s/symbols/%s/", strings.TrimRight(f.cfg.BaseURL, "/"), ticker)
}

func isSVGSelector(selector string) bool {
	return strings.Contains(selector, "svg")
}

var _ logo.Fetcher = (*Fetcher)(nil)
