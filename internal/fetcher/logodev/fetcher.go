// Package logodev implements the third-party logo lookup fetcher. It issues
// a single timed GET against a logo.dev-style endpoint keyed by company
// domain, gated by the daily quota for the provider.
package logodev

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/finbrand/logo-crawler/internal/logo"
	"github.com/finbrand/logo-crawler/internal/metrics"
)

// Config controls the lookup endpoint and quota identity.
type Config struct {
	Endpoint  string
	Token     string
	Timeout   time.Duration
	QuotaName string
}

// Fetcher implements logo.Fetcher against the lookup API.
type Fetcher struct {
	cfg    Config
	gate   logo.QuotaGate
	client *http.Client
	logger *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, gate logo.QuotaGate, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.QuotaName == "" {
		cfg.QuotaName = "logo_dev"
	}
	return &Fetcher{
		cfg:    cfg,
		gate:   gate,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Source reports the provenance tag for artifacts this fetcher produces.
func (f *Fetcher) Source() logo.Source {
	return logo.SourceLogoDev
}

// Fetch performs one quota-gated lookup. Quota is consumed only after a 200
// so failed calls are never charged. Missing domain, missing token, denied
// quota and non-200 responses all yield (nil, nil).
func (f *Fetcher) Fetch(ctx context.Context, target logo.Target) ([]byte, error) {
	if strings.TrimSpace(target.APIDomain) == "" {
		return nil, nil
	}
	if f.cfg.Token == "" {
		f.logger.Warn("logo.dev token not configured, skipping lookup",
			zap.String("infomax_code", target.InfomaxCode),
		)
		return nil, nil
	}
	if !f.gate.Allow(ctx, f.cfg.QuotaName, 1) {
		f.logger.Info("daily quota exhausted, skipping lookup",
			zap.String("api_name", f.cfg.QuotaName),
			zap.String("infomax_code", target.InfomaxCode),
		)
		metrics.ObserveExternalAPICall(f.cfg.QuotaName, "denied")
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.lookupURL(target.APIDomain), nil)
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		metrics.ObserveExternalAPICall(f.cfg.QuotaName, "error")
		return nil, fmt.Errorf("lookup %s: %w", target.APIDomain, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.logger.Warn("close lookup body failed", zap.Error(cerr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		f.logger.Debug("lookup returned no logo",
			zap.String("domain", target.APIDomain),
			zap.Int("status", resp.StatusCode),
		)
		metrics.ObserveExternalAPICall(f.cfg.QuotaName, "miss")
		return nil, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read lookup body: %w", err)
	}
	if len(data) == 0 {
		metrics.ObserveExternalAPICall(f.cfg.QuotaName, "miss")
		return nil, nil
	}
	metrics.ObserveExternalAPICall(f.cfg.QuotaName, "hit")

	if err := f.gate.Consume(ctx, f.cfg.QuotaName, 1); err != nil {
		// The logo is already in hand; a failed charge is not a fetch
		// failure, just a quota undercount.
		f.logger.Warn("quota consume failed after successful lookup",
			zap.String("api_name", f.cfg.QuotaName),
			zap.Error(err),
		)
	}
	return data, nil
}

func (f *Fetcher) lookupURL(domain string) string {
	q := url.Values{}
	q.Set("token", f.cfg.Token)
	q.Set("format", "png")
	q.Set("size", "300")
	q.Set("fallback", "404")
	return fmt.Sprintf("%s/%s?%s", strings.TrimRight(f.cfg.Endpoint, "/"), domain, q.Encode())
}

var _ logo.Fetcher = (*Fetcher)(nil)
