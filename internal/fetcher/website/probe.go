package website

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Probe scans the plain HTML of a symbol page for a logo image before a
// browser session is spent on it. Pages that inject the logo with
// JavaScript come back empty here and fall through to the headless path.
type Probe struct {
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
}

// NewProbe builds a Probe.
func NewProbe(timeout time.Duration, logger *zap.Logger) *Probe {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Probe{
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Find returns logo bytes extracted from the static page, or nil.
func (p *Probe) Find(ctx context.Context, pageURL string) []byte {
	candidate := p.findCandidateURL(pageURL)
	if candidate == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", randomUserAgent())
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("probe image download failed", zap.String("url", candidate), zap.Error(err))
		return nil
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			p.logger.Warn("close probe body failed", zap.Error(cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil || len(data) == 0 {
		return nil
	}
	return data
}

// findCandidateURL visits the page with a fresh collector and records the
// first plausible logo URL: an explicit logo <img> wins over og:image.
func (p *Probe) findCandidateURL(pageURL string) string {
	c := colly.NewCollector(colly.Async(false))
	c.UserAgent = randomUserAgent()
	c.SetRequestTimeout(p.timeout)

	var imgURL, ogImage string
	c.OnHTML(`img[data-testid="logo"], img[alt*="logo"], img[src*="logo"]`, func(e *colly.HTMLElement) {
		if imgURL == "" {
			imgURL = e.Request.AbsoluteURL(e.Attr("src"))
		}
	})
	c.OnHTML(`meta[property="og:image"]`, func(e *colly.HTMLElement) {
		if ogImage == "" {
			ogImage = e.Request.AbsoluteURL(e.Attr("content"))
		}
	})

	if err := c.Visit(pageURL); err != nil {
		p.logger.Debug("static probe visit failed", zap.String("url", pageURL), zap.Error(err))
		return ""
	}
	c.Wait()

	candidate := imgURL
	if candidate == "" {
		candidate = ogImage
	}
	if !strings.HasPrefix(candidate, "http") {
		return ""
	}
	return candidate
}
