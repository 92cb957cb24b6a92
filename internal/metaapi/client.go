// Package metaapi implements a thin client for the external data API that
// owns the logo tables. The API exposes generic query/upsert operations over
// named tables in a schema namespace and wraps query results in a paginated
// envelope.
package metaapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Config captures the connection parameters for the data API.
type Config struct {
	BaseURL string
	Schema  string
	Timeout time.Duration
}

// Client issues query/upsert calls against the data API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Schema == "" {
		cfg.Schema = "raw_data"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Row is one record returned by the data API.
type Row map[string]any

// Int reads a numeric column; JSON numbers decode as float64.
func (r Row) Int(key string) (int64, bool) {
	switch v := r[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// String reads a string column.
func (r Row) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// Bool reads a boolean column.
func (r Row) Bool(key string) (bool, bool) {
	b, ok := r[key].(bool)
	return b, ok
}

// Envelope is the paginated result wrapper returned by query endpoints.
type Envelope struct {
	Data       []Row `json:"data"`
	Total      int   `json:"total"`
	TotalPages int   `json:"total_pages"`
	Page       int   `json:"page"`
}

// Query runs GET /api/schemas/{schema}/tables/{table}/query with the given
// parameters and decodes the envelope.
func (c *Client) Query(ctx context.Context, table string, params map[string]string) (Envelope, error) {
	endpoint := fmt.Sprintf("%s/api/schemas/%s/tables/%s/query", c.cfg.BaseURL, c.cfg.Schema, table)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Envelope{}, fmt.Errorf("build query request: %w", err)
	}
	q := url.Values{}
	for key, value := range params {
		q.Set(key, value)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.http.Do(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("query %s: %w", table, err)
	}
	defer closeBody(resp, c.logger)

	if resp.StatusCode != http.StatusOK {
		return Envelope{}, fmt.Errorf("query %s: unexpected status %d", table, resp.StatusCode)
	}
	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("decode %s envelope: %w", table, err)
	}
	return env, nil
}

type upsertRequest struct {
	Data            Row      `json:"data"`
	ConflictColumns []string `json:"conflict_columns,omitempty"`
}

type upsertResponse struct {
	Data Row `json:"data"`
}

// Upsert runs POST /api/schemas/{schema}/tables/{table}/upsert. The conflict
// columns tell the API which unique key resolves duplicate writes.
func (c *Client) Upsert(ctx context.Context, table string, data Row, conflictColumns ...string) (Row, error) {
	endpoint := fmt.Sprintf("%s/api/schemas/%s/tables/%s/upsert", c.cfg.BaseURL, c.cfg.Schema, table)
	payload, err := json.Marshal(upsertRequest{Data: data, ConflictColumns: conflictColumns})
	if err != nil {
		return nil, fmt.Errorf("marshal %s upsert: %w", table, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", table, err)
	}
	defer closeBody(resp, c.logger)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upsert %s: unexpected status %d", table, resp.StatusCode)
	}
	var out upsertResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s upsert response: %w", table, err)
	}
	return out.Data, nil
}

func closeBody(resp *http.Response, logger *zap.Logger) {
	if err := resp.Body.Close(); err != nil {
		logger.Warn("close response body failed", zap.Error(err))
	}
}
