// Package eshttp is the HTTP JSON adapter for a registry index speaking the
// _search/_msearch/scroll protocol.
package eshttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vitalregistry/linkage/internal/domain"
	"github.com/vitalregistry/linkage/internal/domain/query"
	"github.com/vitalregistry/linkage/internal/index"
	"github.com/vitalregistry/linkage/internal/metrics"
)

// Config holds index client settings.
type Config struct {
	BaseURL string
	Index   string
	Timeout time.Duration
}

// Client talks to the index over HTTP.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

var _ index.Searcher = (*Client)(nil)

// New creates an index client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Ping probes the index backend for the readiness check.
func (c *Client) Ping(ctx context.Context) error {
	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: index returned %d", domain.ErrUpstream, resp.StatusCode)
	}
	return nil
}

// Search executes one query.
func (c *Client) Search(ctx context.Context, q query.Query) (index.Result, error) {
	defer observe("search", time.Now())
	var resp searchResponse
	url := fmt.Sprintf("%s/%s/_search", strings.TrimSuffix(c.cfg.BaseURL, "/"), c.cfg.Index)
	if err := c.post(ctx, url, q.Body(), &resp); err != nil {
		return index.Result{}, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return resp.toResult(), nil
}

// MultiSearch executes several queries in one round trip using the
// newline-delimited msearch protocol.
func (c *Client) MultiSearch(ctx context.Context, qs []query.Query) ([]index.Result, error) {
	defer observe("msearch", time.Now())
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, q := range qs {
		// header line selects the index, body line carries the query
		if err := enc.Encode(map[string]any{"index": c.cfg.Index}); err != nil {
			return nil, fmt.Errorf("encode msearch header: %w", err)
		}
		if err := enc.Encode(q.Body()); err != nil {
			return nil, fmt.Errorf("encode msearch body: %w", err)
		}
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/_msearch"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("build msearch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	var wrapper struct {
		Responses []searchResponse `json:"responses"`
	}
	if err := c.do(req, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}

	results := make([]index.Result, len(wrapper.Responses))
	for i, r := range wrapper.Responses {
		results[i] = r.toResult()
	}
	return results, nil
}

// Scroll continues a cursor-based result walk.
func (c *Client) Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (index.Result, error) {
	defer observe("scroll", time.Now())
	body := map[string]any{
		"scroll_id": scrollID,
		"scroll":    fmt.Sprintf("%ds", int(keepAlive.Seconds())),
	}
	var resp searchResponse
	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/_search/scroll"
	if err := c.post(ctx, url, body, &resp); err != nil {
		return index.Result{}, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return resp.toResult(), nil
}

func observe(operation string, start time.Time) {
	metrics.IndexQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (c *Client) post(ctx context.Context, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("index returned %d: %s", resp.StatusCode, snippet)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
