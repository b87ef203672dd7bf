package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	BaseURL      string

	// Retries bounds how many times a throttled request is reissued.
	Retries int
}

// Client is a thin Microsoft Graph client covering the delta feeds,
// collection paging and $batch lookups the mirror needs.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *zap.Logger
	retries int
}

func NewClient(ctx context.Context, cfg *Config, logger *zap.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = 3
	}
	ts := NewTokenSource(ctx, cfg.TenantID, cfg.ClientID, cfg.ClientSecret)
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		httpc:   NewHTTPClient(ctx, ts),
		logger:  logger,
		retries: retries,
	}
}

// NewClientWithHTTP builds a client around a pre-configured HTTP client,
// bypassing the token flow. Used against fake Graph servers in tests.
func NewClientWithHTTP(baseURL string, httpc *http.Client, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
		logger:  logger,
		retries: 3,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) resolve(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return c.baseURL + "/" + strings.TrimLeft(u, "/")
}

// GetJSON issues a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any, headers map[string]string) error {
	url = c.resolve(url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.doRetry(req, nil)
	if err != nil {
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, URL: url, Body: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

// doRetry sends the request, reissuing it when Graph throttles with a 429.
// A non-nil body is restored before every attempt. The Retry-After header
// decides the wait, falling back to exponential backoff.
func (c *Client) doRetry(req *http.Request, body []byte) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= c.retries {
			return resp, nil
		}

		wait := retryAfter(resp, attempt)
		resp.Body.Close()
		c.logger.Warn("graph throttled request",
			zap.String("url", req.URL.String()),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait))

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(wait):
		}
	}
}

func retryAfter(resp *http.Response, attempt int) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Duration(1<<attempt) * time.Second
}

// DeltaWalk follows a delta feed from startURL, invoking fn for each page of
// raw change objects. It returns the delta link from the final page, or ""
// when the feed ended without one.
func (c *Client) DeltaWalk(ctx context.Context, startURL string, fn func(items []json.RawMessage) error) (string, error) {
	url := startURL
	for url != "" {
		c.logger.Debug("fetching delta page", zap.String("url", url))

		var p page
		if err := c.GetJSON(ctx, url, &p, nil); err != nil {
			return "", fmt.Errorf("failed to fetch delta page: %w", err)
		}

		if err := fn(p.Value); err != nil {
			return "", err
		}

		if p.DeltaLink != "" {
			return p.DeltaLink, nil
		}
		url = p.NextLink
	}
	return "", nil
}

// ListAll pages through a collection endpoint following @odata.nextLink and
// returns the concatenated raw items.
func (c *Client) ListAll(ctx context.Context, url string, headers map[string]string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	for url != "" {
		var p page
		if err := c.GetJSON(ctx, url, &p, headers); err != nil {
			return nil, err
		}
		items = append(items, p.Value...)
		url = p.NextLink
	}
	return items, nil
}

// Batch issues a $batch call. Requests use paths relative to the API root,
// e.g. "/users/<id>?$select=...". At most 20 requests per call.
func (c *Client) Batch(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error) {
	body, err := json.Marshal(batchEnvelope{Requests: requests})
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch request: %w", err)
	}

	url := c.baseURL + "/$batch"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.doRetry(req, body)
	if err != nil {
		return nil, fmt.Errorf("batch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, URL: url, Body: string(raw)}
	}

	var result batchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode batch response: %w", err)
	}

	c.logger.Debug("batch call complete",
		zap.Int("requests", len(requests)),
		zap.Int("responses", len(result.Responses)),
		zap.Duration("elapsed", time.Since(start)))

	return result.Responses, nil
}
