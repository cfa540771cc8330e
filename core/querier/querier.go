package querier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrymomot/sessiongate/pkg/logger"
)

// recipeIDHeader names the recipe a request belongs to. The core uses it to
// route the request and, in header-based anti-CSRF mode, as the CSRF check.
const recipeIDHeader = "rid"

// Client sends JSON requests to the remote auth core. When several base URLs
// are configured, a request tries each in order and returns the last error
// if every host is unreachable. There is no retry of a host that answered:
// a non-2xx response from a live core is final.
type Client struct {
	hosts      []string
	apiKey     string
	rid        string
	httpClient *http.Client
	log        *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client. The SDK imposes no
// timeout of its own; the supplied client's (or host environment's) timeout
// policy is the effective cancellation mechanism.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger for debug-level request logging.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithRecipeID overrides the rid header value. Default is "session".
func WithRecipeID(rid string) Option {
	return func(c *Client) {
		if rid != "" {
			c.rid = rid
		}
	}
}

// New creates a core client from configuration.
func New(cfg Config, opts ...Option) (*Client, error) {
	hosts := cfg.parseHosts()
	if len(hosts) == 0 {
		return nil, ErrNoHosts
	}

	c := &Client{
		hosts:      hosts,
		apiKey:     cfg.APIKey,
		rid:        "session",
		httpClient: http.DefaultClient,
		log:        slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Hosts returns the configured base URLs in fallback order.
func (c *Client) Hosts() []string {
	return c.hosts
}

// Get performs a GET request against the first reachable host.
func (c *Client) Get(ctx context.Context, path string, query map[string]string) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// Post performs a POST request against the first reachable host.
func (c *Client) Post(ctx context.Context, path string, body map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

// Put performs a PUT request against the first reachable host.
func (c *Client) Put(ctx context.Context, path string, body map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodPut, path, nil, body)
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body map[string]any) (map[string]any, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("querier: marshal request body: %w", err)
		}
	}

	var lastErr error
	for _, host := range c.hosts {
		req, err := c.newRequest(ctx, method, host, path, query, payload)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Unreachable host: fall through to the next configured one.
			c.log.DebugContext(ctx, "auth core host unreachable",
				logger.Component("querier"), logger.Host(host), logger.Error(err))
			lastErr = err
			continue
		}

		return c.decodeResponse(resp)
	}

	return nil, errors.Join(ErrCoreUnavailable, lastErr)
}

func (c *Client) newRequest(ctx context.Context, method, host, path string, query map[string]string, payload []byte) (*http.Request, error) {
	u := host + path
	if len(query) > 0 {
		values := url.Values{}
		for k, v := range query {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("querier: build request: %w", err)
	}

	req.Header.Set(recipeIDHeader, c.rid)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	return req, nil
}

func (c *Client) decodeResponse(resp *http.Response) (map[string]any, error) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("querier: read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UnexpectedStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	var out map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("querier: decode response: %w", err)
		}
	}

	return out, nil
}
