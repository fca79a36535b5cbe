package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"
)

const (
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	restPath = "/rest/v1"
)

// APIError is a non-2xx PostgREST response
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("supabase: status %d: %s (%s)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("supabase: status %d", e.StatusCode)
}

// Client is a thin PostgREST client for a Supabase project.
type Client struct {
	baseURL string
	schema  string
	http    *resty.Client
	logger  arbor.ILogger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithSchema selects the Postgres schema exposed by PostgREST.
func WithSchema(schema string) ClientOption {
	return func(c *Client) {
		if schema != "" {
			c.schema = schema
		}
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.http.SetTimeout(timeout)
		}
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client authenticated with the service role key.
func NewClient(projectURL, serviceRoleKey string, opts ...ClientOption) *Client {
	baseURL := strings.TrimRight(projectURL, "/")

	httpClient := resty.New()
	httpClient.SetBaseURL(baseURL + restPath)
	httpClient.SetTimeout(DefaultTimeout)
	httpClient.SetHeader("apikey", serviceRoleKey)
	httpClient.SetHeader("Authorization", "Bearer "+serviceRoleKey)
	httpClient.SetHeader("Content-Type", "application/json")

	c := &Client{
		baseURL: baseURL,
		schema:  "public",
		http:    httpClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// request builds a request scoped to the configured schema
func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("Accept-Profile", c.schema).
		SetHeader("Content-Profile", c.schema)
}

// do executes a request and decodes a 2xx body into result when non-nil
func (c *Client) do(req *resty.Request, method, path string, result interface{}) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("supabase %s %s failed: %w", method, path, err)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode()).
			Dur("duration", resp.Time()).
			Msg("Supabase request")
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode()}
		_ = json.Unmarshal(resp.Body(), apiErr)
		return apiErr
	}

	if result != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), result); err != nil {
			return fmt.Errorf("failed to decode supabase response for %s: %w", path, err)
		}
	}
	return nil
}

// Insert posts a row and decodes the returned representation into result
func (c *Client) Insert(ctx context.Context, table string, row interface{}, result interface{}) error {
	req := c.request(ctx).
		SetHeader("Prefer", "return=representation").
		SetBody(row)
	return c.do(req, http.MethodPost, "/"+table, result)
}

// Upsert posts a row, merging on the conflict column
func (c *Client) Upsert(ctx context.Context, table, onConflict string, row interface{}, result interface{}) error {
	req := c.request(ctx).
		SetHeader("Prefer", "resolution=merge-duplicates,return=representation").
		SetQueryParam("on_conflict", onConflict).
		SetBody(row)
	return c.do(req, http.MethodPost, "/"+table, result)
}

// Update patches rows matched by filters and decodes the returned rows into result
func (c *Client) Update(ctx context.Context, table string, filters map[string]string, fields interface{}, result interface{}) error {
	req := c.request(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParams(filters).
		SetBody(fields)
	return c.do(req, http.MethodPatch, "/"+table, result)
}

// Select reads rows matched by the query parameters
func (c *Client) Select(ctx context.Context, table string, params map[string]string, result interface{}) error {
	req := c.request(ctx).SetQueryParams(params)
	return c.do(req, http.MethodGet, "/"+table, result)
}

// Delete removes rows matched by filters and decodes the removed rows into result
func (c *Client) Delete(ctx context.Context, table string, filters map[string]string, result interface{}) error {
	req := c.request(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParams(filters)
	return c.do(req, http.MethodDelete, "/"+table, result)
}

// RPC calls a Postgres function exposed by PostgREST
func (c *Client) RPC(ctx context.Context, function string, args interface{}, result interface{}) error {
	req := c.request(ctx).SetBody(args)
	return c.do(req, http.MethodPost, "/rpc/"+function, result)
}

// eq builds a PostgREST equality filter value
func eq(value interface{}) string {
	return fmt.Sprintf("eq.%v", value)
}
