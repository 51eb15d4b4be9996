// Package supabase is the client for the hosted backend: row-level CRUD over
// PostgREST, auth, object storage and realtime change feeds. The application
// treats the backend as an opaque capability; everything here is transport.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds client configuration. APIKey is the anon (publishable) key;
// authenticated requests carry the signed-in user's token instead.
type Config struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
	// Retry enables the resilient transport when non-nil.
	Retry *RetryPolicy
}

// Client talks to one Supabase project.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	auth    *Auth
}

// New creates a client for the project at cfg.URL.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase: URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase: APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Retry != nil {
		httpClient = &http.Client{
			Timeout:   httpClient.Timeout,
			Transport: newRetryTransport(httpClient, *cfg.Retry, NewBreaker(DefaultBreakerConfig())),
		}
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpClient,
	}
	c.auth = newAuth(c)
	return c, nil
}

// Auth returns the auth client bound to this project.
func (c *Client) Auth() *Auth { return c.auth }

// From starts a query against a table.
func (c *Client) From(table string) *Query {
	return &Query{client: c, table: table}
}

// Query builds one PostgREST request against a table.
type Query struct {
	client  *Client
	table   string
	columns string
	filters url.Values
	order   []string
	limit   int
	single  bool
}

// Select restricts the returned columns (PostgREST select syntax).
func (q *Query) Select(columns string) *Query {
	q.columns = columns
	return q
}

func (q *Query) filter(column, op string, value any) *Query {
	if q.filters == nil {
		q.filters = url.Values{}
	}
	q.filters.Add(column, fmt.Sprintf("%s.%v", op, value))
	return q
}

// Eq adds an equality filter.
func (q *Query) Eq(column string, value any) *Query { return q.filter(column, "eq", value) }

// Neq adds a not-equal filter.
func (q *Query) Neq(column string, value any) *Query { return q.filter(column, "neq", value) }

// Gte adds a greater-than-or-equal filter.
func (q *Query) Gte(column string, value any) *Query { return q.filter(column, "gte", value) }

// Lte adds a less-than-or-equal filter.
func (q *Query) Lte(column string, value any) *Query { return q.filter(column, "lte", value) }

// ILike adds a case-insensitive pattern filter.
func (q *Query) ILike(column, pattern string) *Query { return q.filter(column, "ilike", pattern) }

// Order sorts results by column.
func (q *Query) Order(column string, ascending bool) *Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	q.order = append(q.order, column+"."+dir)
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Single requests exactly one row; a miss becomes ErrNotFound.
func (q *Query) Single() *Query {
	q.single = true
	return q
}

func (q *Query) url() string {
	reqURL := q.client.baseURL + "/rest/v1/" + q.table
	params := url.Values{}
	if q.columns != "" {
		params.Set("select", q.columns)
	}
	for column, values := range q.filters {
		for _, v := range values {
			params.Add(column, v)
		}
	}
	if len(q.order) > 0 {
		params.Set("order", strings.Join(q.order, ","))
	}
	if q.limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", q.limit))
	}
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	return reqURL
}

// Get executes a SELECT and decodes the rows into dest.
func (q *Query) Get(ctx context.Context, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.url(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	return q.client.do(req, dest)
}

// Insert posts payload as new rows. When dest is non-nil the created rows
// are decoded back into it (Prefer: return=representation).
func (q *Query) Insert(ctx context.Context, payload, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.url(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if dest != nil {
		req.Header.Set("Prefer", "return=representation")
		if q.single {
			req.Header.Set("Accept", "application/vnd.pgrst.object+json")
		}
	} else {
		req.Header.Set("Prefer", "return=minimal")
	}
	return q.client.do(req, dest)
}

// Update patches the rows matching the query filters.
func (q *Query) Update(ctx context.Context, payload, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, q.url(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if dest != nil {
		req.Header.Set("Prefer", "return=representation")
		if q.single {
			req.Header.Set("Accept", "application/vnd.pgrst.object+json")
		}
	} else {
		req.Header.Set("Prefer", "return=minimal")
	}
	return q.client.do(req, dest)
}

// Delete removes the rows matching the query filters.
func (q *Query) Delete(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, q.url(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return q.client.do(req, nil)
}

// RPC calls a database function and decodes its result into dest.
func (c *Client) RPC(ctx context.Context, fn string, params, dest any) error {
	var body io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/v1/rpc/"+fn, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, dest)
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("supabase: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("supabase: status %d", e.StatusCode)
}

// IsNotFound reports whether err is a missing-row response. PostgREST
// answers 406 to a Single() that matched nothing.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusNotAcceptable
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	token := c.apiKey
	if sess := c.auth.Session(); sess != nil && sess.AccessToken != "" {
		token = sess.AccessToken
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

// do executes the request and decodes the body into dest when dest is
// non-nil. Errors from the backend become *APIError.
func (c *Client) do(req *http.Request, dest any) error {
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: apiMessage(body)}
	}
	if dest == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	switch {
	case payload.Message != "":
		return payload.Message
	case payload.Msg != "":
		return payload.Msg
	}
	return payload.Error
}
