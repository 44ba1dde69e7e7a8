// Package httpclient is the authenticated HTTP core shared by every backend
// origin. It attaches bearer tokens, and on an authorization failure performs
// a single-flight token refresh and retries the request once.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const defaultTimeout = 30 * time.Second

// Client issues authenticated requests against one backend origin
type Client struct {
	baseURL string
	http    *http.Client
	auth    *Coordinator
	limiter *rate.Limiter
	logger  *logrus.Entry
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout ceiling
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// WithRateLimit limits outgoing requests to rps per second. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a client for baseURL sharing auth with every other client
// created from the same Coordinator
func New(baseURL string, auth *Coordinator, logger *logrus.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		auth:    auth,
		logger:  logger.WithFields(logrus.Fields{"component": "httpclient", "origin": baseURL}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the origin the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is a fully read backend response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into dest
func (r *Response) JSON(dest any) error {
	if err := json.Unmarshal(r.Body, dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type request struct {
	method  string
	path    string
	query   url.Values
	header  http.Header
	retried bool
}

// RequestOption configures a single request
type RequestOption func(*request)

// WithQuery appends query parameters
func WithQuery(q url.Values) RequestOption {
	return func(r *request) {
		r.query = q
	}
}

// WithHeader sets an extra request header
func WithHeader(key, value string) RequestOption {
	return func(r *request) {
		r.header.Set(key, value)
	}
}

// NoRefresh marks the request as already retried, so an authorization
// failure is returned to the caller instead of triggering a refresh
func NoRefresh() RequestOption {
	return func(r *request) {
		r.retried = true
	}
}

// Get issues a GET request
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, opts...)
}

// Post issues a POST request with a JSON body
func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body, opts...)
}

// Put issues a PUT request with a JSON body
func (c *Client) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body, opts...)
}

// Delete issues a DELETE request
func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, opts...)
}

// Do sends the request with the current access token. On a 401, 403 or
// transport failure it refreshes the session once (shared with every other
// concurrent caller) and retries with the new token. A retried request that
// fails again is returned as is.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	req := &request{method: method, path: path, header: make(http.Header)}
	for _, opt := range opts {
		opt(req)
	}

	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	cred := c.auth.Credential()
	resp, err := c.send(ctx, req, payload, cred.Token)
	if err == nil || req.retried || !c.shouldRefresh(ctx, err) {
		return resp, err
	}

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"status": StatusCode(err),
	}).Debug("Request unauthorized, refreshing session")

	newToken, rerr := c.auth.RefreshFrom(ctx, cred)
	if rerr != nil {
		return nil, fmt.Errorf("%w (refresh failed: %w)", err, rerr)
	}

	req.retried = true
	return c.send(ctx, req, payload, newToken)
}

func (c *Client) shouldRefresh(ctx context.Context, err error) bool {
	if !IsAuthError(err) && !IsTransportError(err) {
		return false
	}
	return c.auth.CanRefresh(ctx)
}

func (c *Client) send(ctx context.Context, req *request, payload []byte, token string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindTimeout, Method: req.method, Path: req.path, Err: err}
		}
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range req.header {
		httpReq.Header[k] = v
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("X-Request-ID") == "" {
		httpReq.Header.Set("X-Request-ID", uuid.NewString())
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		kind := KindTransport
		if isTimeout(ctx, err) {
			kind = KindTimeout
		}
		return nil, &Error{Kind: kind, Method: req.method, Path: req.path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		kind := KindTransport
		if isTimeout(ctx, err) {
			kind = KindTimeout
		}
		return nil, &Error{Kind: kind, Method: req.method, Path: req.path, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &Error{
			Kind:       statusKind(resp.StatusCode),
			Method:     req.method,
			Path:       req.path,
			StatusCode: resp.StatusCode,
			Body:       data,
		}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return data, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
