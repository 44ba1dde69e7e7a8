package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/Aamir1055/BrokerEye-sub005/internal/events"
	"github.com/Aamir1055/BrokerEye-sub005/internal/session"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

// RefreshPath is the token refresh endpoint on the general API origin
const RefreshPath = "/api/auth/broker/refresh"

const refreshKey = "refresh"

// Coordinator owns the session credentials shared by every Client and
// guarantees that at most one refresh exchange is in flight at a time.
// Concurrent callers that observe an expired token wait for the same
// exchange and receive its outcome.
type Coordinator struct {
	baseURL  string
	session  *session.Session
	bus      events.Bus
	logger   *logrus.Entry
	raw      *http.Client
	timeout  time.Duration
	loginURL string
	onLogout func(loginURL string)

	fallbackMu sync.Mutex
	fallback   *Client

	group      singleflight.Group
	refreshing atomic.Bool
	exchanges  atomic.Int64
	logouts    atomic.Int64

	tokenMu     sync.RWMutex
	accessToken string
	version     uint64
}

// Credential is the access token a request was sent with, together with the
// version of the default token at that moment. The version moves on every
// install or clear, including installs of the same or an empty token.
type Credential struct {
	Token   string
	Version uint64
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithRefreshTimeout bounds a single refresh exchange
func WithRefreshTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLoginURL sets the login entry point reported on forced logout
func WithLoginURL(u string) CoordinatorOption {
	return func(c *Coordinator) {
		c.loginURL = u
	}
}

// WithLogoutHook is called after an unrecoverable refresh failure cleared the
// session, with the login entry point the user must go back to
func WithLogoutHook(fn func(loginURL string)) CoordinatorOption {
	return func(c *Coordinator) {
		c.onLogout = fn
	}
}

// WithRawHTTPClient sets the http.Client used for the refresh exchange. It
// must not route through a Client.
func WithRawHTTPClient(hc *http.Client) CoordinatorOption {
	return func(c *Coordinator) {
		c.raw = hc
	}
}

// NewCoordinator creates a coordinator whose refresh exchange goes to
// baseURL + RefreshPath
func NewCoordinator(baseURL string, sess *session.Session, bus events.Bus, logger *logrus.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		baseURL:  strings.TrimRight(baseURL, "/"),
		session:  sess,
		bus:      bus,
		logger:   logger.WithField("component", "auth-refresh"),
		raw:      &http.Client{Timeout: defaultTimeout},
		timeout:  15 * time.Second,
		loginURL: "/login",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load primes the default Authorization header from the session store
func (c *Coordinator) Load(ctx context.Context) error {
	pair, err := c.session.Tokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session tokens: %w", err)
	}
	c.setAccessToken(pair.AccessToken)
	return nil
}

// Attach makes cl the authenticated path used for the fallback refresh call.
// Without it the coordinator builds a plain client for its own origin.
func (c *Coordinator) Attach(cl *Client) {
	c.fallbackMu.Lock()
	defer c.fallbackMu.Unlock()
	c.fallback = cl
}

// AccessToken returns the token applied to every outgoing request
func (c *Coordinator) AccessToken() string {
	return c.Credential().Token
}

// Credential returns the current default token and its version
func (c *Coordinator) Credential() Credential {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return Credential{Token: c.accessToken, Version: c.version}
}

func (c *Coordinator) setAccessToken(token string) {
	c.tokenMu.Lock()
	c.accessToken = token
	c.version++
	c.tokenMu.Unlock()
}

// superseded returns the current token when the default moved past seen.
// A nil seen is never superseded.
func (c *Coordinator) superseded(seen *Credential) (token string, moved bool, err error) {
	if seen == nil {
		return "", false, nil
	}
	current := c.Credential()
	if current.Version == seen.Version {
		return "", false, nil
	}
	if current.Token == "" {
		// the session was cleared while the request was in flight
		return "", true, ErrSessionExpired
	}
	return current.Token, true, nil
}

// CanRefresh reports whether a refresh token is available
func (c *Coordinator) CanRefresh(ctx context.Context) bool {
	token, err := c.session.RefreshToken(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to read refresh token")
		return false
	}
	return token != ""
}

// Refreshing reports whether an exchange is in flight
func (c *Coordinator) Refreshing() bool {
	return c.refreshing.Load()
}

// Stats reports how many refresh exchanges and forced logouts happened
func (c *Coordinator) Stats() (exchanges, logouts int64) {
	return c.exchanges.Load(), c.logouts.Load()
}

// Reset forgets any in-flight exchange and zeroes the counters
func (c *Coordinator) Reset() {
	c.group.Forget(refreshKey)
	c.refreshing.Store(false)
	c.exchanges.Store(0)
	c.logouts.Store(0)
}

// SetTokens persists a freshly issued token pair, replacing any credential
// of an earlier session, and makes it the default for subsequent requests
func (c *Coordinator) SetTokens(ctx context.Context, pair models.TokenPair) error {
	if err := c.session.ReplaceTokens(ctx, pair); err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	c.setAccessToken(pair.AccessToken)
	return nil
}

// Refresh joins the in-flight exchange or starts one, and returns the new
// access token
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	return c.refresh(ctx, nil)
}

// RefreshFrom is Refresh for a request that was sent with seen and failed.
// When the default token moved since (an exchange settled or a login
// happened while the request was in flight) the current token is returned
// without a new exchange; when the session was cleared meanwhile
// ErrSessionExpired is.
func (c *Coordinator) RefreshFrom(ctx context.Context, seen Credential) (string, error) {
	return c.refresh(ctx, &seen)
}

func (c *Coordinator) refresh(ctx context.Context, seen *Credential) (string, error) {
	if token, moved, err := c.superseded(seen); moved {
		return token, err
	}

	ch := c.group.DoChan(refreshKey, func() (any, error) {
		// a flight that settled between the check above and DoChan already
		// replaced the token
		if token, moved, err := c.superseded(seen); moved {
			return token, err
		}

		c.refreshing.Store(true)
		defer c.refreshing.Store(false)
		c.exchanges.Add(1)

		// the exchange is shared, so it must outlive the caller that started it
		exCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		return c.exchange(exCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) exchange(ctx context.Context) (string, error) {
	refreshToken, err := c.session.RefreshToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read refresh token: %w", err)
	}
	if refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	c.logger.Info("Refreshing access token")

	result, err := c.rawRefresh(ctx, refreshToken)
	if err == nil {
		return c.commit(ctx, result)
	}

	if IsAuthError(err) {
		c.logger.WithError(err).Warn("Refresh token rejected")
		c.forceLogout(ctx, "refresh token rejected")
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	c.logger.WithError(err).Warn("Refresh exchange failed, trying authenticated fallback")

	result, ferr := c.fallbackRefresh(ctx, refreshToken)
	if ferr == nil {
		return c.commit(ctx, result)
	}

	c.logger.WithError(ferr).Error("Fallback refresh failed")
	c.forceLogout(ctx, "token refresh failed")
	return "", fmt.Errorf("%w: %w", ErrSessionExpired, errors.Join(err, ferr))
}

// rawRefresh calls the refresh endpoint on the bare http.Client, outside the
// Client retry pipeline
func (c *Coordinator) rawRefresh(ctx context.Context, refreshToken string) (*models.RefreshResult, error) {
	payload, err := json.Marshal(models.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RefreshPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.raw.Do(req)
	if err != nil {
		kind := KindTransport
		if isTimeout(ctx, err) {
			kind = KindTimeout
		}
		return nil, &Error{Kind: kind, Method: http.MethodPost, Path: RefreshPath, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Method: http.MethodPost, Path: RefreshPath, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, &Error{
			Kind:       statusKind(resp.StatusCode),
			Method:     http.MethodPost,
			Path:       RefreshPath,
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}

	return decodeRefresh(body)
}

func (c *Coordinator) fallbackRefresh(ctx context.Context, refreshToken string) (*models.RefreshResult, error) {
	resp, err := c.fallbackClient().Post(ctx, RefreshPath, models.RefreshRequest{RefreshToken: refreshToken}, NoRefresh())
	if err != nil {
		return nil, err
	}
	return decodeRefresh(resp.Body)
}

func (c *Coordinator) fallbackClient() *Client {
	c.fallbackMu.Lock()
	defer c.fallbackMu.Unlock()

	if c.fallback == nil {
		c.fallback = &Client{
			baseURL: c.baseURL,
			http:    c.raw,
			auth:    c,
			logger:  c.logger,
		}
	}
	return c.fallback
}

func decodeRefresh(body []byte) (*models.RefreshResult, error) {
	var env models.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if !env.OK() {
		return nil, fmt.Errorf("refresh rejected: %s", env.Message)
	}

	var result models.RefreshResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode refresh data: %w", err)
	}
	if result.AccessToken == "" {
		return nil, errors.New("refresh response carries no access token")
	}
	return &result, nil
}

func (c *Coordinator) commit(ctx context.Context, result *models.RefreshResult) (string, error) {
	pair := models.TokenPair{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken}
	if err := c.session.SaveTokens(ctx, pair); err != nil {
		// the new token still serves this process
		c.logger.WithError(err).Warn("Failed to persist refreshed token")
	}
	c.setAccessToken(result.AccessToken)

	c.bus.Publish(ctx, events.Event{Name: events.TokenRefreshed, Payload: events.TokenRefreshedPayload{}})
	c.logger.WithField("rotated", result.RefreshToken != "").Info("Access token refreshed")

	return result.AccessToken, nil
}

// Logout clears the session and broadcasts auth:logout. It is used for the
// user-initiated logout; unrecoverable refresh failures go through the same
// path and also invoke the logout hook.
func (c *Coordinator) Logout(ctx context.Context, reason string) {
	c.clear(ctx, reason)
}

func (c *Coordinator) forceLogout(ctx context.Context, reason string) {
	c.logouts.Add(1)
	c.clear(ctx, reason)
	if c.onLogout != nil {
		c.onLogout(c.loginURL)
	}
}

func (c *Coordinator) clear(ctx context.Context, reason string) {
	c.setAccessToken("")
	if err := c.session.Clear(ctx); err != nil {
		c.logger.WithError(err).Error("Failed to clear session")
	}

	c.bus.Publish(ctx, events.Event{
		Name:    events.Logout,
		Payload: events.LogoutPayload{Reason: reason, LoginURL: c.loginURL},
	})
	c.logger.WithField("reason", reason).Info("Session cleared")
}
