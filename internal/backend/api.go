// Package backend is the typed facade over the broker back-office API. It
// unwraps the {status, data, message} envelope, validates input before any
// request is sent and falls back across candidate endpoint paths.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Aamir1055/BrokerEye-sub005/internal/events"
	"github.com/Aamir1055/BrokerEye-sub005/internal/httpclient"
	"github.com/Aamir1055/BrokerEye-sub005/internal/session"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

// API represents the broker back-office facade. General endpoints go to the
// main origin, IB commission endpoints to the IB origin; both share one
// refresh coordinator.
type API struct {
	general *httpclient.Client
	ib      *httpclient.Client
	auth    *httpclient.Coordinator
	session *session.Session
	bus     events.Bus
	logger  *logrus.Entry
}

// New creates a new API facade
func New(general, ib *httpclient.Client, auth *httpclient.Coordinator, sess *session.Session, bus events.Bus, logger *logrus.Logger) *API {
	if ib == nil {
		ib = general
	}
	return &API{
		general: general,
		ib:      ib,
		auth:    auth,
		session: sess,
		bus:     bus,
		logger:  logger.WithField("component", "backend"),
	}
}

// Session returns the session the facade persists into
func (a *API) Session() *session.Session {
	return a.session
}

// call performs a request and decodes the envelope data into T
func call[T any](ctx context.Context, c *httpclient.Client, method, path string, body any, opts ...httpclient.RequestOption) (T, error) {
	var out T
	resp, err := c.Do(ctx, method, path, body, opts...)
	if err != nil {
		return out, translate(err)
	}
	if err := unwrap(resp, &out); err != nil {
		return out, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return out, nil
}

// exec performs a request whose data is not needed and returns the envelope
// message
func exec(ctx context.Context, c *httpclient.Client, method, path string, body any, opts ...httpclient.RequestOption) (string, error) {
	resp, err := c.Do(ctx, method, path, body, opts...)
	if err != nil {
		return "", translate(err)
	}

	var env models.Envelope
	if err := resp.JSON(&env); err != nil {
		return "", fmt.Errorf("%s %s: %w", method, path, err)
	}
	if !env.OK() {
		return "", envelopeError(resp.StatusCode, &env)
	}
	return env.Message, nil
}

func unwrap(resp *httpclient.Response, dest any) error {
	var env models.Envelope
	if err := resp.JSON(&env); err != nil {
		return err
	}
	if !env.OK() {
		return envelopeError(resp.StatusCode, &env)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

func envelopeError(code int, env *models.Envelope) *APIError {
	return &APIError{
		StatusCode: code,
		Status:     env.Status,
		Message:    env.Message,
		Errors:     env.Errors,
	}
}

// firstSuccess tries each candidate path in order and returns the first
// success. When every candidate fails the errors are aggregated under
// ErrAllCandidatesFailed. An expired session stops the walk.
func firstSuccess[T any](ctx context.Context, logger *logrus.Entry, paths []string, fetch func(path string) (T, error)) (T, error) {
	var zero T
	errs := make([]error, 0, len(paths))

	for _, path := range paths {
		v, err := fetch(path)
		if err == nil {
			return v, nil
		}
		if errors.Is(err, httpclient.ErrSessionExpired) || ctx.Err() != nil {
			return zero, err
		}

		logger.WithError(err).WithField("path", path).Debug("Candidate endpoint failed")
		errs = append(errs, fmt.Errorf("%s: %w", path, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllCandidatesFailed, errors.Join(errs...))
}

func escape(segment string) string {
	return url.PathEscape(strings.TrimSpace(segment))
}
