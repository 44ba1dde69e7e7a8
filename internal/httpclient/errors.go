package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoRefreshToken means the session holds no refresh token to exchange
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrSessionExpired means the refresh protocol failed and the session was cleared
	ErrSessionExpired = errors.New("session expired")
)

// Kind classifies a request failure
type Kind string

const (
	// KindTransport is a network-layer failure, no response was received
	KindTransport Kind = "transport"
	// KindTimeout is a request that hit the timeout ceiling or was canceled
	KindTimeout Kind = "timeout"
	// KindAuth is a 401 or 403 response
	KindAuth Kind = "auth"
	// KindStatus is any other non-2xx response
	KindStatus Kind = "status"
)

// Error describes a failed backend request
type Error struct {
	Kind       Kind
	Method     string
	Path       string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindAuth, KindStatus:
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	default:
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Path, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is a 401/403 response
func IsAuthError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindAuth
}

// IsTransportError reports whether err is a network-layer failure. Timeouts
// and cancellations are not transport errors.
func IsTransportError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindTransport
}

// IsTimeout reports whether err is a timeout or cancellation
func IsTimeout(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindTimeout
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// ResponseBody returns the response body carried by err, or nil
func ResponseBody(err error) []byte {
	var e *Error
	if errors.As(err, &e) {
		return e.Body
	}
	return nil
}

func statusKind(code int) Kind {
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return KindAuth
	}
	return KindStatus
}
