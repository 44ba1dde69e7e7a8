package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Aamir1055/BrokerEye-sub005/internal/httpclient"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

// ErrAllCandidatesFailed is wrapped by the error returned when every candidate
// path of an endpoint failed
var ErrAllCandidatesFailed = errors.New("all candidate endpoints failed")

// APIError is a response whose envelope did not report success
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	Errors     map[string][]string
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if len(e.Errors) > 0 {
		keys := make([]string, 0, len(e.Errors))
		for k := range e.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Errors[k], ", ")))
		}
		msg += ": " + strings.Join(parts, "; ")
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// ValidationError is a client-side input error detected before any request
// is sent
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, e.Fields[k]))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// IsValidation reports whether err is a client-side validation failure
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// translate turns an HTTP status error carrying an envelope into an
// APIError so the backend message reaches the caller
func translate(err error) error {
	body := httpclient.ResponseBody(err)
	if len(body) == 0 {
		return err
	}

	var env models.Envelope
	if jerr := json.Unmarshal(body, &env); jerr != nil || (env.Message == "" && len(env.Errors) == 0) {
		return err
	}
	return &APIError{
		StatusCode: httpclient.StatusCode(err),
		Status:     env.Status,
		Message:    env.Message,
		Errors:     env.Errors,
		Err:        err,
	}
}
