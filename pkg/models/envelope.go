package models

import "encoding/json"

// StatusSuccess is the envelope status of a successful backend response
const StatusSuccess = "success"

// Envelope represents the {status, data, message} wrapper used by every
// backend endpoint
type Envelope struct {
	Status  string              `json:"status"`
	Data    json.RawMessage     `json:"data,omitempty"`
	Message string              `json:"message,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// OK reports whether the envelope carries a successful result
func (e *Envelope) OK() bool {
	return e.Status == StatusSuccess
}

// Pagination represents page metadata of a paginated listing
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}
