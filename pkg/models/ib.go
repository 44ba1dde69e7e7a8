package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// IB represents an introducing broker as listed by the IB API
type IB struct {
	ID         int64    `json:"id"`
	Email      string   `json:"email"`
	Name       string   `json:"name,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
}

// IBCommission represents a commission record of a single IB. Commission
// values are computed by the backend only.
type IBCommission struct {
	ID                  int64      `json:"id"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	Percentage          float64    `json:"percentage"`
	TotalCommission     float64    `json:"total_commission"`
	AvailableCommission float64    `json:"available_commission"`
	LastSyncedAt        *time.Time `json:"last_synced_at,omitempty"`
}

// CommissionPage represents one page of IB commission records
type CommissionPage struct {
	Records    []IBCommission `json:"records"`
	Pagination Pagination     `json:"pagination"`
}

// CommissionQuery represents listing parameters for IB commissions
type CommissionQuery struct {
	Page      int
	PerPage   int
	Search    string
	SortBy    string
	SortOrder string // asc or desc
}

// CommissionTotals represents the aggregate commission figures
type CommissionTotals struct {
	TotalCommission     float64 `json:"total_commission"`
	AvailableCommission float64 `json:"available_commission"`
	Count               int     `json:"count"`
}

// CommissionPercentage represents the percentage endpoint payload
type CommissionPercentage struct {
	ID         int64   `json:"id"`
	Percentage float64 `json:"percentage"`
}

// PercentageUpdate represents one entry of a bulk percentage update
type PercentageUpdate struct {
	ID         int64   `json:"id"`
	Percentage float64 `json:"percentage"`
}

// BulkPercentageRequest represents the bulk update body
type BulkPercentageRequest struct {
	Updates []PercentageUpdate `json:"updates"`
}

// BulkPercentageResult represents the outcome of a bulk update
type BulkPercentageResult struct {
	Updated int                `json:"updated"`
	Failed  []BulkFailedUpdate `json:"failed,omitempty"`
	Records []IBCommission     `json:"records,omitempty"`
}

// BulkFailedUpdate names an entry the backend refused
type BulkFailedUpdate struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// MT5Account represents a trading account attached to an IB
type MT5Account struct {
	Login   int64   `json:"login"`
	Name    string  `json:"name,omitempty"`
	Group   string  `json:"group,omitempty"`
	Balance float64 `json:"balance,omitempty"`
}

// UnmarshalJSON accepts the login as a JSON number or a numeric string
func (a *MT5Account) UnmarshalJSON(data []byte) error {
	type plain MT5Account
	var aux struct {
		plain
		Login json.Number `json:"login"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*a = MT5Account(aux.plain)
	if aux.Login == "" {
		a.Login = 0
		return nil
	}
	login, err := aux.Login.Int64()
	if err != nil {
		return fmt.Errorf("invalid MT5 login %q: %w", aux.Login, err)
	}
	a.Login = login
	return nil
}
