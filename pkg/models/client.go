package models

import (
	"encoding/json"
	"time"
)

// Record represents a dynamic table row as returned by list endpoints whose
// columns are configured server-side
type Record = map[string]any

// Client represents a trading client (MT5 account) of the brokerage
type Client struct {
	Login    int64   `json:"login"`
	Name     string  `json:"name"`
	Email    string  `json:"email,omitempty"`
	Group    string  `json:"group,omitempty"`
	Country  string  `json:"country,omitempty"`
	Leverage int     `json:"leverage,omitempty"`
	Balance  float64 `json:"balance"`
	Equity   float64 `json:"equity"`
	Credit   float64 `json:"credit"`
	Margin   float64 `json:"margin"`

	// Fields holds every column of the row as received, including the ones
	// configured server-side that have no typed field
	Fields Record `json:"-"`
}

// UnmarshalJSON decodes the typed columns and keeps the raw row in Fields
func (c *Client) UnmarshalJSON(data []byte) error {
	type plain Client
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var fields Record
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*c = Client(p)
	c.Fields = fields
	return nil
}

// ClientList represents a page of clients
type ClientList struct {
	Clients    []Client   `json:"clients"`
	Pagination Pagination `json:"pagination"`
}

// ClientSearch represents the clients/search request body
type ClientSearch struct {
	Query   string            `json:"query,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
	Page    int               `json:"page,omitempty"`
	PerPage int               `json:"per_page,omitempty"`
}

// ClientField describes one column available on the clients listing
type ClientField struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Type  string `json:"type,omitempty"`
}

// Position represents an open position of a client
type Position struct {
	Position     int64     `json:"position"`
	Login        int64     `json:"login"`
	Symbol       string    `json:"symbol"`
	Action       string    `json:"action"` // buy or sell
	Volume       float64   `json:"volume"`
	PriceOpen    float64   `json:"price_open"`
	PriceCurrent float64   `json:"price_current"`
	Profit       float64   `json:"profit"`
	TimeCreate   time.Time `json:"time_create"`
}

// Deal represents an executed deal of a client
type Deal struct {
	Deal       int64     `json:"deal"`
	Login      int64     `json:"login"`
	Symbol     string    `json:"symbol,omitempty"`
	Action     string    `json:"action"`
	Volume     float64   `json:"volume,omitempty"`
	Price      float64   `json:"price,omitempty"`
	Profit     float64   `json:"profit"`
	Commission float64   `json:"commission,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	Time       time.Time `json:"time"`
}

// DealQuery represents the deal history range
type DealQuery struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// DealStats represents aggregate deal figures of a client
type DealStats struct {
	TotalDeals  int     `json:"total_deals"`
	TotalVolume float64 `json:"total_volume"`
	TotalProfit float64 `json:"total_profit"`
	Deposits    float64 `json:"deposits"`
	Withdrawals float64 `json:"withdrawals"`
}

// BalanceOperation represents a deposit, withdrawal or credit adjustment
type BalanceOperation struct {
	Amount  float64 `json:"amount"`
	Comment string  `json:"comment,omitempty"`
}

// ClientPercentage represents the commission percentage of a client
type ClientPercentage struct {
	Login      int64   `json:"login"`
	Percentage float64 `json:"percentage"`
	IsCustom   bool    `json:"is_custom,omitempty"`
}

// Rule represents a broker trading rule
type Rule struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ClientRule represents a rule attached to a client
type ClientRule struct {
	Code      string            `json:"rule_code"`
	Active    bool              `json:"is_active"`
	Params    map[string]string `json:"params,omitempty"`
	Timeframe string            `json:"timeframe,omitempty"`
}
