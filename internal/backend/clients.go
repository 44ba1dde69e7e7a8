package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Aamir1055/BrokerEye-sub005/internal/httpclient"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

// BalanceKind names a balance operation endpoint
type BalanceKind string

// Balance operations
const (
	Deposit    BalanceKind = "deposit"
	Withdrawal BalanceKind = "withdrawal"
	CreditIn   BalanceKind = "credit-in"
	CreditOut  BalanceKind = "credit-out"
)

// ListClients returns one page of clients
func (a *API) ListClients(ctx context.Context, page, perPage int) (*models.ClientList, error) {
	list, err := call[models.ClientList](ctx, a.general, http.MethodGet, PathClients, nil,
		httpclient.WithQuery(pageQuery(page, perPage)))
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return &list, nil
}

// SearchClients runs a server-side client search
func (a *API) SearchClients(ctx context.Context, search models.ClientSearch) (*models.ClientList, error) {
	list, err := call[models.ClientList](ctx, a.general, http.MethodPost, PathClientSearch, search)
	if err != nil {
		return nil, fmt.Errorf("failed to search clients: %w", err)
	}
	return &list, nil
}

// ClientFields returns the columns available on the clients listing
func (a *API) ClientFields(ctx context.Context) ([]models.ClientField, error) {
	fields, err := call[[]models.ClientField](ctx, a.general, http.MethodGet, PathClientFields, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get client fields: %w", err)
	}
	return fields, nil
}

// ClientDeals returns the deals of login executed in [from, to]. Zero times
// leave the bound open.
func (a *API) ClientDeals(ctx context.Context, login int64, from, to time.Time) ([]models.Deal, error) {
	if err := validateLogin(login); err != nil {
		return nil, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, invalid("to", "must not be before from")
	}

	q := url.Values{}
	if !from.IsZero() {
		q.Set("from", from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		q.Set("to", to.UTC().Format(time.RFC3339))
	}

	data, err := call[struct {
		Deals []models.Deal `json:"deals"`
	}](ctx, a.general, http.MethodGet, clientPath(login, "/deals"), nil, httpclient.WithQuery(q))
	if err != nil {
		return nil, fmt.Errorf("failed to get deals of %d: %w", login, err)
	}
	return data.Deals, nil
}

// ClientDealStats returns aggregate deal figures of login
func (a *API) ClientDealStats(ctx context.Context, login int64) (*models.DealStats, error) {
	if err := validateLogin(login); err != nil {
		return nil, err
	}
	stats, err := call[models.DealStats](ctx, a.general, http.MethodGet, clientPath(login, "/deals/stats"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get deal stats of %d: %w", login, err)
	}
	return &stats, nil
}

// ClientPositions returns the open positions of login
func (a *API) ClientPositions(ctx context.Context, login int64) ([]models.Position, error) {
	if err := validateLogin(login); err != nil {
		return nil, err
	}
	data, err := call[struct {
		Positions []models.Position `json:"positions"`
	}](ctx, a.general, http.MethodGet, clientPath(login, "/positions"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions of %d: %w", login, err)
	}
	return data.Positions, nil
}

// Balance performs a deposit, withdrawal or credit adjustment on login
func (a *API) Balance(ctx context.Context, kind BalanceKind, login int64, amount float64, comment string) (string, error) {
	switch kind {
	case Deposit, Withdrawal, CreditIn, CreditOut:
	default:
		return "", invalid("operation", fmt.Sprintf("%q is unknown", kind))
	}
	if err := validateLogin(login); err != nil {
		return "", err
	}
	if err := ValidateAmount(amount); err != nil {
		return "", err
	}

	msg, err := exec(ctx, a.general, http.MethodPost, clientPath(login, "/"+string(kind)),
		models.BalanceOperation{Amount: amount, Comment: strings.TrimSpace(comment)})
	if err != nil {
		return "", fmt.Errorf("%s of %.2f on %d failed: %w", kind, amount, login, err)
	}

	a.logger.WithField("login", login).WithField("operation", kind).WithField("amount", amount).Info("Balance operation applied")
	return msg, nil
}

// Deposit credits amount to the balance of login
func (a *API) Deposit(ctx context.Context, login int64, amount float64, comment string) (string, error) {
	return a.Balance(ctx, Deposit, login, amount, comment)
}

// Withdrawal debits amount from the balance of login
func (a *API) Withdrawal(ctx context.Context, login int64, amount float64, comment string) (string, error) {
	return a.Balance(ctx, Withdrawal, login, amount, comment)
}

// CreditIn adds credit to login
func (a *API) CreditIn(ctx context.Context, login int64, amount float64, comment string) (string, error) {
	return a.Balance(ctx, CreditIn, login, amount, comment)
}

// CreditOut removes credit from login
func (a *API) CreditOut(ctx context.Context, login int64, amount float64, comment string) (string, error) {
	return a.Balance(ctx, CreditOut, login, amount, comment)
}

// ClientPercentage returns the commission percentage of login
func (a *API) ClientPercentage(ctx context.Context, login int64) (*models.ClientPercentage, error) {
	if err := validateLogin(login); err != nil {
		return nil, err
	}
	p, err := call[models.ClientPercentage](ctx, a.general, http.MethodGet, clientPath(login, "/percentage"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get percentage of %d: %w", login, err)
	}
	return &p, nil
}

// SetClientPercentage sets a custom commission percentage for login
func (a *API) SetClientPercentage(ctx context.Context, login int64, percentage float64) (*models.ClientPercentage, error) {
	if err := validateLogin(login); err != nil {
		return nil, err
	}
	if err := ValidatePercentage(percentage); err != nil {
		return nil, err
	}
	p, err := call[models.ClientPercentage](ctx, a.general, http.MethodPost, clientPath(login, "/percentage"),
		map[string]float64{"percentage": percentage})
	if err != nil {
		return nil, fmt.Errorf("failed to set percentage of %d: %w", login, err)
	}
	return &p, nil
}

// ClientPercentages returns every client with a commission percentage
func (a *API) ClientPercentages(ctx context.Context) ([]models.ClientPercentage, error) {
	data, err := call[struct {
		Percentages []models.ClientPercentage `json:"percentages"`
	}](ctx, a.general, http.MethodGet, PathClientPercentages, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list client percentages: %w", err)
	}
	return data.Percentages, nil
}

// Rules returns the broker rule catalog
func (a *API) Rules(ctx context.Context) ([]models.Rule, error) {
	data, err := call[struct {
		Rules []models.Rule `json:"rules"`
	}](ctx, a.general, http.MethodGet, PathRules, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return data.Rules, nil
}

// ClientRules returns the rules attached to login
func (a *API) ClientRules(ctx context.Context, login int64) ([]models.ClientRule, error) {
	if err := validateLogin(login); err != nil {
		return nil, err
	}
	data, err := call[struct {
		Rules []models.ClientRule `json:"rules"`
	}](ctx, a.general, http.MethodGet, clientPath(login, "/rules"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get rules of %d: %w", login, err)
	}
	return data.Rules, nil
}

// AddClientRule attaches rule to login
func (a *API) AddClientRule(ctx context.Context, login int64, rule models.ClientRule) (*models.ClientRule, error) {
	if err := validateLogin(login); err != nil {
		return nil, err
	}
	if strings.TrimSpace(rule.Code) == "" {
		return nil, invalid("rule_code", "is required")
	}
	added, err := call[models.ClientRule](ctx, a.general, http.MethodPost, clientPath(login, "/rules"), rule)
	if err != nil {
		return nil, fmt.Errorf("failed to add rule %s to %d: %w", rule.Code, login, err)
	}
	return &added, nil
}

// DeleteClientRule detaches the rule identified by code from login
func (a *API) DeleteClientRule(ctx context.Context, login int64, code string) error {
	if err := validateLogin(login); err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return invalid("rule_code", "is required")
	}
	if _, err := exec(ctx, a.general, http.MethodDelete, clientPath(login, "/rules/"+escape(code)), nil); err != nil {
		return fmt.Errorf("failed to delete rule %s from %d: %w", code, login, err)
	}
	return nil
}

func validateLogin(login int64) error {
	if login <= 0 {
		return invalid("login", "must be a positive account number")
	}
	return nil
}

func pageQuery(page, perPage int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	return q
}
