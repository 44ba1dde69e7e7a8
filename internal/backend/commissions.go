package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Aamir1055/BrokerEye-sub005/internal/httpclient"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

// Accepted commission sort orders
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListCommissions returns one page of IB commission records
func (a *API) ListCommissions(ctx context.Context, query models.CommissionQuery) (*models.CommissionPage, error) {
	q := pageQuery(query.Page, query.PerPage)
	if s := strings.TrimSpace(query.Search); s != "" {
		q.Set("search", s)
	}
	if query.SortBy != "" {
		q.Set("sort_by", query.SortBy)
	}
	if order := strings.ToLower(query.SortOrder); order != "" {
		if order != SortAsc && order != SortDesc {
			return nil, invalid("sort_order", "must be asc or desc")
		}
		q.Set("sort_order", order)
	}

	page, err := call[models.CommissionPage](ctx, a.ib, http.MethodGet, PathCommissions, nil, httpclient.WithQuery(q))
	if err != nil {
		return nil, fmt.Errorf("failed to list commissions: %w", err)
	}
	return &page, nil
}

// CommissionPercentage returns the commission percentage of IB id
func (a *API) CommissionPercentage(ctx context.Context, id int64) (*models.CommissionPercentage, error) {
	if id <= 0 {
		return nil, invalid("id", "must be positive")
	}
	p, err := call[models.CommissionPercentage](ctx, a.ib, http.MethodGet, commissionPercentagePath(id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get percentage of IB %d: %w", id, err)
	}
	return &p, nil
}

// UpdateCommissionPercentage sets the commission percentage of IB id and
// returns the updated record
func (a *API) UpdateCommissionPercentage(ctx context.Context, id int64, percentage float64) (*models.IBCommission, error) {
	if id <= 0 {
		return nil, invalid("id", "must be positive")
	}
	if err := ValidatePercentage(percentage); err != nil {
		return nil, err
	}

	rec, err := call[models.IBCommission](ctx, a.ib, http.MethodPut, commissionPercentagePath(id),
		map[string]float64{"percentage": percentage})
	if err != nil {
		return nil, fmt.Errorf("failed to update percentage of IB %d: %w", id, err)
	}

	a.logger.WithField("ib_id", id).WithField("percentage", percentage).Info("Commission percentage updated")
	return &rec, nil
}

// BulkUpdatePercentages applies several percentage updates at once. The
// batch is validated as a whole; nothing is sent if any entry is invalid.
func (a *API) BulkUpdatePercentages(ctx context.Context, updates []models.PercentageUpdate) (*models.BulkPercentageResult, error) {
	if err := ValidateBulk(updates); err != nil {
		return nil, err
	}

	result, err := call[models.BulkPercentageResult](ctx, a.ib, http.MethodPost, PathBulkPercentage,
		models.BulkPercentageRequest{Updates: updates})
	if err != nil {
		return nil, fmt.Errorf("bulk percentage update failed: %w", err)
	}

	a.logger.WithField("updated", result.Updated).WithField("failed", len(result.Failed)).Info("Bulk percentage update applied")
	return &result, nil
}

// CommissionTotals returns the aggregate commission figures
func (a *API) CommissionTotals(ctx context.Context) (*models.CommissionTotals, error) {
	totals, err := call[models.CommissionTotals](ctx, a.ib, http.MethodGet, PathCommissionsTotal, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get commission totals: %w", err)
	}
	return &totals, nil
}

// IBEmails returns the introducing brokers available for selection
func (a *API) IBEmails(ctx context.Context) ([]models.IB, error) {
	paths := []string{PathIBEmails, PathIBEmailsLegacy}
	return firstSuccess(ctx, a.logger, paths, func(path string) ([]models.IB, error) {
		raw, err := call[json.RawMessage](ctx, a.ib, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		return decodeIBs(raw)
	})
}

// MT5Accounts returns the MT5 accounts attached to the IB with email
func (a *API) MT5Accounts(ctx context.Context, email string) ([]models.MT5Account, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, invalid("email", "is required")
	}

	byQuery := PathMT5Accounts + "?" + url.Values{"ib_email": {email}}.Encode()
	paths := []string{byQuery, mt5AccountsByIBPath(email)}
	return firstSuccess(ctx, a.logger, paths, func(path string) ([]models.MT5Account, error) {
		raw, err := call[json.RawMessage](ctx, a.ib, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		return decodeAccounts(raw)
	})
}

// decodeIBs accepts a list of IB objects, a list of plain emails, or either
// wrapped in an object under "emails" or "ibs"
func decodeIBs(raw json.RawMessage) ([]models.IB, error) {
	if len(raw) == 0 {
		return []models.IB{}, nil
	}
	if inner, ok := unwrapList(raw, "emails", "ibs"); ok {
		raw = inner
	}

	var ibs []models.IB
	if err := json.Unmarshal(raw, &ibs); err == nil {
		return ibs, nil
	}

	var emails []string
	if err := json.Unmarshal(raw, &emails); err != nil {
		return nil, fmt.Errorf("failed to decode IB list: %w", err)
	}
	ibs = make([]models.IB, 0, len(emails))
	for _, e := range emails {
		ibs = append(ibs, models.IB{Email: e})
	}
	return ibs, nil
}

// decodeAccounts accepts a list of account objects, a list of logins, or
// either wrapped in an object under "accounts" or "mt5_accounts"
func decodeAccounts(raw json.RawMessage) ([]models.MT5Account, error) {
	if len(raw) == 0 {
		return []models.MT5Account{}, nil
	}
	if inner, ok := unwrapList(raw, "accounts", "mt5_accounts"); ok {
		raw = inner
	}

	var accounts []models.MT5Account
	if err := json.Unmarshal(raw, &accounts); err == nil {
		return accounts, nil
	}

	var logins []json.Number
	if err := json.Unmarshal(raw, &logins); err != nil {
		return nil, fmt.Errorf("failed to decode MT5 accounts: %w", err)
	}
	accounts = make([]models.MT5Account, 0, len(logins))
	for _, n := range logins {
		login, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("invalid MT5 login %q: %w", n, err)
		}
		accounts = append(accounts, models.MT5Account{Login: login})
	}
	return accounts, nil
}

func unwrapList(raw json.RawMessage, keys ...string) (json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v, true
		}
	}
	return nil, false
}
