package sandbox

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

const defaultPerPage = 50

func pageParams(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 500 {
		perPage = defaultPerPage
	}
	return page, perPage
}

func paginate(total, page, perPage int) (start, end int, p models.Pagination) {
	p = models.Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	start = (page - 1) * perPage
	if start > total {
		start = total
	}
	end = start + perPage
	if end > total {
		end = total
	}
	return start, end, p
}

// lookupAccount resolves the {login} route variable. Callers hold s.mu.
func (s *Server) lookupAccount(w http.ResponseWriter, r *http.Request) (*account, bool) {
	login, err := strconv.ParseInt(mux.Vars(r)["login"], 10, 64)
	if err != nil {
		fail(w, http.StatusBadRequest, "Invalid login", nil)
		return nil, false
	}
	acc, ok := s.accounts[login]
	if !ok {
		fail(w, http.StatusNotFound, fmt.Sprintf("Client %d not found", login), nil)
		return nil, false
	}
	return acc, true
}

func (s *Server) sortedClients() []models.Client {
	clients := make([]models.Client, 0, len(s.accounts))
	for _, acc := range s.accounts {
		clients = append(clients, acc.client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].Login < clients[j].Login })
	return clients
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)

	s.mu.Lock()
	clients := s.sortedClients()
	s.mu.Unlock()

	start, end, p := paginate(len(clients), page, perPage)
	success(w, models.ClientList{Clients: clients[start:end], Pagination: p}, "")
}

func (s *Server) handleSearchClients(w http.ResponseWriter, r *http.Request) {
	var req models.ClientSearch
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	clients := s.sortedClients()
	s.mu.Unlock()

	query := strings.ToLower(strings.TrimSpace(req.Query))
	matched := clients[:0]
	for _, c := range clients {
		if query != "" &&
			!strings.Contains(strings.ToLower(c.Name), query) &&
			!strings.Contains(strings.ToLower(c.Email), query) &&
			!strings.Contains(strconv.FormatInt(c.Login, 10), query) {
			continue
		}
		if g := req.Filters["group"]; g != "" && c.Group != g {
			continue
		}
		if cc := req.Filters["country"]; cc != "" && !strings.EqualFold(c.Country, cc) {
			continue
		}
		matched = append(matched, c)
	}

	page, perPage := req.Page, req.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	start, end, p := paginate(len(matched), page, perPage)
	success(w, models.ClientList{Clients: matched[start:end], Pagination: p}, "")
}

func (s *Server) handleClientFields(w http.ResponseWriter, r *http.Request) {
	success(w, clientFields(), "")
}

func (s *Server) handleDeals(w http.ResponseWriter, r *http.Request) {
	var q models.DealQuery
	if r.Method == http.MethodPost {
		if !decode(w, r, &q) {
			return
		}
	} else {
		var err error
		if q.From, err = parseTime(r.URL.Query().Get("from")); err != nil {
			fail(w, http.StatusUnprocessableEntity, "Validation failed", map[string][]string{"from": {err.Error()}})
			return
		}
		if q.To, err = parseTime(r.URL.Query().Get("to")); err != nil {
			fail(w, http.StatusUnprocessableEntity, "Validation failed", map[string][]string{"to": {err.Error()}})
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}

	deals := make([]models.Deal, 0, len(acc.deals))
	for _, d := range acc.deals {
		if !q.From.IsZero() && d.Time.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && d.Time.After(q.To) {
			continue
		}
		deals = append(deals, d)
	}
	success(w, map[string]any{"deals": deals}, "")
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}

func (s *Server) handleDealStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}

	var stats models.DealStats
	for _, d := range acc.deals {
		switch d.Action {
		case "balance":
			if d.Profit >= 0 {
				stats.Deposits += d.Profit
			} else {
				stats.Withdrawals -= d.Profit
			}
		case "credit":
		default:
			stats.TotalDeals++
			stats.TotalVolume += d.Volume
			stats.TotalProfit += d.Profit
		}
	}
	success(w, stats, "")
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	success(w, map[string]any{"positions": acc.positions}, "")
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	var req models.BalanceOperation
	if !decode(w, r, &req) {
		return
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount <= 0 {
		fail(w, http.StatusUnprocessableEntity, "Validation failed", map[string][]string{"amount": {"must be greater than zero"}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}

	op := mux.Vars(r)["op"]
	action, delta := "balance", req.Amount
	switch op {
	case "withdrawal":
		if acc.client.Balance < req.Amount {
			fail(w, http.StatusUnprocessableEntity, "Insufficient balance", map[string][]string{"amount": {"exceeds balance"}})
			return
		}
		delta = -req.Amount
	case "credit-in":
		action = "credit"
	case "credit-out":
		if acc.client.Credit < req.Amount {
			fail(w, http.StatusUnprocessableEntity, "Insufficient credit", map[string][]string{"amount": {"exceeds credit"}})
			return
		}
		action, delta = "credit", -req.Amount
	}

	if action == "credit" {
		acc.client.Credit += delta
	} else {
		acc.client.Balance += delta
	}
	acc.client.Equity += delta

	s.nextDeal++
	acc.deals = append(acc.deals, models.Deal{
		Deal:    acc.client.Login*100 + 50 + s.nextDeal,
		Login:   acc.client.Login,
		Action:  action,
		Profit:  delta,
		Comment: req.Comment,
		Time:    s.now(),
	})

	success(w, acc.client, fmt.Sprintf("%s of %.2f applied", op, req.Amount))
}

func (s *Server) clientPercentage(acc *account) models.ClientPercentage {
	p := models.ClientPercentage{Login: acc.client.Login}
	if acc.percentage != nil {
		p.Percentage = *acc.percentage
		p.IsCustom = true
		return p
	}
	for _, b := range s.ibs {
		for _, login := range b.accounts {
			if login == acc.client.Login {
				p.Percentage = b.record.Percentage
			}
		}
	}
	return p
}

func (s *Server) handleGetClientPercentage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	success(w, s.clientPercentage(acc), "")
}

func (s *Server) handleSetClientPercentage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Percentage *float64 `json:"percentage"`
	}
	if !decode(w, r, &req) {
		return
	}
	if msg := percentageProblem(req.Percentage); msg != "" {
		fail(w, http.StatusUnprocessableEntity, "Validation failed", map[string][]string{"percentage": {msg}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	pct := *req.Percentage
	acc.percentage = &pct
	success(w, s.clientPercentage(acc), "Percentage updated")
}

func (s *Server) handleClientPercentages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ClientPercentage, 0, len(s.accounts))
	for _, c := range s.sortedClients() {
		out = append(out, s.clientPercentage(s.accounts[c.Login]))
	}
	success(w, map[string]any{"percentages": out}, "")
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rules := append([]models.Rule(nil), s.rules...)
	s.mu.Unlock()
	success(w, map[string]any{"rules": rules}, "")
}

func (s *Server) handleClientRules(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	rules := make([]models.ClientRule, 0, len(acc.rules))
	for _, rule := range acc.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Code < rules[j].Code })
	success(w, map[string]any{"rules": rules}, "")
}

func (s *Server) handleAddClientRule(w http.ResponseWriter, r *http.Request) {
	var req models.ClientRule
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	known := false
	for _, rule := range s.rules {
		if rule.Code == req.Code {
			known = true
		}
	}
	if !known {
		fail(w, http.StatusUnprocessableEntity, "Validation failed", map[string][]string{"rule_code": {"unknown rule"}})
		return
	}

	req.Active = true
	acc.rules[req.Code] = req
	success(w, req, "Rule added")
}

func (s *Server) handleDeleteClientRule(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	code := mux.Vars(r)["code"]
	if _, exists := acc.rules[code]; !exists {
		fail(w, http.StatusNotFound, fmt.Sprintf("Rule %s is not attached", code), nil)
		return
	}
	delete(acc.rules, code)
	success(w, nil, "Rule removed")
}

func percentageProblem(p *float64) string {
	switch {
	case p == nil:
		return "is required"
	case math.IsNaN(*p) || math.IsInf(*p, 0):
		return "must be a number"
	case *p < 0 || *p > 100:
		return "must be between 0 and 100"
	}
	return ""
}
