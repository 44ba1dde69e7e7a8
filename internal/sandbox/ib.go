package sandbox

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

var commissionSorters = map[string]func(a, b models.IBCommission) bool{
	"id":                   func(a, b models.IBCommission) bool { return a.ID < b.ID },
	"name":                 func(a, b models.IBCommission) bool { return a.Name < b.Name },
	"email":                func(a, b models.IBCommission) bool { return a.Email < b.Email },
	"percentage":           func(a, b models.IBCommission) bool { return a.Percentage < b.Percentage },
	"total_commission":     func(a, b models.IBCommission) bool { return a.TotalCommission < b.TotalCommission },
	"available_commission": func(a, b models.IBCommission) bool { return a.AvailableCommission < b.AvailableCommission },
}

// findIB returns the IB with id. Callers hold s.mu.
func (s *Server) findIB(id int64) *ib {
	for _, b := range s.ibs {
		if b.record.ID == id {
			return b
		}
	}
	return nil
}

func (s *Server) handleListCommissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := pageParams(r)

	sortBy := q.Get("sort_by")
	if sortBy == "" {
		sortBy = "id"
	}
	less, ok := commissionSorters[sortBy]
	if !ok {
		fail(w, http.StatusUnprocessableEntity, "Validation failed", map[string][]string{"sort_by": {"unsupported column"}})
		return
	}
	order := strings.ToLower(q.Get("sort_order"))
	if order != "" && order != "asc" && order != "desc" {
		fail(w, http.StatusUnprocessableEntity, "Validation failed", map[string][]string{"sort_order": {"must be asc or desc"}})
		return
	}

	search := strings.ToLower(strings.TrimSpace(q.Get("search")))

	s.mu.Lock()
	records := make([]models.IBCommission, 0, len(s.ibs))
	for _, b := range s.ibs {
		if search != "" &&
			!strings.Contains(strings.ToLower(b.record.Name), search) &&
			!strings.Contains(strings.ToLower(b.record.Email), search) {
			continue
		}
		records = append(records, b.record)
	}
	s.mu.Unlock()

	sort.SliceStable(records, func(i, j int) bool {
		if order == "desc" {
			return less(records[j], records[i])
		}
		return less(records[i], records[j])
	})

	start, end, p := paginate(len(records), page, perPage)
	success(w, models.CommissionPage{Records: records[start:end], Pagination: p}, "")
}

func (s *Server) handleCommissionTotals(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var totals models.CommissionTotals
	for _, b := range s.ibs {
		totals.TotalCommission += b.record.TotalCommission
		totals.AvailableCommission += b.record.AvailableCommission
		totals.Count++
	}
	success(w, totals, "")
}

func (s *Server) handleGetCommissionPercentage(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.findIB(id)
	if b == nil {
		fail(w, http.StatusNotFound, fmt.Sprintf("IB %d not found", id), nil)
		return
	}
	success(w, models.CommissionPercentage{ID: id, Percentage: b.record.Percentage}, "")
}

func (s *Server) handleUpdateCommissionPercentage(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

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

	b := s.findIB(id)
	if b == nil {
		fail(w, http.StatusNotFound, fmt.Sprintf("IB %d not found", id), nil)
		return
	}
	b.record.Percentage = *req.Percentage
	success(w, b.record, "Percentage updated")
}

func (s *Server) handleBulkPercentage(w http.ResponseWriter, r *http.Request) {
	var req models.BulkPercentageRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Updates) == 0 {
		fail(w, http.StatusUnprocessableEntity, "Validation failed", map[string][]string{"updates": {"must not be empty"}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result models.BulkPercentageResult
	for _, u := range req.Updates {
		pct := u.Percentage
		if msg := percentageProblem(&pct); msg != "" {
			result.Failed = append(result.Failed, models.BulkFailedUpdate{ID: u.ID, Reason: "percentage " + msg})
			continue
		}
		b := s.findIB(u.ID)
		if b == nil {
			result.Failed = append(result.Failed, models.BulkFailedUpdate{ID: u.ID, Reason: "not found"})
			continue
		}
		b.record.Percentage = pct
		result.Updated++
		result.Records = append(result.Records, b.record)
	}

	success(w, result, fmt.Sprintf("%d percentages updated", result.Updated))
}

func (s *Server) handleIBEmails(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ibs := make([]models.IB, 0, len(s.ibs))
	for _, b := range s.ibs {
		pct := b.record.Percentage
		ibs = append(ibs, models.IB{ID: b.record.ID, Email: b.record.Email, Name: b.record.Name, Percentage: &pct})
	}
	success(w, map[string]any{"emails": ibs}, "")
}

// handleMT5Accounts serves both the query and the path form of the lookup
func (s *Server) handleMT5Accounts(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("ib_email")
	if v, ok := mux.Vars(r)["email"]; ok {
		if unescaped, err := url.PathUnescape(v); err == nil {
			email = unescaped
		}
	}
	if email == "" {
		fail(w, http.StatusUnprocessableEntity, "Validation failed", map[string][]string{"ib_email": {"is required"}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.ibs {
		if !strings.EqualFold(b.record.Email, email) {
			continue
		}
		accounts := make([]models.MT5Account, 0, len(b.accounts))
		for _, login := range b.accounts {
			acc := models.MT5Account{Login: login}
			if c, ok := s.accounts[login]; ok {
				acc.Name = c.client.Name
				acc.Group = c.client.Group
				acc.Balance = c.client.Balance
			}
			accounts = append(accounts, acc)
		}
		success(w, map[string]any{"accounts": accounts}, "")
		return
	}
	fail(w, http.StatusNotFound, fmt.Sprintf("IB %s not found", email), nil)
}
