package backend

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Aamir1055/BrokerEye-sub005/internal/events"
	"github.com/Aamir1055/BrokerEye-sub005/internal/httpclient"
	"github.com/Aamir1055/BrokerEye-sub005/internal/session"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/logger"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

type fixture struct {
	api     *API
	sess    *session.Session
	bus     *events.LocalBus
	calls   atomic.Int64
	logins  atomic.Int64
	logouts atomic.Int64
}

func writeEnvelope(w http.ResponseWriter, code int, status string, data any, message string) {
	raw, _ := json.Marshal(data)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(models.Envelope{Status: status, Data: raw, Message: message})
}

func ok(w http.ResponseWriter, data any) {
	writeEnvelope(w, http.StatusOK, models.StatusSuccess, data, "")
}

func newFixture(t *testing.T, mux *http.ServeMux) *fixture {
	t.Helper()
	f := &fixture{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	log := logger.Discard()
	f.sess = session.New(session.NewMemoryStore())
	f.bus = events.NewLocalBus(log)
	f.bus.Subscribe(events.Login, func(context.Context, events.Event) { f.logins.Add(1) })
	f.bus.Subscribe(events.Logout, func(context.Context, events.Event) { f.logouts.Add(1) })

	coord := httpclient.NewCoordinator(srv.URL, f.sess, f.bus, log, httpclient.WithRefreshTimeout(time.Second))
	client := httpclient.New(srv.URL, coord, log, httpclient.WithTimeout(2*time.Second))
	coord.Attach(client)

	f.api = New(client, client, coord, f.sess, f.bus, log)
	return f
}

func TestLogin_PersistsSessionAndAnnounces(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathLogin, func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "ops@broker.test" || req.Password != "secret" {
			writeEnvelope(w, http.StatusUnauthorized, "error", nil, "Invalid credentials")
			return
		}
		ok(w, models.LoginResult{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			User:         &models.User{ID: 3, Email: req.Email, Name: "Ops"},
		})
	})
	f := newFixture(t, mux)
	ctx := context.Background()

	if _, err := f.api.Login(ctx, "ops@broker.test", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	pair, _ := f.sess.Tokens(ctx)
	if pair.AccessToken != "access-1" || pair.RefreshToken != "refresh-1" {
		t.Errorf("stored tokens = %+v", pair)
	}
	user, err := f.api.CurrentUser(ctx)
	if err != nil || user == nil || user.Email != "ops@broker.test" {
		t.Errorf("CurrentUser() = %v, %v", user, err)
	}
	if got := f.logins.Load(); got != 1 {
		t.Errorf("auth:login published %d times, want 1", got)
	}
}

func TestLogin_DoesNotInheritPreviousRefreshToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathLogin, func(w http.ResponseWriter, r *http.Request) {
		ok(w, models.LoginResult{AccessToken: "access-2", User: &models.User{ID: 4, Email: "desk@broker.test"}})
	})
	f := newFixture(t, mux)
	ctx := context.Background()
	_ = f.sess.SaveTokens(ctx, models.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-of-previous-user"})

	if _, err := f.api.Login(ctx, "desk@broker.test", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	pair, _ := f.sess.Tokens(ctx)
	if pair.AccessToken != "access-2" {
		t.Errorf("access token = %q, want access-2", pair.AccessToken)
	}
	if pair.RefreshToken != "" {
		t.Errorf("refresh token = %q, want none", pair.RefreshToken)
	}
}

func TestLogin_BadCredentialsDoNotRefresh(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathLogin, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, "error", nil, "Invalid credentials")
	})
	f := newFixture(t, mux)
	ctx := context.Background()
	_ = f.sess.SaveTokens(ctx, models.TokenPair{RefreshToken: "leftover"})

	_, err := f.api.Login(ctx, "ops@broker.test", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Login() error = %v, want APIError", err)
	}
	if apiErr.Message != "Invalid credentials" || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("APIError = %+v", apiErr)
	}
	if got := f.calls.Load(); got != 1 {
		t.Errorf("backend calls = %d, want 1 (no refresh on login)", got)
	}
}

func TestLogin_TwoFactorFlow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathLogin, func(w http.ResponseWriter, r *http.Request) {
		ok(w, models.LoginResult{Requires2FA: true, TempToken: "temp-9"})
	})
	mux.HandleFunc("POST "+PathVerifyTwoFA, func(w http.ResponseWriter, r *http.Request) {
		var req models.VerifyTwoFARequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.TempToken != "temp-9" || req.Code != "123456" {
			writeEnvelope(w, http.StatusUnauthorized, "error", nil, "Invalid code")
			return
		}
		ok(w, models.LoginResult{AccessToken: "a2", RefreshToken: "r2", User: &models.User{Email: "ops@broker.test"}})
	})
	f := newFixture(t, mux)
	ctx := context.Background()

	res, err := f.api.Login(ctx, "ops@broker.test", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !res.Requires2FA || res.TempToken != "temp-9" {
		t.Fatalf("Login() = %+v, want 2FA challenge", res)
	}
	if f.sess.HasSession(ctx) || f.logins.Load() != 0 {
		t.Fatal("session established before 2FA verification")
	}

	if _, err := f.api.VerifyTwoFA(ctx, res.TempToken, "123456"); err != nil {
		t.Fatalf("VerifyTwoFA() error = %v", err)
	}
	pair, _ := f.sess.Tokens(ctx)
	if pair.AccessToken != "a2" || f.logins.Load() != 1 {
		t.Errorf("after verification tokens = %+v, logins = %d", pair, f.logins.Load())
	}
}

func TestLogout_ClearsLocallyWhenServerFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathLogout, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	f := newFixture(t, mux)
	ctx := context.Background()
	_ = f.sess.SaveTokens(ctx, models.TokenPair{AccessToken: "a", RefreshToken: "r"})
	_ = f.sess.SaveSelectedIB(ctx, &models.IB{ID: 1, Email: "ib@broker.test"})

	if err := f.api.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if f.sess.HasSession(ctx) {
		t.Error("session still present after logout")
	}
	if ib, _ := f.sess.SelectedIB(ctx); ib != nil {
		t.Errorf("selected IB = %+v after logout, want cleared", ib)
	}
	if got := f.logouts.Load(); got != 1 {
		t.Errorf("auth:logout published %d times, want 1", got)
	}
}

func TestCall_NonSuccessEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathCommissionsTotal, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, "error", nil, "Totals unavailable")
	})
	f := newFixture(t, mux)

	_, err := f.api.CommissionTotals(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Totals unavailable" {
		t.Fatalf("CommissionTotals() error = %v, want APIError with backend message", err)
	}
}

func TestCall_ValidationErrorsFromBackend(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/amari/ib/commissions/5/percentage", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(models.Envelope{
			Status:  "error",
			Message: "Validation failed",
			Errors:  map[string][]string{"percentage": {"exceeds IB ceiling"}},
		})
	})
	f := newFixture(t, mux)

	_, err := f.api.UpdateCommissionPercentage(context.Background(), 5, 60)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if got := httpclient.StatusCode(err); got != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode(err) = %d, want 422", got)
	}
	if !strings.Contains(err.Error(), "exceeds IB ceiling") {
		t.Errorf("error %q does not carry field errors", err)
	}
}

func TestInvalidInputNeverReachesNetwork(t *testing.T) {
	f := newFixture(t, http.NewServeMux())
	ctx := context.Background()

	if _, err := f.api.UpdateCommissionPercentage(ctx, 5, 101); !IsValidation(err) {
		t.Errorf("UpdateCommissionPercentage(101) = %v, want ValidationError", err)
	}
	if _, err := f.api.BulkUpdatePercentages(ctx, []models.PercentageUpdate{{ID: 1, Percentage: 5}, {ID: 2, Percentage: -1}}); !IsValidation(err) {
		t.Errorf("BulkUpdatePercentages() = %v, want ValidationError", err)
	}
	if _, err := f.api.Deposit(ctx, 1001, 0, ""); !IsValidation(err) {
		t.Errorf("Deposit(0) = %v, want ValidationError", err)
	}
	if _, err := f.api.SetClientPercentage(ctx, 1001, math.NaN()); !IsValidation(err) {
		t.Errorf("SetClientPercentage(NaN) = %v, want ValidationError", err)
	}
	if _, err := f.api.ListCommissions(ctx, models.CommissionQuery{SortOrder: "sideways"}); !IsValidation(err) {
		t.Errorf("ListCommissions(bad order) = %v, want ValidationError", err)
	}
	if _, err := f.api.Login(ctx, "", "x"); !IsValidation(err) {
		t.Errorf("Login(no email) = %v, want ValidationError", err)
	}

	if got := f.calls.Load(); got != 0 {
		t.Errorf("backend calls = %d, want 0", got)
	}
}

func TestListCommissions_SendsQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathCommissions, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("per_page") != "25" || q.Get("search") != "alice" ||
			q.Get("sort_by") != "total_commission" || q.Get("sort_order") != "desc" {
			writeEnvelope(w, http.StatusBadRequest, "error", nil, "bad query "+r.URL.RawQuery)
			return
		}
		ok(w, models.CommissionPage{
			Records:    []models.IBCommission{{ID: 1, Email: "alice@ib.test", Percentage: 30}},
			Pagination: models.Pagination{Page: 2, PerPage: 25, Total: 26, TotalPages: 2},
		})
	})
	f := newFixture(t, mux)

	page, err := f.api.ListCommissions(context.Background(), models.CommissionQuery{
		Page: 2, PerPage: 25, Search: " alice ", SortBy: "total_commission", SortOrder: "DESC",
	})
	if err != nil {
		t.Fatalf("ListCommissions() error = %v", err)
	}
	if len(page.Records) != 1 || page.Pagination.TotalPages != 2 {
		t.Errorf("ListCommissions() = %+v", page)
	}
}

func TestIBEmails_FallsBackToSecondCandidate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathIBEmailsLegacy, func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{"emails": []string{"a@ib.test", "b@ib.test"}})
	})
	f := newFixture(t, mux)

	ibs, err := f.api.IBEmails(context.Background())
	if err != nil {
		t.Fatalf("IBEmails() error = %v", err)
	}
	if len(ibs) != 2 || ibs[1].Email != "b@ib.test" {
		t.Errorf("IBEmails() = %+v", ibs)
	}
	if got := f.calls.Load(); got != 2 {
		t.Errorf("backend calls = %d, want 2", got)
	}
}

func TestIBEmails_AllCandidatesFail(t *testing.T) {
	f := newFixture(t, http.NewServeMux())

	_, err := f.api.IBEmails(context.Background())
	if !errors.Is(err, ErrAllCandidatesFailed) {
		t.Fatalf("IBEmails() error = %v, want ErrAllCandidatesFailed", err)
	}
	for _, path := range []string{PathIBEmails, PathIBEmailsLegacy} {
		if !strings.Contains(err.Error(), path) {
			t.Errorf("aggregated error %q does not mention %s", err, path)
		}
	}
}

func TestMT5Accounts_DecodesLoginList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathMT5Accounts, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ib_email") != "a+b@ib.test" {
			http.NotFound(w, r)
			return
		}
		ok(w, []int64{1001, 1002})
	})
	f := newFixture(t, mux)

	accounts, err := f.api.MT5Accounts(context.Background(), "a+b@ib.test")
	if err != nil {
		t.Fatalf("MT5Accounts() error = %v", err)
	}
	if len(accounts) != 2 || accounts[0].Login != 1001 || accounts[1].Login != 1002 {
		t.Errorf("MT5Accounts() = %+v", accounts)
	}
}

func TestMT5Accounts_DecodesStringLogins(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathMT5Accounts, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":[{"login":"1001","name":"One"},{"login":1002}]}`))
	})
	f := newFixture(t, mux)

	accounts, err := f.api.MT5Accounts(context.Background(), "ib@broker.test")
	if err != nil {
		t.Fatalf("MT5Accounts() error = %v", err)
	}
	if len(accounts) != 2 || accounts[0].Login != 1001 || accounts[0].Name != "One" || accounts[1].Login != 1002 {
		t.Errorf("MT5Accounts() = %+v", accounts)
	}
}

func TestMT5Accounts_PathCandidate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/amari/ib/{email}/mt5-accounts", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{"accounts": []models.MT5Account{{Login: 7, Name: "Seven"}}})
	})
	mux.HandleFunc("GET "+PathMT5Accounts, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, "error", nil, "gone")
	})
	f := newFixture(t, mux)

	accounts, err := f.api.MT5Accounts(context.Background(), "ib@broker.test")
	if err != nil {
		t.Fatalf("MT5Accounts() error = %v", err)
	}
	if len(accounts) != 1 || accounts[0].Login != 7 {
		t.Errorf("MT5Accounts() = %+v", accounts)
	}
}
