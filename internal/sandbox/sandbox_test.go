package sandbox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Aamir1055/BrokerEye-sub005/internal/backend"
	"github.com/Aamir1055/BrokerEye-sub005/internal/events"
	"github.com/Aamir1055/BrokerEye-sub005/internal/httpclient"
	"github.com/Aamir1055/BrokerEye-sub005/internal/ibselect"
	"github.com/Aamir1055/BrokerEye-sub005/internal/session"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/config"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/logger"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

const (
	testEmail    = "admin@sandbox.test"
	testPassword = "hunter2"
)

type stack struct {
	server  *Server
	api     *backend.API
	coord   *httpclient.Coordinator
	sess    *session.Session
	bus     *events.LocalBus
	logouts atomic.Int64
}

func newStack(t *testing.T) *stack {
	t.Helper()
	log := logger.Discard()

	st := &stack{
		server: NewServer(&config.SandboxConfig{
			AccessTokenTTL: time.Minute,
			UserEmail:      testEmail,
			UserPassword:   testPassword,
		}, log),
	}
	ts := httptest.NewServer(st.server.Handler())
	t.Cleanup(ts.Close)

	st.sess = session.New(session.NewMemoryStore())
	st.bus = events.NewLocalBus(log)
	st.bus.Subscribe(events.Logout, func(context.Context, events.Event) { st.logouts.Add(1) })

	st.coord = httpclient.NewCoordinator(ts.URL, st.sess, st.bus, log, httpclient.WithRefreshTimeout(2*time.Second))
	client := httpclient.New(ts.URL, st.coord, log, httpclient.WithTimeout(2*time.Second))
	st.coord.Attach(client)
	st.api = backend.New(client, client, st.coord, st.sess, st.bus, log)
	return st
}

func (st *stack) login(t *testing.T) {
	t.Helper()
	if _, err := st.api.Login(context.Background(), testEmail, testPassword); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
}

func TestEndToEnd_ExpiredTokenRefreshesOnce(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	st.login(t)

	before, _ := st.sess.Tokens(ctx)
	if before.AccessToken == "" || before.RefreshToken == "" {
		t.Fatalf("login stored tokens %+v", before)
	}

	st.server.ExpireAccessTokens()

	page, err := st.api.ListCommissions(ctx, models.CommissionQuery{PerPage: 10})
	if err != nil {
		t.Fatalf("ListCommissions() after expiry error = %v", err)
	}
	if len(page.Records) == 0 {
		t.Error("ListCommissions() returned no records")
	}

	if got := st.server.RefreshCalls(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	if got := st.server.Rejected(); got != 1 {
		t.Errorf("rejected requests = %d, want 1", got)
	}

	after, _ := st.sess.Tokens(ctx)
	if after.AccessToken == before.AccessToken || after.RefreshToken == before.RefreshToken {
		t.Error("tokens were not rotated in the session")
	}
	if st.coord.AccessToken() != after.AccessToken {
		t.Error("coordinator default token differs from the stored one")
	}
}

func TestEndToEnd_ConcurrentExpiredRequestsShareRefresh(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	st.login(t)
	st.server.ExpireAccessTokens()

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.api.ListClients(ctx, 1, 20)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("ListClients() error = %v", err)
		}
	}
	if got := st.server.RefreshCalls(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestEndToEnd_RevokedRefreshTokenLogsOut(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	st.login(t)
	st.server.ExpireAccessTokens()
	st.server.RevokeRefreshTokens()

	_, err := st.api.CommissionTotals(ctx)
	if !errors.Is(err, httpclient.ErrSessionExpired) {
		t.Fatalf("CommissionTotals() error = %v, want ErrSessionExpired", err)
	}
	if got := httpclient.StatusCode(err); got != http.StatusUnauthorized {
		t.Errorf("StatusCode(err) = %d, want the original 401", got)
	}
	if st.sess.HasSession(ctx) {
		t.Error("session survived a rejected refresh")
	}
	if got := st.logouts.Load(); got != 1 {
		t.Errorf("auth:logout published %d times, want 1", got)
	}
}

func TestEndToEnd_TwoFactorLogin(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	st.login(t)

	if _, err := st.api.TwoFASetup(ctx); err != nil {
		t.Fatalf("TwoFASetup() error = %v", err)
	}
	codes, err := st.api.TwoFAEnable(ctx, st.server.OneTimeCode())
	if err != nil {
		t.Fatalf("TwoFAEnable() error = %v", err)
	}
	if len(codes.Codes) == 0 {
		t.Fatal("no backup codes returned")
	}

	if err := st.api.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	res, err := st.api.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !res.Requires2FA {
		t.Fatal("Login() did not ask for a second factor")
	}
	if _, err := st.api.VerifyTwoFA(ctx, res.TempToken, codes.Codes[0]); err != nil {
		t.Fatalf("VerifyTwoFA(backup code) error = %v", err)
	}

	status, err := st.api.TwoFAStatus(ctx)
	if err != nil {
		t.Fatalf("TwoFAStatus() error = %v", err)
	}
	if !status.Enabled || status.BackupCodesRemaining != len(codes.Codes)-1 {
		t.Errorf("TwoFAStatus() = %+v", status)
	}
}

func TestEndToEnd_IBSelectionFiltersClients(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	st.login(t)

	sel := ibselect.New(st.api, st.sess, st.bus, logger.Discard())
	if _, err := sel.SelectByEmail(ctx, "blueharbor@ib.example"); err != nil {
		t.Fatalf("SelectByEmail() error = %v", err)
	}

	list, err := st.api.ListClients(ctx, 1, 100)
	if err != nil {
		t.Fatalf("ListClients() error = %v", err)
	}
	filtered := ibselect.FilterByActiveIB(sel, list.Clients, func(c models.Client) int64 { return c.Login })
	if len(filtered) != 2 {
		t.Fatalf("filtered clients = %+v, want the two Blue Harbor accounts", filtered)
	}
	for _, c := range filtered {
		if c.Login != 100201 && c.Login != 100202 {
			t.Errorf("unexpected client %d in filtered list", c.Login)
		}
	}
}

func TestEndToEnd_CommissionUpdates(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	st.login(t)

	rec, err := st.api.UpdateCommissionPercentage(ctx, 2, 27.5)
	if err != nil {
		t.Fatalf("UpdateCommissionPercentage() error = %v", err)
	}
	if rec.Percentage != 27.5 {
		t.Errorf("updated record = %+v", rec)
	}

	result, err := st.api.BulkUpdatePercentages(ctx, []models.PercentageUpdate{{ID: 1, Percentage: 10}, {ID: 99, Percentage: 5}})
	if err != nil {
		t.Fatalf("BulkUpdatePercentages() error = %v", err)
	}
	if result.Updated != 1 || len(result.Failed) != 1 || result.Failed[0].ID != 99 {
		t.Errorf("bulk result = %+v", result)
	}

	p, err := st.api.CommissionPercentage(ctx, 1)
	if err != nil || p.Percentage != 10 {
		t.Errorf("CommissionPercentage(1) = %+v, %v", p, err)
	}

	page, err := st.api.ListCommissions(ctx, models.CommissionQuery{SortBy: "percentage", SortOrder: "desc"})
	if err != nil {
		t.Fatalf("ListCommissions() error = %v", err)
	}
	if page.Records[0].ID != 3 {
		t.Errorf("highest percentage IB = %d, want 3", page.Records[0].ID)
	}
}

func TestEndToEnd_BalanceOperations(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	st.login(t)

	if _, err := st.api.Deposit(ctx, 100101, 250, "bonus"); err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}
	_, err := st.api.Withdrawal(ctx, 100101, 1e9, "")
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Insufficient balance" {
		t.Errorf("Withdrawal(too much) error = %v, want backend rejection", err)
	}

	stats, err := st.api.ClientDealStats(ctx, 100101)
	if err != nil {
		t.Fatalf("ClientDealStats() error = %v", err)
	}
	if stats.Deposits != 5000+250 {
		t.Errorf("deposits = %v, want 5250", stats.Deposits)
	}
}
