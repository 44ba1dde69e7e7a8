package app

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Aamir1055/BrokerEye-sub005/internal/events"
	"github.com/Aamir1055/BrokerEye-sub005/internal/sandbox"
	"github.com/Aamir1055/BrokerEye-sub005/internal/session"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/config"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/logger"
)

func newSandboxApp(t *testing.T, store session.Store) (*App, *sandbox.Server) {
	t.Helper()

	cfg, err := config.LoadFrom(map[string]string{"SESSION_BACKEND": "memory"})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	cfg.Sandbox.AccessTokenTTL = time.Minute

	log := logger.Discard()
	srv := sandbox.NewServer(&cfg.Sandbox, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg.API.BaseURL = ts.URL
	cfg.API.IBBaseURL = ts.URL

	opts := []Option{}
	if store != nil {
		opts = append(opts, WithStore(store))
	}
	a := New(cfg, log, opts...)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Stop() })
	return a, srv
}

func TestApp_LoginLoadsIBList(t *testing.T) {
	a, _ := newSandboxApp(t, nil)
	ctx := context.Background()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(a.Selector().IBs()) != 0 {
		t.Fatal("IB list loaded without a session")
	}

	cfg := a.Config()
	if _, err := a.API().Login(ctx, cfg.Sandbox.UserEmail, cfg.Sandbox.UserPassword); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if got := len(a.Selector().IBs()); got == 0 {
		t.Error("IB list not loaded after auth:login")
	}
}

func TestApp_RestoresPersistedSession(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := context.Background()

	first, _ := newSandboxApp(t, store)
	cfg := first.Config()
	if _, err := first.API().Login(ctx, cfg.Sandbox.UserEmail, cfg.Sandbox.UserPassword); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if _, err := first.Selector().SelectByEmail(ctx, "summit@ib.example"); err != nil {
		t.Fatalf("SelectByEmail() error = %v", err)
	}

	// a second process against the same sandbox reuses the persisted store
	second := New(cfg, logger.Discard(), WithStore(store))
	if err := second.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { _ = second.Stop() })

	if err := second.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sel := second.Selector().Selected()
	if sel == nil || sel.Email != "summit@ib.example" {
		t.Fatalf("restored selection = %+v", sel)
	}
	if accounts := second.Selector().Accounts(); len(accounts) != 1 || accounts[0] != 100301 {
		t.Errorf("restored accounts = %v, want [100301]", accounts)
	}
	if second.Coordinator().AccessToken() == "" {
		t.Error("access token not loaded from the store")
	}
}

func TestApp_AppRefreshReloadsList(t *testing.T) {
	a, _ := newSandboxApp(t, nil)
	ctx := context.Background()
	cfg := a.Config()

	if _, err := a.API().Login(ctx, cfg.Sandbox.UserEmail, cfg.Sandbox.UserPassword); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	a.Bus().Publish(ctx, events.Event{Name: events.AppRefresh, Payload: events.RefreshPayload{Source: "test"}})
	if got := len(a.Selector().IBs()); got != 4 {
		t.Errorf("IBs() = %d entries, want 4", got)
	}
}
