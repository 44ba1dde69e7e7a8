package ibselect

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Aamir1055/BrokerEye-sub005/internal/events"
	"github.com/Aamir1055/BrokerEye-sub005/internal/session"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/logger"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

type fakeSource struct {
	mu       sync.Mutex
	ibs      []models.IB
	accounts map[string][]int64
	gate     map[string]chan struct{}
	started  chan struct{}

	listCalls    atomic.Int64
	accountCalls atomic.Int64
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		ibs: []models.IB{
			{ID: 1, Email: "alpha@ib.test", Name: "Alpha"},
			{ID: 2, Email: "beta@ib.test", Name: "Beta"},
		},
		accounts: map[string][]int64{
			"alpha@ib.test": {1001, 1002, 1003},
			"beta@ib.test":  {2001},
		},
		gate:    make(map[string]chan struct{}),
		started: make(chan struct{}, 16),
	}
}

func (f *fakeSource) IBEmails(ctx context.Context) ([]models.IB, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.IB(nil), f.ibs...), nil
}

func (f *fakeSource) MT5Accounts(ctx context.Context, email string) ([]models.MT5Account, error) {
	f.accountCalls.Add(1)
	f.mu.Lock()
	gate := f.gate[email]
	logins, ok := f.accounts[email]
	f.mu.Unlock()

	if gate != nil {
		f.started <- struct{}{}
		<-gate
	}
	if !ok {
		return nil, errors.New("no such IB")
	}
	out := make([]models.MT5Account, 0, len(logins))
	for _, l := range logins {
		out = append(out, models.MT5Account{Login: l})
	}
	return out, nil
}

func newSelector(t *testing.T) (*Selector, *fakeSource, *session.Session, *events.LocalBus) {
	t.Helper()
	log := logger.Discard()
	src := newFakeSource()
	sess := session.New(session.NewMemoryStore())
	bus := events.NewLocalBus(log)
	s := New(src, sess, bus, log)
	t.Cleanup(s.Stop)
	return s, src, sess, bus
}

func sorted(logins []int64) []int64 {
	sort.Slice(logins, func(i, j int) bool { return logins[i] < logins[j] })
	return logins
}

func equalLogins(got, want []int64) bool {
	got = sorted(got)
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestSelect_ReplacesAccountSet(t *testing.T) {
	s, _, sess, _ := newSelector(t)
	ctx := context.Background()

	if err := s.Select(ctx, models.IB{ID: 1, Email: "alpha@ib.test"}); err != nil {
		t.Fatalf("Select(alpha) error = %v", err)
	}
	if got := s.Accounts(); !equalLogins(got, []int64{1001, 1002, 1003}) {
		t.Errorf("Accounts() = %v after alpha", got)
	}

	if err := s.Select(ctx, models.IB{ID: 2, Email: "beta@ib.test"}); err != nil {
		t.Fatalf("Select(beta) error = %v", err)
	}
	if got := s.Accounts(); !equalLogins(got, []int64{2001}) {
		t.Errorf("Accounts() = %v after beta, want exactly [2001]", got)
	}

	stored, _ := sess.SelectedIB(ctx)
	if stored == nil || stored.Email != "beta@ib.test" {
		t.Errorf("persisted selection = %+v", stored)
	}
}

func TestClear_EmptiesSetAndStorage(t *testing.T) {
	s, _, sess, _ := newSelector(t)
	ctx := context.Background()
	_ = s.Select(ctx, models.IB{ID: 1, Email: "alpha@ib.test"})

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if len(s.Accounts()) != 0 || s.Selected() != nil {
		t.Errorf("after Clear accounts = %v, selected = %v", s.Accounts(), s.Selected())
	}
	if stored, _ := sess.SelectedIB(ctx); stored != nil {
		t.Errorf("persisted selection = %+v, want none", stored)
	}
}

func TestSelect_WithoutEmailClearsSet(t *testing.T) {
	s, src, _, _ := newSelector(t)
	ctx := context.Background()
	_ = s.Select(ctx, models.IB{ID: 1, Email: "alpha@ib.test"})
	calls := src.accountCalls.Load()

	if err := s.Select(ctx, models.IB{ID: 9}); err != nil {
		t.Fatalf("Select(no email) error = %v", err)
	}
	if len(s.Accounts()) != 0 {
		t.Errorf("Accounts() = %v, want empty", s.Accounts())
	}
	if src.accountCalls.Load() != calls {
		t.Error("accounts fetched for an IB without email")
	}
}

func TestSelect_StaleFetchIsDiscarded(t *testing.T) {
	s, src, _, _ := newSelector(t)
	ctx := context.Background()

	gate := make(chan struct{})
	src.mu.Lock()
	src.gate["alpha@ib.test"] = gate
	src.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.Select(ctx, models.IB{ID: 1, Email: "alpha@ib.test"}) }()

	<-src.started
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	close(gate)

	if err := <-done; err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(s.Accounts()) != 0 {
		t.Errorf("Accounts() = %v, stale fetch was installed", s.Accounts())
	}
}

func TestSelectByEmail(t *testing.T) {
	s, src, _, _ := newSelector(t)
	ctx := context.Background()

	ib, err := s.SelectByEmail(ctx, "BETA@ib.test")
	if err != nil {
		t.Fatalf("SelectByEmail() error = %v", err)
	}
	if ib.ID != 2 || src.listCalls.Load() != 1 {
		t.Errorf("SelectByEmail() = %+v, list calls = %d", ib, src.listCalls.Load())
	}

	if _, err := s.SelectByEmail(ctx, "nobody@ib.test"); !errors.Is(err, ErrUnknownIB) {
		t.Errorf("SelectByEmail(unknown) error = %v, want ErrUnknownIB", err)
	}
}

func TestRestore_OnlyOnce(t *testing.T) {
	s, src, sess, _ := newSelector(t)
	ctx := context.Background()
	_ = sess.SaveSelectedIB(ctx, &models.IB{ID: 1, Email: "alpha@ib.test"})

	if err := s.Restore(ctx); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if sel := s.Selected(); sel == nil || sel.Email != "alpha@ib.test" {
		t.Fatalf("Selected() = %+v after restore", sel)
	}
	if !equalLogins(s.Accounts(), []int64{1001, 1002, 1003}) {
		t.Errorf("Accounts() = %v after restore", s.Accounts())
	}

	_ = s.Restore(ctx)
	if got := src.accountCalls.Load(); got != 1 {
		t.Errorf("accounts fetched %d times, want 1", got)
	}
}

func TestStart_ReactsToNotifications(t *testing.T) {
	s, src, sess, bus := newSelector(t)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := src.listCalls.Load(); got != 0 {
		t.Fatalf("IB list fetched %d times without a session", got)
	}

	_ = sess.SaveTokens(ctx, models.TokenPair{AccessToken: "a", RefreshToken: "r"})
	bus.Publish(ctx, events.Event{Name: events.Login, Payload: events.LoginPayload{}})
	if got := len(s.IBs()); got != 2 {
		t.Errorf("IBs() has %d entries after login, want 2", got)
	}

	bus.Publish(ctx, events.Event{Name: events.AppRefresh, Payload: events.RefreshPayload{Source: "test"}})
	if got := src.listCalls.Load(); got != 2 {
		t.Errorf("IB list fetched %d times, want 2", got)
	}

	_ = s.Select(ctx, models.IB{ID: 1, Email: "alpha@ib.test"})
	bus.Publish(ctx, events.Event{Name: events.Logout, Payload: events.LogoutPayload{Reason: "test"}})
	if s.Selected() != nil || len(s.IBs()) != 0 || len(s.Accounts()) != 0 {
		t.Errorf("state survived logout: selected=%v ibs=%v accounts=%v", s.Selected(), s.IBs(), s.Accounts())
	}
}

func TestStart_LoadsListWithExistingSession(t *testing.T) {
	s, src, sess, _ := newSelector(t)
	ctx := context.Background()
	_ = sess.SaveTokens(ctx, models.TokenPair{AccessToken: "a", RefreshToken: "r"})

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := src.listCalls.Load(); got != 1 {
		t.Errorf("IB list fetched %d times, want 1", got)
	}
}
