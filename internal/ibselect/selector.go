// Package ibselect holds the globally selected introducing broker and the
// set of MT5 account logins derived from it.
package ibselect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Aamir1055/BrokerEye-sub005/internal/events"
	"github.com/Aamir1055/BrokerEye-sub005/internal/session"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

// ErrUnknownIB is returned by SelectByEmail when the email is not in the IB list
var ErrUnknownIB = errors.New("unknown IB")

// Source provides the IB list and the accounts of a single IB
type Source interface {
	IBEmails(ctx context.Context) ([]models.IB, error)
	MT5Accounts(ctx context.Context, email string) ([]models.MT5Account, error)
}

// Selector represents the IB selection context
type Selector struct {
	source  Source
	session *session.Session
	bus     events.Bus
	logger  *logrus.Entry

	mu         sync.RWMutex
	selected   *models.IB
	ibs        []models.IB
	accounts   map[int64]struct{}
	generation uint64

	restoreOnce sync.Once
	unsubscribe []func()
}

// New creates a new Selector
func New(source Source, sess *session.Session, bus events.Bus, logger *logrus.Logger) *Selector {
	return &Selector{
		source:   source,
		session:  sess,
		bus:      bus,
		logger:   logger.WithField("component", "ib_selector"),
		accounts: make(map[int64]struct{}),
	}
}

// Start restores the persisted selection, loads the IB list when a session
// exists and subscribes to login, logout and app refresh notifications
func (s *Selector) Start(ctx context.Context) error {
	if err := s.Restore(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to restore IB selection")
	}

	if s.session.HasSession(ctx) {
		if _, err := s.RefreshList(ctx); err != nil {
			s.logger.WithError(err).Warn("Failed to load IB list")
		}
	}

	s.unsubscribe = append(s.unsubscribe,
		s.bus.Subscribe(events.Login, s.onLogin),
		s.bus.Subscribe(events.AppRefresh, s.onAppRefresh),
		s.bus.Subscribe(events.Logout, s.onLogout),
	)
	s.logger.Info("IB selector started")
	return nil
}

// Stop removes the bus subscriptions
func (s *Selector) Stop() {
	for _, unsub := range s.unsubscribe {
		unsub()
	}
	s.unsubscribe = nil
}

func (s *Selector) onLogin(ctx context.Context, _ events.Event) {
	if _, err := s.RefreshList(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to load IB list after login")
	}
}

func (s *Selector) onAppRefresh(ctx context.Context, _ events.Event) {
	if _, err := s.RefreshList(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to reload IB list")
	}
	if ib := s.Selected(); ib != nil && ib.Email != "" {
		if err := s.loadAccounts(ctx, *ib); err != nil {
			s.logger.WithError(err).WithField("ib_email", ib.Email).Warn("Failed to reload MT5 accounts")
		}
	}
}

// onLogout drops the in-memory state; the persisted selection is cleared
// together with the rest of the session
func (s *Selector) onLogout(context.Context, events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.selected = nil
	s.ibs = nil
	s.accounts = make(map[int64]struct{})
}

// Restore loads the persisted selection and its accounts. Only the first
// call has any effect.
func (s *Selector) Restore(ctx context.Context) error {
	var err error
	s.restoreOnce.Do(func() {
		var ib *models.IB
		ib, err = s.session.SelectedIB(ctx)
		if err != nil || ib == nil {
			return
		}

		s.mu.Lock()
		s.generation++
		s.selected = ib
		s.mu.Unlock()

		s.logger.WithField("ib_email", ib.Email).Info("Restored IB selection")
		if ib.Email != "" {
			err = s.loadAccounts(ctx, *ib)
		}
	})
	return err
}

// RefreshList refetches the IB list
func (s *Selector) RefreshList(ctx context.Context) ([]models.IB, error) {
	ibs, err := s.source.IBEmails(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch IB list: %w", err)
	}

	s.mu.Lock()
	s.ibs = ibs
	s.mu.Unlock()

	s.logger.WithField("count", len(ibs)).Debug("IB list loaded")
	return ibs, nil
}

// Select makes ib the active IB, persists it and replaces the account set
// with the accounts of its email. An IB without email leaves the set empty.
func (s *Selector) Select(ctx context.Context, ib models.IB) error {
	if err := s.session.SaveSelectedIB(ctx, &ib); err != nil {
		return fmt.Errorf("failed to persist IB selection: %w", err)
	}

	s.mu.Lock()
	s.generation++
	selected := ib
	s.selected = &selected
	s.accounts = make(map[int64]struct{})
	s.mu.Unlock()

	s.logger.WithField("ib_email", ib.Email).Info("IB selected")
	if ib.Email == "" {
		return nil
	}
	return s.loadAccounts(ctx, ib)
}

// SelectByEmail selects the IB with email from the IB list, loading the
// list first when it is empty
func (s *Selector) SelectByEmail(ctx context.Context, email string) (*models.IB, error) {
	email = strings.TrimSpace(email)
	ib, ok := s.lookup(email)
	if !ok {
		if _, err := s.RefreshList(ctx); err != nil {
			return nil, err
		}
		if ib, ok = s.lookup(email); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownIB, email)
		}
	}

	if err := s.Select(ctx, ib); err != nil {
		return nil, err
	}
	return &ib, nil
}

func (s *Selector) lookup(email string) (models.IB, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ib := range s.ibs {
		if strings.EqualFold(ib.Email, email) {
			return ib, true
		}
	}
	return models.IB{}, false
}

// Clear removes the selection and empties the account set
func (s *Selector) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	s.selected = nil
	s.accounts = make(map[int64]struct{})
	s.mu.Unlock()

	if err := s.session.ClearSelectedIB(ctx); err != nil {
		return fmt.Errorf("failed to clear IB selection: %w", err)
	}
	s.logger.Info("IB selection cleared")
	return nil
}

// loadAccounts fetches the accounts of ib and installs them unless the
// selection changed while the request was in flight
func (s *Selector) loadAccounts(ctx context.Context, ib models.IB) error {
	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()

	accounts, err := s.source.MT5Accounts(ctx, ib.Email)
	if err != nil {
		return fmt.Errorf("failed to fetch MT5 accounts of %s: %w", ib.Email, err)
	}

	set := make(map[int64]struct{}, len(accounts))
	for _, a := range accounts {
		set[a.Login] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		s.logger.WithField("ib_email", ib.Email).Debug("Discarding accounts of a stale selection")
		return nil
	}
	s.accounts = set

	s.logger.WithField("ib_email", ib.Email).WithField("accounts", len(set)).Debug("MT5 accounts loaded")
	return nil
}

// Selected returns a copy of the active IB or nil
func (s *Selector) Selected() *models.IB {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.selected == nil {
		return nil
	}
	ib := *s.selected
	return &ib
}

// IBs returns the last fetched IB list
func (s *Selector) IBs() []models.IB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.IB(nil), s.ibs...)
}

// Accounts returns the logins of the derived account set
func (s *Selector) Accounts() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logins := make([]int64, 0, len(s.accounts))
	for login := range s.accounts {
		logins = append(logins, login)
	}
	return logins
}

// Contains reports whether login belongs to the selected IB
func (s *Selector) Contains(login int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[login]
	return ok
}

// Active reports whether an IB is selected
func (s *Selector) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected != nil
}
