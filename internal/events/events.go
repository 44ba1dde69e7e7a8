// Package events provides the process-wide notification bus used for
// cross-component signaling (login, logout, token refresh, app refresh).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

// Name identifies a notification
type Name string

// Notification names
const (
	Login          Name = "auth:login"
	Logout         Name = "auth:logout"
	TokenRefreshed Name = "auth:token_refreshed"
	AppRefresh     Name = "app:refresh"
)

// Names lists every known notification
var Names = []Name{Login, Logout, TokenRefreshed, AppRefresh}

// Event is a single notification with its typed payload
type Event struct {
	Name    Name
	At      time.Time
	Payload any
}

// LoginPayload accompanies Login
type LoginPayload struct {
	User *models.User `json:"user,omitempty"`
}

// LogoutPayload accompanies Logout
type LogoutPayload struct {
	Reason   string `json:"reason"`
	LoginURL string `json:"login_url,omitempty"`
}

// TokenRefreshedPayload accompanies TokenRefreshed. The new token itself is
// never broadcast.
type TokenRefreshedPayload struct{}

// RefreshPayload accompanies AppRefresh
type RefreshPayload struct {
	Source string `json:"source,omitempty"`
}

// Handler reacts to a published event
type Handler func(ctx context.Context, ev Event)

// Bus is a publish/subscribe channel for process-wide notifications
type Bus interface {
	Publish(ctx context.Context, ev Event)
	Subscribe(name Name, h Handler) (unsubscribe func())
}

// DecodePayload returns an empty payload value of the right type for name,
// for transports that carry payloads as JSON
func DecodePayload(name Name, data []byte) (any, error) {
	var payload any
	switch name {
	case Login:
		payload = &LoginPayload{}
	case Logout:
		payload = &LogoutPayload{}
	case TokenRefreshed:
		payload = &TokenRefreshedPayload{}
	case AppRefresh:
		payload = &RefreshPayload{}
	default:
		return nil, fmt.Errorf("unknown event %q", name)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, payload); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", name, err)
		}
	}
	return derefPayload(payload), nil
}

func derefPayload(p any) any {
	switch v := p.(type) {
	case *LoginPayload:
		return *v
	case *LogoutPayload:
		return *v
	case *TokenRefreshedPayload:
		return *v
	case *RefreshPayload:
		return *v
	}
	return p
}

// LocalBus dispatches events synchronously, in subscription order, on the
// publisher's goroutine
type LocalBus struct {
	logger *logrus.Entry

	mu     sync.RWMutex
	nextID int
	subs   map[Name][]subscription
}

type subscription struct {
	id int
	h  Handler
}

// NewLocalBus creates an in-process bus
func NewLocalBus(logger *logrus.Logger) *LocalBus {
	return &LocalBus{
		logger: logger.WithField("component", "events"),
		subs:   make(map[Name][]subscription),
	}
}

// Publish delivers ev to every current subscriber of ev.Name
func (b *LocalBus) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[ev.Name]))
	for _, s := range b.subs[ev.Name] {
		handlers = append(handlers, s.h)
	}
	b.mu.RUnlock()

	b.logger.WithFields(logrus.Fields{
		"event":       ev.Name,
		"subscribers": len(handlers),
	}).Debug("Publishing event")

	for _, h := range handlers {
		b.dispatch(ctx, h, ev)
	}
}

func (b *LocalBus) dispatch(ctx context.Context, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"event": ev.Name,
				"panic": r,
			}).Error("Event handler panicked")
		}
	}()
	h(ctx, ev)
}

// Subscribe registers h for name and returns a function removing it
func (b *LocalBus) Subscribe(name Name, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscription{id: id, h: h})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[name]
			for i, s := range subs {
				if s.id == id {
					b.subs[name] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}
