// Package messaging relays bus notifications between processes over NATS so
// that several clients sharing one session store react to each other's
// login, logout and refresh.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/Aamir1055/BrokerEye-sub005/internal/events"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/config"
)

// Message represents a bus event on the wire
type Message struct {
	Origin  string          `json:"origin"`
	Name    events.Name     `json:"name"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Publisher is the outbound side of a NATS connection
type Publisher interface {
	Publish(subject string, data []byte) error
}

type remoteKey struct{}

// Bridge forwards local events to NATS and republishes remote ones locally
type Bridge struct {
	conn   *nats.Conn
	pub    Publisher
	bus    events.Bus
	prefix string
	origin string
	logger *logrus.Entry

	mu     sync.Mutex
	sub    *nats.Subscription
	unsubs []func()
}

// NewBridge connects to NATS and creates a new bridge
func NewBridge(cfg *config.NATSConfig, bus events.Bus, logger *logrus.Logger) (*Bridge, error) {
	opts := []nats.Option{
		nats.Name("broker-eyes"),
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	b := newBridge(conn, bus, cfg.SubjectPrefix, logger)
	b.conn = conn
	return b, nil
}

func newBridge(pub Publisher, bus events.Bus, prefix string, logger *logrus.Logger) *Bridge {
	return &Bridge{
		pub:    pub,
		bus:    bus,
		prefix: strings.TrimSuffix(prefix, "."),
		origin: uuid.NewString(),
		logger: logger.WithField("component", "nats_bridge"),
	}
}

// Origin returns the id stamped on every message this bridge sends
func (b *Bridge) Origin() string {
	return b.origin
}

// Subject returns the NATS subject carrying name
func (b *Bridge) Subject(name events.Name) string {
	return b.prefix + "." + strings.ReplaceAll(string(name), ":", ".")
}

// Start subscribes to remote events and begins forwarding local ones
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		sub, err := b.conn.Subscribe(b.prefix+".>", b.handle)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s.>: %w", b.prefix, err)
		}
		b.sub = sub
	}

	for _, name := range events.Names {
		b.unsubs = append(b.unsubs, b.bus.Subscribe(name, b.forward))
	}

	b.logger.WithField("origin", b.origin).Info("NATS bridge started")
	return nil
}

// Close stops forwarding and closes the connection
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil

	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			b.logger.WithError(err).Warn("Failed to unsubscribe")
		}
		b.sub = nil
	}
	if b.conn != nil {
		if err := b.conn.Drain(); err != nil {
			b.conn.Close()
		}
	}
	return nil
}

// IsConnected checks if NATS is connected
func (b *Bridge) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// forward sends a locally published event to NATS. Events that arrived
// from NATS are not sent back.
func (b *Bridge) forward(ctx context.Context, ev events.Event) {
	if IsRemote(ctx) {
		return
	}

	data, err := b.encode(ev)
	if err != nil {
		b.logger.WithError(err).WithField("event", ev.Name).Error("Failed to encode event")
		return
	}
	if err := b.pub.Publish(b.Subject(ev.Name), data); err != nil {
		b.logger.WithError(err).WithField("event", ev.Name).Warn("Failed to publish event")
	}
}

func (b *Bridge) encode(ev events.Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return json.Marshal(Message{Origin: b.origin, Name: ev.Name, At: ev.At, Payload: payload})
}

// handle republishes a remote event on the local bus
func (b *Bridge) handle(msg *nats.Msg) {
	var m Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		b.logger.WithError(err).WithField("subject", msg.Subject).Warn("Dropping malformed message")
		return
	}
	if m.Origin == b.origin {
		return
	}

	payload, err := events.DecodePayload(m.Name, m.Payload)
	if err != nil {
		b.logger.WithError(err).WithField("subject", msg.Subject).Warn("Dropping unknown event")
		return
	}

	b.logger.WithFields(logrus.Fields{
		"event":  m.Name,
		"origin": m.Origin,
	}).Debug("Relaying remote event")

	ctx := context.WithValue(context.Background(), remoteKey{}, m.Origin)
	b.bus.Publish(ctx, events.Event{Name: m.Name, At: m.At, Payload: payload})
}

// IsRemote reports whether ctx belongs to an event relayed from another process
func IsRemote(ctx context.Context) bool {
	return ctx.Value(remoteKey{}) != nil
}
