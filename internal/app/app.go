package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Aamir1055/BrokerEye-sub005/internal/backend"
	"github.com/Aamir1055/BrokerEye-sub005/internal/events"
	"github.com/Aamir1055/BrokerEye-sub005/internal/httpclient"
	"github.com/Aamir1055/BrokerEye-sub005/internal/ibselect"
	"github.com/Aamir1055/BrokerEye-sub005/internal/messaging"
	"github.com/Aamir1055/BrokerEye-sub005/internal/session"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/config"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/logger"
)

// App represents the wired client: session store, notification bus, HTTP
// core, backend facade and IB selection
type App struct {
	cfg    *config.Config
	logger *logrus.Logger

	onLogout func(loginURL string)

	// Core components
	store   session.Store
	redis   *session.RedisStore
	session *session.Session
	bus     *events.LocalBus
	bridge  *messaging.Bridge

	// HTTP
	coord   *httpclient.Coordinator
	general *httpclient.Client
	ib      *httpclient.Client

	// Services
	api      *backend.API
	selector *ibselect.Selector
}

// Option configures an App
type Option func(*App)

// WithLogoutHook sets the function called when the session is terminated
// because it could not be refreshed
func WithLogoutHook(fn func(loginURL string)) Option {
	return func(a *App) {
		a.onLogout = fn
	}
}

// WithStore replaces the configured session store
func WithStore(store session.Store) Option {
	return func(a *App) {
		a.store = store
	}
}

// New creates a new application instance
func New(cfg *config.Config, logger *logrus.Logger, opts ...Option) *App {
	a := &App{
		cfg:    cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Initialize initializes all application components
func (a *App) Initialize(ctx context.Context) error {
	if err := a.initializeSession(); err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}

	if err := a.initializeMessaging(); err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}

	if err := a.initializeClients(ctx); err != nil {
		return fmt.Errorf("failed to initialize HTTP clients: %w", err)
	}

	a.api = backend.New(a.general, a.ib, a.coord, a.session, a.bus, a.logger)
	a.selector = ibselect.New(a.api, a.session, a.bus, a.logger)

	a.logger.WithFields(logrus.Fields{
		"api":     a.cfg.API.BaseURL,
		"ib_api":  a.cfg.API.IBBaseURL,
		"session": a.cfg.Session.Backend,
	}).Debug("Application initialized")
	return nil
}

func (a *App) initializeSession() error {
	if a.store == nil {
		switch a.cfg.Session.Backend {
		case config.SessionBackendMemory:
			a.store = session.NewMemoryStore()
		case config.SessionBackendRedis:
			rs, err := session.NewRedisStore(&a.cfg.Redis, &a.cfg.Session, a.logger)
			if err != nil {
				return err
			}
			a.redis = rs
			a.store = rs
		default:
			a.store = session.NewFileStore(a.cfg.Session.Path)
		}
	}

	a.session = session.New(a.store)
	return nil
}

func (a *App) initializeMessaging() error {
	a.bus = events.NewLocalBus(a.logger)
	if !a.cfg.NATS.Enabled {
		return nil
	}

	bridge, err := messaging.NewBridge(&a.cfg.NATS, a.bus, a.logger)
	if err != nil {
		return err
	}
	a.bridge = bridge
	return nil
}

func (a *App) initializeClients(ctx context.Context) error {
	transport := logger.Transport(a.logger, http.DefaultTransport)
	api := a.cfg.API

	coordOpts := []httpclient.CoordinatorOption{
		httpclient.WithRefreshTimeout(api.RefreshTimeout),
		httpclient.WithLoginURL(api.LoginURL),
		httpclient.WithRawHTTPClient(&http.Client{Transport: transport, Timeout: api.RefreshTimeout}),
	}
	if a.onLogout != nil {
		coordOpts = append(coordOpts, httpclient.WithLogoutHook(a.onLogout))
	}
	a.coord = httpclient.NewCoordinator(api.BaseURL, a.session, a.bus, a.logger, coordOpts...)

	clientOpts := []httpclient.Option{
		httpclient.WithHTTPClient(&http.Client{Transport: transport}),
		httpclient.WithTimeout(api.Timeout),
	}
	if api.RateLimit > 0 {
		clientOpts = append(clientOpts, httpclient.WithRateLimit(api.RateLimit, api.RateBurst))
	}

	a.general = httpclient.New(api.BaseURL, a.coord, a.logger, clientOpts...)
	a.ib = a.general
	if api.IBBaseURL != api.BaseURL {
		a.ib = httpclient.New(api.IBBaseURL, a.coord, a.logger, clientOpts...)
	}
	a.coord.Attach(a.general)

	return a.coord.Load(ctx)
}

// Start starts the NATS bridge and the IB selector
func (a *App) Start(ctx context.Context) error {
	if a.bridge != nil {
		if err := a.bridge.Start(ctx); err != nil {
			return fmt.Errorf("failed to start NATS bridge: %w", err)
		}
	}

	if err := a.selector.Start(ctx); err != nil {
		return fmt.Errorf("failed to start IB selector: %w", err)
	}
	return nil
}

// Stop releases subscriptions and connections
func (a *App) Stop() error {
	if a.selector != nil {
		a.selector.Stop()
	}

	if a.bridge != nil {
		if err := a.bridge.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing NATS bridge")
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing Redis")
		}
	}
	return nil
}

// Config returns the application configuration
func (a *App) Config() *config.Config {
	return a.cfg
}

// API returns the backend facade
func (a *App) API() *backend.API {
	return a.api
}

// Selector returns the IB selection context
func (a *App) Selector() *ibselect.Selector {
	return a.selector
}

// Session returns the persisted session
func (a *App) Session() *session.Session {
	return a.session
}

// Bus returns the notification bus
func (a *App) Bus() events.Bus {
	return a.bus
}

// Coordinator returns the shared token refresh coordinator
func (a *App) Coordinator() *httpclient.Coordinator {
	return a.coord
}
