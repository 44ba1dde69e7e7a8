// Package sandbox implements an in-memory broker back office speaking the
// same REST surface and envelope as the real backend. It backs the
// `broker-eyes sandbox` command and end-to-end tests.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Aamir1055/BrokerEye-sub005/pkg/config"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/logger"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

// Server represents the sandbox HTTP server
type Server struct {
	cfg        *config.SandboxConfig
	logger     *logrus.Logger
	router     *mux.Router
	httpServer *http.Server
	now        func() time.Time

	mu            sync.Mutex
	user          models.User
	accessTokens  map[string]time.Time
	refreshTokens map[string]bool
	pending2FA    map[string]time.Time
	twoFA         twoFAState
	ibs           []*ib
	accounts      map[int64]*account
	rules         []models.Rule
	nextDeal      int64

	refreshCalls atomic.Int64
	rejected     atomic.Int64
}

// NewServer creates a new sandbox server with seeded data
func NewServer(cfg *config.SandboxConfig, logger *logrus.Logger) *Server {
	now := time.Now()
	s := &Server{
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
		user:          models.User{ID: 1, Email: cfg.UserEmail, Name: "Sandbox Admin", Role: "admin"},
		accessTokens:  make(map[string]time.Time),
		refreshTokens: make(map[string]bool),
		pending2FA:    make(map[string]time.Time),
		ibs:           seedIBs(now),
		rules:         seedRules(),
		nextDeal:      1,
	}
	s.accounts = seedAccounts(s.ibs, now)
	s.setupRoutes()
	return s
}

// setupRoutes configures all sandbox routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.Use(logger.Middleware(s.logger))
	s.router.Use(s.recoveryMiddleware)
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusNotFound, "Not found", nil)
	})

	api := s.router.PathPrefix("/api").Subrouter()

	// Authentication endpoints
	api.HandleFunc("/auth/broker/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/auth/broker/verify-2fa", s.handleVerifyTwoFA).Methods("POST")
	api.HandleFunc("/auth/broker/refresh", s.handleRefresh).Methods("POST")
	api.HandleFunc("/auth/logout", s.handleLogout).Methods("POST")

	// 2FA management
	api.HandleFunc("/auth/broker/2fa/setup", s.authMiddleware(s.handleTwoFASetup)).Methods("POST")
	api.HandleFunc("/auth/broker/2fa/enable", s.authMiddleware(s.handleTwoFAEnable)).Methods("POST")
	api.HandleFunc("/auth/broker/2fa/disable", s.authMiddleware(s.handleTwoFADisable)).Methods("POST")
	api.HandleFunc("/auth/broker/2fa/status", s.authMiddleware(s.handleTwoFAStatus)).Methods("GET")
	api.HandleFunc("/auth/broker/2fa/backup-codes", s.authMiddleware(s.handleBackupCodes)).Methods("POST")

	// Broker endpoints
	broker := api.PathPrefix("/broker").Subrouter()
	broker.HandleFunc("/clients", s.authMiddleware(s.handleListClients)).Methods("GET")
	broker.HandleFunc("/clients/search", s.authMiddleware(s.handleSearchClients)).Methods("POST")
	broker.HandleFunc("/clients/fields", s.authMiddleware(s.handleClientFields)).Methods("GET")
	broker.HandleFunc("/clients/percentages", s.authMiddleware(s.handleClientPercentages)).Methods("GET")
	broker.HandleFunc("/clients/{login:[0-9]+}/deals", s.authMiddleware(s.handleDeals)).Methods("GET", "POST")
	broker.HandleFunc("/clients/{login:[0-9]+}/deals/stats", s.authMiddleware(s.handleDealStats)).Methods("GET")
	broker.HandleFunc("/clients/{login:[0-9]+}/positions", s.authMiddleware(s.handlePositions)).Methods("GET")
	broker.HandleFunc("/clients/{login:[0-9]+}/{op:deposit|withdrawal|credit-in|credit-out}", s.authMiddleware(s.handleBalance)).Methods("POST")
	broker.HandleFunc("/clients/{login:[0-9]+}/percentage", s.authMiddleware(s.handleGetClientPercentage)).Methods("GET")
	broker.HandleFunc("/clients/{login:[0-9]+}/percentage", s.authMiddleware(s.handleSetClientPercentage)).Methods("POST")
	broker.HandleFunc("/clients/{login:[0-9]+}/rules", s.authMiddleware(s.handleClientRules)).Methods("GET")
	broker.HandleFunc("/clients/{login:[0-9]+}/rules", s.authMiddleware(s.handleAddClientRule)).Methods("POST")
	broker.HandleFunc("/clients/{login:[0-9]+}/rules/{code}", s.authMiddleware(s.handleDeleteClientRule)).Methods("DELETE")
	broker.HandleFunc("/rules", s.authMiddleware(s.handleRules)).Methods("GET")

	// IB endpoints
	ibAPI := api.PathPrefix("/amari/ib").Subrouter()
	ibAPI.HandleFunc("/commissions", s.authMiddleware(s.handleListCommissions)).Methods("GET")
	ibAPI.HandleFunc("/commissions/total", s.authMiddleware(s.handleCommissionTotals)).Methods("GET")
	ibAPI.HandleFunc("/commissions/percentage/bulk", s.authMiddleware(s.handleBulkPercentage)).Methods("POST")
	ibAPI.HandleFunc("/commissions/{id:[0-9]+}/percentage", s.authMiddleware(s.handleGetCommissionPercentage)).Methods("GET")
	ibAPI.HandleFunc("/commissions/{id:[0-9]+}/percentage", s.authMiddleware(s.handleUpdateCommissionPercentage)).Methods("PUT")
	ibAPI.HandleFunc("/emails", s.authMiddleware(s.handleIBEmails)).Methods("GET")
	ibAPI.HandleFunc("/mt5-accounts", s.authMiddleware(s.handleMT5Accounts)).Methods("GET")
	ibAPI.HandleFunc("/{email}/mt5-accounts", s.authMiddleware(s.handleMT5Accounts)).Methods("GET")
}

// Handler returns the sandbox routes wrapped in CORS handling
func (s *Server) Handler() http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "X-Request-ID"}),
	)(s.router)
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.WithFields(logrus.Fields{
		"address":    addr,
		"user_email": s.cfg.UserEmail,
		"token_ttl":  s.cfg.AccessTokenTTL,
	}).Info("Starting sandbox backend")

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		if strings.Contains(err.Error(), "address already in use") {
			return fmt.Errorf("port %d is already in use, pick another one with --port", s.cfg.Port)
		}
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Stopping sandbox backend")
	return s.httpServer.Shutdown(ctx)
}

// RefreshCalls returns how many refresh exchanges were received
func (s *Server) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

// Rejected returns how many requests were refused with 401
func (s *Server) Rejected() int64 {
	return s.rejected.Load()
}

// ExpireAccessTokens makes every issued access token expired
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()

	past := s.now().Add(-time.Second)
	for token := range s.accessTokens {
		s.accessTokens[token] = past
	}
}

// RevokeRefreshTokens invalidates every issued refresh token
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens = make(map[string]bool)
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.WithFields(logrus.Fields{
					"error": err,
					"path":  r.URL.Path,
				}).Error("Panic recovered")
				fail(w, http.StatusInternalServerError, "Internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Response helpers

func writeJSON(w http.ResponseWriter, code int, env models.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(env)
}

func success(w http.ResponseWriter, data any, message string) {
	raw, err := json.Marshal(data)
	if err != nil {
		fail(w, http.StatusInternalServerError, "Failed to encode response", nil)
		return
	}
	writeJSON(w, http.StatusOK, models.Envelope{Status: models.StatusSuccess, Data: raw, Message: message})
}

func fail(w http.ResponseWriter, code int, message string, errs map[string][]string) {
	writeJSON(w, code, models.Envelope{Status: "error", Message: message, Errors: errs})
}

func decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body", nil)
		return false
	}
	return true
}
