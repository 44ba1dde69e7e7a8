package sandbox

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

// twoFAState tracks the 2FA enrollment of the sandbox user. Codes are fixed
// per enrollment and logged so the CLI can be exercised by hand.
type twoFAState struct {
	enabled     bool
	enabledAt   *time.Time
	secret      string
	code        string
	backupCodes map[string]bool
}

// generateToken generates a secure random token
func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func generateDigits(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

// issue creates a new token pair. Callers hold s.mu.
func (s *Server) issue() (models.TokenPair, error) {
	access, err := generateToken()
	if err != nil {
		return models.TokenPair{}, err
	}
	refresh, err := generateToken()
	if err != nil {
		return models.TokenPair{}, err
	}

	s.accessTokens[access] = s.now().Add(s.cfg.AccessTokenTTL)
	s.refreshTokens[refresh] = true
	return models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// authMiddleware validates the bearer token of protected endpoints
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearer(r)
		if token == "" {
			s.rejected.Add(1)
			fail(w, http.StatusUnauthorized, "Authorization token required", nil)
			return
		}

		s.mu.Lock()
		expiresAt, ok := s.accessTokens[token]
		s.mu.Unlock()

		if !ok {
			s.rejected.Add(1)
			fail(w, http.StatusUnauthorized, "Invalid token", nil)
			return
		}
		if !s.now().Before(expiresAt) {
			s.rejected.Add(1)
			fail(w, http.StatusUnauthorized, "Token expired", nil)
			return
		}

		next.ServeHTTP(w, r)
	}
}

// handleLogin handles broker login requests
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		fail(w, http.StatusUnprocessableEntity, "Validation failed", map[string][]string{
			"email": {"email and password are required"},
		})
		return
	}
	if !strings.EqualFold(req.Email, s.cfg.UserEmail) || req.Password != s.cfg.UserPassword {
		fail(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.twoFA.enabled {
		temp, err := generateToken()
		if err != nil {
			fail(w, http.StatusInternalServerError, "Failed to start 2FA", nil)
			return
		}
		s.pending2FA[temp] = s.now().Add(5 * time.Minute)
		success(w, models.LoginResult{Requires2FA: true, TempToken: temp}, "Two-factor code required")
		return
	}

	s.respondWithSession(w, "Login successful")
}

// respondWithSession issues tokens and writes the login result. Callers hold s.mu.
func (s *Server) respondWithSession(w http.ResponseWriter, message string) {
	pair, err := s.issue()
	if err != nil {
		fail(w, http.StatusInternalServerError, "Failed to create session", nil)
		return
	}
	user := s.user
	success(w, models.LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         &user,
	}, message)
}

// handleVerifyTwoFA completes a login with a one-time or backup code
func (s *Server) handleVerifyTwoFA(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyTwoFARequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.pending2FA[req.TempToken]
	if !ok || !s.now().Before(expiresAt) {
		delete(s.pending2FA, req.TempToken)
		fail(w, http.StatusUnauthorized, "Verification expired, log in again", nil)
		return
	}
	if !s.acceptCode(req.Code) {
		fail(w, http.StatusUnauthorized, "Invalid verification code", nil)
		return
	}

	delete(s.pending2FA, req.TempToken)
	s.respondWithSession(w, "Login successful")
}

// acceptCode checks a one-time code, consuming it when it is a backup code.
// Callers hold s.mu.
func (s *Server) acceptCode(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	if code == s.twoFA.code {
		return true
	}
	if s.twoFA.backupCodes[code] {
		delete(s.twoFA.backupCodes, code)
		return true
	}
	return false
}

// handleRefresh exchanges a refresh token for a new pair. Refresh tokens
// are single-use.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	var req models.RefreshRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.refreshTokens[req.RefreshToken] {
		fail(w, http.StatusUnauthorized, "Invalid refresh token", nil)
		return
	}
	delete(s.refreshTokens, req.RefreshToken)

	pair, err := s.issue()
	if err != nil {
		fail(w, http.StatusInternalServerError, "Failed to refresh session", nil)
		return
	}

	s.logger.Debug("Sandbox session refreshed")
	success(w, models.RefreshResult{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, "")
}

// handleLogout revokes the caller's access token and all refresh tokens
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)

	s.mu.Lock()
	delete(s.accessTokens, token)
	s.refreshTokens = make(map[string]bool)
	s.mu.Unlock()

	success(w, nil, "Logged out successfully")
}

func (s *Server) handleTwoFASetup(w http.ResponseWriter, r *http.Request) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		fail(w, http.StatusInternalServerError, "Failed to generate secret", nil)
		return
	}
	code, err := generateDigits(6)
	if err != nil {
		fail(w, http.StatusInternalServerError, "Failed to generate secret", nil)
		return
	}

	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	otpauth := fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		url.PathEscape("Broker Eyes"), url.PathEscape(s.user.Email), secret, url.QueryEscape("Broker Eyes"))

	s.mu.Lock()
	s.twoFA.secret = secret
	s.twoFA.code = code
	s.mu.Unlock()

	s.logger.WithField("code", code).Info("Sandbox 2FA code issued")
	success(w, models.TwoFASetup{Secret: secret, OTPAuthURL: otpauth}, "Scan the QR code and confirm with a code")
}

func (s *Server) handleTwoFAEnable(w http.ResponseWriter, r *http.Request) {
	var req models.TwoFACodeRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.twoFA.secret == "" {
		fail(w, http.StatusBadRequest, "Run 2FA setup first", nil)
		return
	}
	if strings.TrimSpace(req.Code) != s.twoFA.code {
		fail(w, http.StatusUnprocessableEntity, "Invalid verification code", map[string][]string{"code": {"does not match"}})
		return
	}

	codes, err := s.regenerateBackupCodes()
	if err != nil {
		fail(w, http.StatusInternalServerError, "Failed to generate backup codes", nil)
		return
	}
	now := s.now()
	s.twoFA.enabled = true
	s.twoFA.enabledAt = &now
	success(w, models.BackupCodes{Codes: codes}, "Two-factor authentication enabled")
}

func (s *Server) handleTwoFADisable(w http.ResponseWriter, r *http.Request) {
	var req models.TwoFACodeRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.twoFA.enabled {
		fail(w, http.StatusBadRequest, "Two-factor authentication is not enabled", nil)
		return
	}
	if !s.acceptCode(req.Code) {
		fail(w, http.StatusUnprocessableEntity, "Invalid verification code", map[string][]string{"code": {"does not match"}})
		return
	}
	s.twoFA = twoFAState{}
	success(w, nil, "Two-factor authentication disabled")
}

func (s *Server) handleTwoFAStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := models.TwoFAStatus{
		Enabled:              s.twoFA.enabled,
		EnabledAt:            s.twoFA.enabledAt,
		BackupCodesRemaining: len(s.twoFA.backupCodes),
	}
	s.mu.Unlock()
	success(w, status, "")
}

func (s *Server) handleBackupCodes(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.twoFA.enabled {
		fail(w, http.StatusBadRequest, "Two-factor authentication is not enabled", nil)
		return
	}
	codes, err := s.regenerateBackupCodes()
	if err != nil {
		fail(w, http.StatusInternalServerError, "Failed to generate backup codes", nil)
		return
	}
	success(w, models.BackupCodes{Codes: codes}, "")
}

// regenerateBackupCodes replaces the backup codes. Callers hold s.mu.
func (s *Server) regenerateBackupCodes() ([]string, error) {
	codes := make([]string, 0, 8)
	s.twoFA.backupCodes = make(map[string]bool, 8)
	for i := 0; i < 8; i++ {
		c, err := generateDigits(8)
		if err != nil {
			return nil, err
		}
		codes = append(codes, c)
		s.twoFA.backupCodes[c] = true
	}
	return codes, nil
}

// OneTimeCode returns the code accepted for the current 2FA enrollment
func (s *Server) OneTimeCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.twoFA.code
}
