package models

import "time"

// TokenPair represents the bearer credentials of a broker session
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// User represents the authenticated back-office user (persisted as user_data)
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// LoginRequest represents a broker login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult represents the data part of a login or 2FA verification response.
// When Requires2FA is set the tokens are empty and TempToken must be sent
// together with the one-time code to verify-2fa.
type LoginResult struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	User         *User  `json:"user,omitempty"`
	Requires2FA  bool   `json:"requires_2fa,omitempty"`
	TempToken    string `json:"temp_token,omitempty"`
}

// Tokens returns the token pair carried by the result
func (r *LoginResult) Tokens() TokenPair {
	return TokenPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

// VerifyTwoFARequest represents the second login step
type VerifyTwoFARequest struct {
	TempToken string `json:"temp_token"`
	Code      string `json:"code"`
}

// RefreshRequest represents the body of the token refresh exchange
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshResult represents the data part of a refresh response. RefreshToken
// is only present when the backend rotates it.
type RefreshResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TwoFASetup represents the secret material returned by 2fa/setup
type TwoFASetup struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
	QRCode     string `json:"qr_code,omitempty"`
}

// TwoFAStatus represents the 2FA state of the current user
type TwoFAStatus struct {
	Enabled              bool       `json:"enabled"`
	EnabledAt            *time.Time `json:"enabled_at,omitempty"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
}

// TwoFACodeRequest carries a one-time code for enable/disable
type TwoFACodeRequest struct {
	Code string `json:"code"`
}

// BackupCodes represents a freshly generated set of 2FA backup codes
type BackupCodes struct {
	Codes []string `json:"backup_codes"`
}
