package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Aamir1055/BrokerEye-sub005/internal/events"
	"github.com/Aamir1055/BrokerEye-sub005/internal/httpclient"
	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

// ErrTwoFARequired is returned by Login callers that cannot continue with a
// one-time code
var ErrTwoFARequired = errors.New("two-factor verification required")

// Login authenticates with email and password. When the account has 2FA
// enabled the returned result has Requires2FA set and nothing is persisted
// until VerifyTwoFA succeeds.
func (a *API) Login(ctx context.Context, email, password string) (*models.LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, invalid("email", "is required")
	}
	if password == "" {
		return nil, invalid("password", "is required")
	}

	result, err := call[models.LoginResult](ctx, a.general, http.MethodPost, PathLogin,
		models.LoginRequest{Email: email, Password: password}, httpclient.NoRefresh())
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	if result.Requires2FA {
		a.logger.WithField("email", email).Info("Login requires two-factor verification")
		return &result, nil
	}
	if err := a.establish(ctx, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// VerifyTwoFA completes a login that required a one-time code
func (a *API) VerifyTwoFA(ctx context.Context, tempToken, code string) (*models.LoginResult, error) {
	code = strings.TrimSpace(code)
	if tempToken == "" {
		return nil, invalid("temp_token", "is required")
	}
	if code == "" {
		return nil, invalid("code", "is required")
	}

	result, err := call[models.LoginResult](ctx, a.general, http.MethodPost, PathVerifyTwoFA,
		models.VerifyTwoFARequest{TempToken: tempToken, Code: code}, httpclient.NoRefresh())
	if err != nil {
		return nil, fmt.Errorf("2FA verification failed: %w", err)
	}
	if err := a.establish(ctx, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// establish persists a freshly issued session and announces it
func (a *API) establish(ctx context.Context, result *models.LoginResult) error {
	if result.AccessToken == "" {
		return fmt.Errorf("login response carries no access token")
	}
	if err := a.auth.SetTokens(ctx, result.Tokens()); err != nil {
		return err
	}
	if result.User != nil {
		if err := a.session.SaveUser(ctx, result.User); err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
	}

	a.bus.Publish(ctx, events.Event{
		Name:    events.Login,
		Payload: events.LoginPayload{User: result.User},
	})

	entry := a.logger
	if result.User != nil {
		entry = entry.WithField("email", result.User.Email)
	}
	entry.Info("Logged in")
	return nil
}

// Logout notifies the backend and clears the local session. The server call
// is best-effort: the local session is cleared even when it fails.
func (a *API) Logout(ctx context.Context) error {
	_, err := exec(ctx, a.general, http.MethodPost, PathLogout, nil, httpclient.NoRefresh())
	if err != nil {
		a.logger.WithError(err).Warn("Server logout failed, clearing local session anyway")
	}
	a.auth.Logout(ctx, "user logout")
	return nil
}

// CurrentUser returns the persisted user of the current session
func (a *API) CurrentUser(ctx context.Context) (*models.User, error) {
	return a.session.User(ctx)
}

// TwoFASetup starts 2FA enrollment and returns the secret material
func (a *API) TwoFASetup(ctx context.Context) (*models.TwoFASetup, error) {
	setup, err := call[models.TwoFASetup](ctx, a.general, http.MethodPost, PathTwoFASetup, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to set up 2FA: %w", err)
	}
	return &setup, nil
}

// TwoFAEnable confirms enrollment with a one-time code
func (a *API) TwoFAEnable(ctx context.Context, code string) (*models.BackupCodes, error) {
	if err := validateCode(code); err != nil {
		return nil, err
	}
	codes, err := call[models.BackupCodes](ctx, a.general, http.MethodPost, PathTwoFAEnable,
		models.TwoFACodeRequest{Code: strings.TrimSpace(code)})
	if err != nil {
		return nil, fmt.Errorf("failed to enable 2FA: %w", err)
	}
	return &codes, nil
}

// TwoFADisable turns 2FA off; a valid one-time code is required
func (a *API) TwoFADisable(ctx context.Context, code string) error {
	if err := validateCode(code); err != nil {
		return err
	}
	if _, err := exec(ctx, a.general, http.MethodPost, PathTwoFADisable,
		models.TwoFACodeRequest{Code: strings.TrimSpace(code)}); err != nil {
		return fmt.Errorf("failed to disable 2FA: %w", err)
	}
	return nil
}

// TwoFAStatus reports whether 2FA is enabled for the current user
func (a *API) TwoFAStatus(ctx context.Context) (*models.TwoFAStatus, error) {
	status, err := call[models.TwoFAStatus](ctx, a.general, http.MethodGet, PathTwoFAStatus, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get 2FA status: %w", err)
	}
	return &status, nil
}

// RegenerateBackupCodes replaces the backup codes of the current user
func (a *API) RegenerateBackupCodes(ctx context.Context) (*models.BackupCodes, error) {
	codes, err := call[models.BackupCodes](ctx, a.general, http.MethodPost, PathBackupCodes, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to regenerate backup codes: %w", err)
	}
	return &codes, nil
}

func validateCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return invalid("code", "is required")
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return invalid("code", "must contain digits only")
		}
	}
	return nil
}
