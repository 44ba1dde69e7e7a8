package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Aamir1055/BrokerEye-sub005/pkg/models"
)

// Persisted keys
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserData     = "user_data"
	KeySelectedIB   = "selectedIB"
)

// AllKeys lists every key owned by a session
var AllKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUserData, KeySelectedIB}

// Session is a typed view over a Store with the session lifecycle:
// created on login, updated on refresh, cleared on logout
type Session struct {
	store Store
}

// New wraps store
func New(store Store) *Session {
	return &Session{store: store}
}

// Store returns the underlying store
func (s *Session) Store() Store {
	return s.store
}

// Tokens returns the stored token pair. Missing tokens are returned empty.
func (s *Session) Tokens(ctx context.Context) (models.TokenPair, error) {
	var pair models.TokenPair
	var err error

	if pair.AccessToken, err = s.optional(ctx, KeyAccessToken); err != nil {
		return pair, err
	}
	if pair.RefreshToken, err = s.optional(ctx, KeyRefreshToken); err != nil {
		return pair, err
	}
	return pair, nil
}

// RefreshToken returns the stored refresh token or "" when absent
func (s *Session) RefreshToken(ctx context.Context) (string, error) {
	return s.optional(ctx, KeyRefreshToken)
}

// HasSession reports whether a refresh or access token is stored
func (s *Session) HasSession(ctx context.Context) bool {
	pair, err := s.Tokens(ctx)
	return err == nil && (pair.AccessToken != "" || pair.RefreshToken != "")
}

// SaveTokens stores both tokens. An empty refresh token keeps the stored one.
func (s *Session) SaveTokens(ctx context.Context, pair models.TokenPair) error {
	if err := s.store.Set(ctx, KeyAccessToken, pair.AccessToken); err != nil {
		return err
	}
	if pair.RefreshToken == "" {
		return nil
	}
	return s.store.Set(ctx, KeyRefreshToken, pair.RefreshToken)
}

// ReplaceTokens stores pair as the whole credential set. Unlike SaveTokens an
// empty refresh token removes the stored one.
func (s *Session) ReplaceTokens(ctx context.Context, pair models.TokenPair) error {
	if err := s.store.Set(ctx, KeyAccessToken, pair.AccessToken); err != nil {
		return err
	}
	if pair.RefreshToken == "" {
		return s.store.Delete(ctx, KeyRefreshToken)
	}
	return s.store.Set(ctx, KeyRefreshToken, pair.RefreshToken)
}

// SetAccessToken replaces the access token only
func (s *Session) SetAccessToken(ctx context.Context, token string) error {
	return s.store.Set(ctx, KeyAccessToken, token)
}

// User returns the stored user or nil
func (s *Session) User(ctx context.Context) (*models.User, error) {
	var u models.User
	ok, err := s.getJSON(ctx, KeyUserData, &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

// SaveUser stores user as user_data
func (s *Session) SaveUser(ctx context.Context, u *models.User) error {
	return s.setJSON(ctx, KeyUserData, u)
}

// SelectedIB returns the persisted IB selection or nil
func (s *Session) SelectedIB(ctx context.Context) (*models.IB, error) {
	var ib models.IB
	ok, err := s.getJSON(ctx, KeySelectedIB, &ib)
	if err != nil || !ok {
		return nil, err
	}
	return &ib, nil
}

// SaveSelectedIB persists ib; nil clears the selection
func (s *Session) SaveSelectedIB(ctx context.Context, ib *models.IB) error {
	if ib == nil {
		return s.ClearSelectedIB(ctx)
	}
	return s.setJSON(ctx, KeySelectedIB, ib)
}

// ClearSelectedIB removes the persisted IB selection
func (s *Session) ClearSelectedIB(ctx context.Context) error {
	return s.store.Delete(ctx, KeySelectedIB)
}

// Clear deletes every session key
func (s *Session) Clear(ctx context.Context) error {
	return s.store.Delete(ctx, AllKeys...)
}

func (s *Session) optional(ctx context.Context, key string) (string, error) {
	v, err := s.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

func (s *Session) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := s.optional(ctx, key)
	if err != nil || raw == "" {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Session) setJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.store.Set(ctx, key, string(raw))
}
