package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/talentbridge/trustlayer/adapters/tokenizer"
	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/internal/obs"
	"github.com/talentbridge/trustlayer/ports"
)

const (
	DefaultGraceWindow    = 10 * time.Second
	DefaultRefreshTimeout = 15 * time.Second
)

// TokenManager owns the access credential. It is the only writer of the
// credential store and collapses concurrent refreshes into one network call.
type TokenManager struct {
	store  ports.CredentialStore
	auth   ports.AuthService
	logger *slog.Logger

	grace          time.Duration
	refreshTimeout time.Duration
	scope          string
	now            func() time.Time

	flight singleflight.Group
}

// TokenOption configures a TokenManager
type TokenOption func(*TokenManager)

// WithGraceWindow sets how early before expiry a token counts as expired
func WithGraceWindow(d time.Duration) TokenOption {
	return func(m *TokenManager) { m.grace = d }
}

// WithRefreshTimeout bounds a single refresh call
func WithRefreshTimeout(d time.Duration) TokenOption {
	return func(m *TokenManager) { m.refreshTimeout = d }
}

// WithScope names the credential scope refreshes are collapsed under
func WithScope(scope string) TokenOption {
	return func(m *TokenManager) { m.scope = scope }
}

// WithTokenClock replaces time.Now
func WithTokenClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) { m.now = now }
}

// WithTokenLogger sets the logger
func WithTokenLogger(l *slog.Logger) TokenOption {
	return func(m *TokenManager) { m.logger = l }
}

// NewTokenManager creates a token manager over store and auth
func NewTokenManager(store ports.CredentialStore, auth ports.AuthService, opts ...TokenOption) *TokenManager {
	m := &TokenManager{
		store:          store,
		auth:           auth,
		logger:         slog.Default(),
		grace:          DefaultGraceWindow,
		refreshTimeout: DefaultRefreshTimeout,
		scope:          "default",
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ ports.TokenSource = (*TokenManager)(nil)

// GetValidAccessToken returns the stored credential while it is outside the
// grace window. Otherwise it refreshes once; a failed refresh clears the store.
func (m *TokenManager) GetValidAccessToken(ctx context.Context) (core.AccessCredential, bool) {
	if cred, ok := m.current(ctx); ok && !cred.Expired(m.now(), m.grace) {
		return cred, true
	}

	cred, err := m.refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.clear(ctx)
		}
		return core.AccessCredential{}, false
	}
	return cred, true
}

// RefreshOnce exchanges the refresh session for a new credential. It reports
// false on any failure and never returns an error.
func (m *TokenManager) RefreshOnce(ctx context.Context) bool {
	_, err := m.refresh(ctx)
	return err == nil
}

// SaveCredential validates and stores a credential
func (m *TokenManager) SaveCredential(ctx context.Context, cred core.AccessCredential) error {
	if err := cred.Validate(m.now()); err != nil {
		return err
	}
	if err := m.store.Save(ctx, cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// ClearCredential removes the stored credential
func (m *TokenManager) ClearCredential(ctx context.Context) error {
	return m.store.Clear(ctx)
}

// ExchangeLoginCode trades a one-time login code for a credential. A response
// without an expiry falls back to the token's exp claim.
func (m *TokenManager) ExchangeLoginCode(ctx context.Context, code string) (core.LoginResult, error) {
	if code == "" {
		return core.LoginResult{}, core.ErrInvalidLoginCode
	}

	cred, next, err := m.auth.ExchangeLoginCode(ctx, code)
	if err != nil {
		return core.LoginResult{}, fmt.Errorf("login code exchange failed: %w", err)
	}
	if cred.ExpiresAt == 0 {
		if claims, err := tokenizer.DecodeUnverified(cred.Token); err == nil {
			cred.ExpiresAt = claims.ExpiresAt
		}
	}
	if err := m.SaveCredential(ctx, cred); err != nil {
		return core.LoginResult{}, err
	}

	if next == "" {
		next = m.nextStepFor(ctx, cred)
	}
	return core.LoginResult{Credential: cred, NextStep: next}, nil
}

// DetectNextStep refreshes the session and derives where the user should go.
// An unrecoverable session yields NextStepUnauthenticated.
func (m *TokenManager) DetectNextStep(ctx context.Context) core.NextStep {
	cred, err := m.refresh(ctx)
	if err != nil {
		return core.NextStepUnauthenticated
	}
	return m.nextStepFor(ctx, cred)
}

// Logout ends the server session best-effort and always clears local state
func (m *TokenManager) Logout(ctx context.Context) error {
	if err := m.auth.Logout(ctx); err != nil {
		m.logger.Warn("Server logout failed", slog.String("error", err.Error()))
	}
	return m.store.Clear(ctx)
}

// CurrentAccountID reads the account id from the current access token
func (m *TokenManager) CurrentAccountID(ctx context.Context) (string, bool) {
	cred, ok := m.GetValidAccessToken(ctx)
	if !ok {
		return "", false
	}
	claims, err := tokenizer.DecodeUnverified(cred.Token)
	if err != nil {
		return "", false
	}
	id := claims.AccountID()
	return id, id != ""
}

func (m *TokenManager) nextStepFor(ctx context.Context, cred core.AccessCredential) core.NextStep {
	profile, err := m.auth.Me(ctx, cred.Token)
	if err != nil {
		m.logger.Warn("Failed to fetch profile", slog.String("error", err.Error()))
		profile = nil
	}
	return core.NextStepFor(profile)
}

func (m *TokenManager) current(ctx context.Context) (core.AccessCredential, bool) {
	cred, ok, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("Failed to read credential", slog.String("error", err.Error()))
		return core.AccessCredential{}, false
	}
	return cred, ok
}

// refresh runs at most one refresh per scope. Callers that arrive while one
// is in flight wait for it and observe its outcome. The refresh itself is
// detached from any single caller's cancellation.
func (m *TokenManager) refresh(ctx context.Context) (core.AccessCredential, error) {
	ch := m.flight.DoChan(m.scope, func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()

		cred, err := m.auth.Refresh(rctx)
		if err == nil {
			err = m.SaveCredential(rctx, cred)
		}
		if err != nil {
			obs.RefreshTotal.WithLabelValues("failure").Inc()
			m.logger.Info("Access token refresh failed", slog.String("scope", m.scope), slog.String("error", err.Error()))
			return nil, err
		}

		obs.RefreshTotal.WithLabelValues("success").Inc()
		m.logger.Debug("Access token refreshed", slog.String("scope", m.scope), slog.Int64("expires_at", cred.ExpiresAt))
		return cred, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			obs.RefreshShared.Inc()
		}
		if res.Err != nil {
			return core.AccessCredential{}, res.Err
		}
		return res.Val.(core.AccessCredential), nil
	case <-ctx.Done():
		return core.AccessCredential{}, ctx.Err()
	}
}

func (m *TokenManager) clear(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("Failed to clear credential", slog.String("error", err.Error()))
	}
}
