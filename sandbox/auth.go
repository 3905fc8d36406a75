package sandbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/ports"
)

// Tokens is an issued access and refresh token pair
type Tokens struct {
	Access        string
	AccessExpiry  time.Time
	Refresh       string
	RefreshExpiry time.Time
}

// Credential is the client-facing part of the pair
func (t Tokens) Credential() core.AccessCredential {
	return core.AccessCredential{Token: t.Access, ExpiresAt: t.AccessExpiry.Unix()}
}

type loginCode struct {
	userID  string
	expires time.Time
}

// AuthService is the sandbox session authority. Refresh tokens rotate on
// every use and a rotated or logged out token stays revoked until it would
// have expired.
type AuthService struct {
	tokenizer ports.Tokenizer
	revoked   ports.RevocationStore
	accounts  *Accounts
	logger    *slog.Logger

	accessTTL  time.Duration
	refreshTTL time.Duration
	codeTTL    time.Duration
	now        func() time.Time

	mu    sync.Mutex
	codes map[string]loginCode
}

// NewAuthService creates a new authentication service
func NewAuthService(tokenizer ports.Tokenizer, revoked ports.RevocationStore, accounts *Accounts, logger *slog.Logger) *AuthService {
	return &AuthService{
		tokenizer:  tokenizer,
		revoked:    revoked,
		accounts:   accounts,
		logger:     logger,
		accessTTL:  5 * time.Minute,
		refreshTTL: 5 * 24 * time.Hour, // 5 days
		codeTTL:    5 * time.Minute,
		now:        time.Now,
		codes:      make(map[string]loginCode),
	}
}

// IssueLoginCode creates a one-time code standing in for an OAuth callback
func (s *AuthService) IssueLoginCode(userID string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate login code: %w", err)
	}
	code := hex.EncodeToString(b)

	s.accounts.Ensure(userID)
	s.mu.Lock()
	s.codes[code] = loginCode{userID: userID, expires: s.now().Add(s.codeTTL)}
	s.mu.Unlock()
	return code, nil
}

// ExchangeLoginCode redeems a login code for a fresh session
func (s *AuthService) ExchangeLoginCode(ctx context.Context, code string) (Tokens, core.NextStep, error) {
	s.mu.Lock()
	lc, ok := s.codes[code]
	delete(s.codes, code)
	s.mu.Unlock()

	if !ok || s.now().After(lc.expires) {
		return Tokens{}, "", core.ErrInvalidLoginCode
	}

	profile, _ := s.accounts.Get(lc.userID)
	tokens, err := s.issue(profile)
	if err != nil {
		return Tokens{}, "", err
	}
	return tokens, core.NextStepFor(&profile), nil
}

// Refresh rotates the refresh token and issues new access and refresh tokens
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	session, err := s.tokenizer.RefreshTokenToSession(refreshToken)
	if err != nil {
		return Tokens{}, err
	}
	if s.now().After(session.RefreshExpiry) {
		return Tokens{}, core.ErrTokenExpired
	}

	revoked, err := s.revoked.IsRevoked(ctx, session.RefreshID)
	if err != nil {
		return Tokens{}, fmt.Errorf("failed to check token revocation: %w", err)
	}
	if revoked {
		return Tokens{}, core.ErrTokenInvalidated
	}

	if err := s.revoked.Revoke(ctx, session.RefreshID, session.RefreshExpiry.Sub(s.now())); err != nil {
		return Tokens{}, fmt.Errorf("failed to revoke old token: %w", err)
	}

	profile, ok := s.accounts.Get(session.UserID)
	if !ok {
		return Tokens{}, core.ErrInvalidToken
	}
	return s.issue(profile)
}

// Logout revokes a refresh token. Expired tokens are revoked for an hour so
// they cannot be replayed against a skewed clock.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.tokenizer.RefreshTokenToSession(refreshToken)
	if err != nil {
		return err
	}

	remaining := session.RefreshExpiry.Sub(s.now())
	if remaining <= 0 {
		remaining = time.Hour
	}
	if err := s.revoked.Revoke(ctx, session.RefreshID, remaining); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	s.logger.Info("Session logged out", slog.String("user", session.UserID))
	return nil
}

// ValidateAccessToken checks an access token and the refresh token it was issued with
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Session, error) {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, err
	}
	if s.now().After(session.AccessExpiry) {
		return nil, core.ErrTokenExpired
	}

	if session.RefreshID != "" {
		revoked, err := s.revoked.IsRevoked(ctx, session.RefreshID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token revocation: %w", err)
		}
		if revoked {
			return nil, core.ErrTokenInvalidated
		}
	}
	return session, nil
}

// Me returns the profile behind a session
func (s *AuthService) Me(session *core.Session) (core.Profile, error) {
	p, ok := s.accounts.Get(session.UserID)
	if !ok {
		return core.Profile{}, core.ErrNotFound
	}
	return p, nil
}

// Reissue starts a new session for an account whose profile changed
func (s *AuthService) Reissue(userID string) (Tokens, error) {
	p, ok := s.accounts.Get(userID)
	if !ok {
		return Tokens{}, core.ErrNotFound
	}
	return s.issue(p)
}

func (s *AuthService) issue(p core.Profile) (Tokens, error) {
	now := s.now()
	session := &core.Session{
		ID:            uuid.New().String(),
		UserID:        p.UserID,
		Address:       p.Address,
		IssuedAt:      now,
		RefreshExpiry: now.Add(s.refreshTTL),
		AccessExpiry:  now.Add(s.accessTTL),
		RefreshID:     uuid.New().String(),
	}

	access, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return Tokens{}, fmt.Errorf("failed to create access token: %w", err)
	}
	refresh, err := s.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return Tokens{}, fmt.Errorf("failed to create refresh token: %w", err)
	}
	return Tokens{
		Access:        access,
		AccessExpiry:  session.AccessExpiry,
		Refresh:       refresh,
		RefreshExpiry: session.RefreshExpiry,
	}, nil
}
