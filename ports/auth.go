package ports

import (
	"context"

	"github.com/talentbridge/trustlayer/core"
)

// AuthService is the remote session authority
type AuthService interface {
	// Refresh exchanges the session-bound refresh credential for a new access credential
	Refresh(ctx context.Context) (core.AccessCredential, error)
	ExchangeLoginCode(ctx context.Context, code string) (core.AccessCredential, core.NextStep, error)
	Me(ctx context.Context, accessToken string) (*core.Profile, error)
	Logout(ctx context.Context) error
}

// TokenSource hands out a currently valid access credential
type TokenSource interface {
	GetValidAccessToken(ctx context.Context) (core.AccessCredential, bool)
	// RefreshOnce forces a refresh and reports whether it succeeded
	RefreshOnce(ctx context.Context) bool
}
