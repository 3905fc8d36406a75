package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/ports"
)

// AuthClient talks to the session authority
type AuthClient struct {
	c *Client
}

var _ ports.AuthService = (*AuthClient)(nil)

func NewAuthClient(c *Client) *AuthClient {
	return &AuthClient{c: c}
}

// TokenResponse is the credential body returned by login, refresh and binding
type TokenResponse struct {
	AccessToken string        `json:"accessToken"`
	AccessExp   int64         `json:"accessExp,omitempty"`
	NextStep    core.NextStep `json:"nextStep,omitempty"`
}

func (r TokenResponse) credential() core.AccessCredential {
	return core.AccessCredential{Token: r.AccessToken, ExpiresAt: r.AccessExp}
}

// Refresh posts the session cookie. A body without token or expiry is a failure.
func (a *AuthClient) Refresh(ctx context.Context) (core.AccessCredential, error) {
	var resp TokenResponse
	if err := a.c.do(ctx, request{method: http.MethodPost, path: "/api/auth/refresh"}, &resp); err != nil {
		return core.AccessCredential{}, serviceError(err)
	}
	if resp.AccessToken == "" || resp.AccessExp == 0 {
		return core.AccessCredential{}, core.ErrInvalidCredential
	}
	return resp.credential(), nil
}

func (a *AuthClient) ExchangeLoginCode(ctx context.Context, code string) (core.AccessCredential, core.NextStep, error) {
	var resp TokenResponse
	err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/callback",
		body:   map[string]string{"code": code},
	}, &resp)
	if err != nil {
		return core.AccessCredential{}, "", serviceError(err)
	}
	if resp.AccessToken == "" {
		return core.AccessCredential{}, "", core.ErrInvalidCredential
	}
	return resp.credential(), resp.NextStep, nil
}

// meResponse accepts the flags at the top level or under status
type meResponse struct {
	core.Profile
	KYC    *bool `json:"kyc"`
	DID    *bool `json:"did"`
	Status *struct {
		KYC bool `json:"kyc"`
		DID bool `json:"did"`
	} `json:"status"`
}

// Me fetches the profile with an explicit token, bypassing the token source
func (a *AuthClient) Me(ctx context.Context, accessToken string) (*core.Profile, error) {
	var resp meResponse
	err := a.c.doWithToken(ctx, request{method: http.MethodGet, path: "/api/auth/me"}, accessToken, &resp)
	if err != nil {
		var he *HTTPError
		if errors.As(err, &he) && he.Status == http.StatusNotFound {
			return nil, core.ErrNotFound
		}
		return nil, serviceError(err)
	}

	p := resp.Profile
	if resp.Status != nil {
		p.KYCComplete, p.DIDComplete = resp.Status.KYC, resp.Status.DID
	}
	if resp.KYC != nil {
		p.KYCComplete = *resp.KYC
	}
	if resp.DID != nil {
		p.DIDComplete = *resp.DID
	}
	return &p, nil
}

func (a *AuthClient) Logout(ctx context.Context) error {
	return serviceError(a.c.do(ctx, request{method: http.MethodPost, path: "/api/auth/logout"}, nil))
}
