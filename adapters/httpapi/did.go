package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/ports"
)

// DIDClient talks to the DID verification service
type DIDClient struct {
	c *Client
}

var (
	_ ports.DIDVerifier       = (*DIDClient)(nil)
	_ ports.IdentityRegistrar = (*DIDClient)(nil)
)

func NewDIDClient(c *Client) *DIDClient {
	return &DIDClient{c: c}
}

type nonceResponse struct {
	Nonce     string `json:"nonce"`
	ExpiresIn int64  `json:"expiresIn"`
}

func (d *DIDClient) IssueNonce(ctx context.Context, address string) (core.NonceGrant, error) {
	var resp nonceResponse
	err := d.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/did/nonce",
		body:   map[string]string{"address": address},
	}, &resp)
	if err != nil {
		return core.NonceGrant{}, serviceError(err)
	}
	return core.NonceGrant{Nonce: resp.Nonce, ExpiresIn: time.Duration(resp.ExpiresIn) * time.Second}, nil
}

func (d *DIDClient) BindWallet(ctx context.Context, b core.WalletBinding) (*core.AccessCredential, error) {
	var resp TokenResponse
	err := d.c.do(ctx, request{method: http.MethodPost, path: "/api/did/verify", body: b, auth: true}, &resp)
	if err != nil {
		return nil, serviceError(err)
	}
	if resp.AccessToken == "" {
		return nil, nil
	}
	cred := resp.credential()
	return &cred, nil
}

func (d *DIDClient) MarkVerified(ctx context.Context, did string) error {
	return serviceError(d.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/did/verified",
		body:   map[string]string{"did": did},
		auth:   true,
	}, nil))
}

func (d *DIDClient) Status(ctx context.Context, holder string) (core.IdentityStatus, error) {
	var resp core.IdentityStatus
	err := d.c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/did/status",
		query:  url.Values{"holder": {holder}},
	}, &resp)
	var he *HTTPError
	if errors.As(err, &he) && he.Status == http.StatusNotFound {
		return core.IdentityStatus{}, core.ErrIdentityNotFound
	}
	if err != nil {
		return core.IdentityStatus{}, serviceError(err)
	}
	if !resp.HasIdentity {
		return resp, core.ErrIdentityNotFound
	}
	return resp, nil
}

func (d *DIDClient) InitIdentity(ctx context.Context, holder string) error {
	return serviceError(d.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/did/init",
		body:   map[string]string{"holder": holder},
	}, nil))
}

func (d *DIDClient) AddVerificationMethod(ctx context.Context, holder string) error {
	return serviceError(d.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/did/vm",
		body:   map[string]string{"holder": holder},
	}, nil))
}

// IssueChallenge returns the decoded body untouched; the nonce may sit anywhere in it
func (d *DIDClient) IssueChallenge(ctx context.Context, holder, domain string) (any, error) {
	var resp any
	err := d.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/did/challenge",
		body:   map[string]string{"holder": holder, "domain": domain},
	}, &resp)
	if err != nil {
		return nil, serviceError(err)
	}
	return resp, nil
}

func (d *DIDClient) VerifyChallenge(ctx context.Context, req core.VerifyRequest) error {
	return serviceError(d.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/did/challenge/verify",
		body:   req,
	}, nil))
}
