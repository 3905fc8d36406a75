package ports

import (
	"context"

	"github.com/talentbridge/trustlayer/core"
)

// DIDVerifier is the remote DID verification service
type DIDVerifier interface {
	IssueNonce(ctx context.Context, address string) (core.NonceGrant, error)
	// BindWallet submits a signed nonce. A returned credential replaces the current one.
	BindWallet(ctx context.Context, binding core.WalletBinding) (*core.AccessCredential, error)
	MarkVerified(ctx context.Context, did string) error

	// Status fails with core.ErrIdentityNotFound when the holder has no identity
	Status(ctx context.Context, holder string) (core.IdentityStatus, error)
	// IssueChallenge returns the verifier's response as a generic decoded tree
	IssueChallenge(ctx context.Context, holder, domain string) (any, error)
	VerifyChallenge(ctx context.Context, req core.VerifyRequest) error
}

// IdentityRegistrar creates identities and registers their verification methods
type IdentityRegistrar interface {
	InitIdentity(ctx context.Context, holder string) error
	AddVerificationMethod(ctx context.Context, holder string) error
}
