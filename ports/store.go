package ports

import (
	"context"
	"time"

	"github.com/talentbridge/trustlayer/core"
)

// CredentialStore persists the access credential under its two well-known keys
type CredentialStore interface {
	Save(ctx context.Context, cred core.AccessCredential) error
	Load(ctx context.Context) (core.AccessCredential, bool, error)
	Clear(ctx context.Context) error
}

// RevocationStore tracks revoked refresh tokens until they would expire anyway
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, expiry time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// NonceLedger remembers issued nonces so each can be consumed exactly once
type NonceLedger interface {
	Remember(ctx context.Context, nonce, holder string, ttl time.Duration) error
	// Consume returns the holder the nonce was issued to and forgets it.
	// Unknown, expired and already consumed nonces yield core.ErrInvalidChallenge.
	Consume(ctx context.Context, nonce string) (string, error)
}

// ContractRepository stores contract records by id
type ContractRepository interface {
	Get(ctx context.Context, id string) (*core.ContractEscrow, error)
	Save(ctx context.Context, c *core.ContractEscrow) error
	// Delete removes a record; a missing id is not an error
	Delete(ctx context.Context, id string) error
}
