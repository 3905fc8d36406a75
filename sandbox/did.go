package sandbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mr-tron/base58"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/credential"
	"github.com/talentbridge/trustlayer/ports"
)

const bindPrefix = "bind:"

type identity struct {
	identifier string
	methods    int
}

// Registry is the sandbox DID verification service. Challenge nonces live in
// the ledger and are consumed by the first verification attempt.
type Registry struct {
	ledger   ports.NonceLedger
	accounts *Accounts
	logger   *slog.Logger

	method   string
	domain   string
	nonceTTL time.Duration

	mu         sync.RWMutex
	identities map[string]*identity
}

func NewRegistry(ledger ports.NonceLedger, accounts *Accounts, logger *slog.Logger) *Registry {
	return &Registry{
		ledger:     ledger,
		accounts:   accounts,
		logger:     logger,
		method:     core.DefaultDIDMethod,
		domain:     "localhost",
		nonceTTL:   5 * time.Minute,
		identities: make(map[string]*identity),
	}
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func holderKey(address string) string {
	return strings.ToLower(address)
}

// IssueNonce hands out the nonce a wallet signs to bind itself to an account
func (r *Registry) IssueNonce(ctx context.Context, address string) (core.NonceGrant, error) {
	if address == "" {
		return core.NonceGrant{}, core.ErrInvalidChallenge
	}
	nonce, err := newNonce()
	if err != nil {
		return core.NonceGrant{}, err
	}
	// keyed by address since the binding request does not echo the nonce
	if err := r.ledger.Remember(ctx, bindPrefix+holderKey(address), nonce, r.nonceTTL); err != nil {
		return core.NonceGrant{}, err
	}
	return core.NonceGrant{Nonce: nonce, ExpiresIn: r.nonceTTL}, nil
}

// BindWallet checks the signed binding nonce and attaches the wallet to userID
func (r *Registry) BindWallet(ctx context.Context, userID string, b core.WalletBinding) (core.Profile, error) {
	nonce, err := r.ledger.Consume(ctx, bindPrefix+holderKey(b.Address))
	if err != nil {
		return core.Profile{}, err
	}
	sig, err := base58.Decode(b.SignatureBase58)
	if err != nil {
		return core.Profile{}, fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}
	signer, err := credential.RecoverSigner([]byte(nonce), sig)
	if err != nil {
		return core.Profile{}, fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}
	if !strings.EqualFold(signer, b.Address) {
		return core.Profile{}, core.ErrInvalidSignature
	}
	if want := core.NewDidHolder(r.method, b.Address).Identifier; b.DID != "" && !strings.EqualFold(b.DID, want) {
		return core.Profile{}, fmt.Errorf("%w: did %s does not belong to %s", core.ErrInvalidChallenge, b.DID, b.Address)
	}

	p, err := r.accounts.Update(userID, func(p *core.Profile) { p.Address = b.Address })
	if err != nil {
		return core.Profile{}, err
	}
	r.logger.Info("Wallet bound", slog.String("user", userID), slog.String("address", b.Address))
	return p, nil
}

// MarkVerified flags the account's DID step as complete
func (r *Registry) MarkVerified(ctx context.Context, userID, did string) (core.Profile, error) {
	if did == "" {
		return core.Profile{}, core.ErrDIDRequired
	}
	return r.accounts.Update(userID, func(p *core.Profile) { p.DIDComplete = true })
}

// Status reports whether holder has a registered identity
func (r *Registry) Status(ctx context.Context, holder string) (core.IdentityStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.identities[holderKey(holder)]
	if !ok {
		return core.IdentityStatus{}, core.ErrIdentityNotFound
	}
	return core.IdentityStatus{HasIdentity: true, Identifier: id.identifier}, nil
}

// InitIdentity registers holder. Registering twice is harmless.
func (r *Registry) InitIdentity(ctx context.Context, holder string) error {
	if holder == "" {
		return core.ErrDIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := holderKey(holder)
	if _, ok := r.identities[key]; !ok {
		r.identities[key] = &identity{identifier: core.NewDidHolder(r.method, holder).Identifier}
	}
	return nil
}

// AddVerificationMethod records a controller key for an existing identity
func (r *Registry) AddVerificationMethod(ctx context.Context, holder string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.identities[holderKey(holder)]
	if !ok {
		return core.ErrIdentityNotFound
	}
	id.methods++
	return nil
}

// IssueChallenge returns a challenge with the nonce nested the way the
// production verifier nests it
func (r *Registry) IssueChallenge(ctx context.Context, holder, domain string) (map[string]any, error) {
	if holder == "" {
		return nil, core.ErrInvalidChallenge
	}
	if domain == "" {
		domain = r.domain
	}
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	if err := r.ledger.Remember(ctx, nonce, holderKey(holder)+"|"+domain, r.nonceTTL); err != nil {
		return nil, err
	}

	return map[string]any{
		"ok":     true,
		"domain": domain,
		"data": map[string]any{
			"challenge": map[string]any{
				"holder":       holder,
				"domain":       domain,
				"sessionNonce": nonce,
				"expiresIn":    int(r.nonceTTL.Seconds()),
			},
		},
	}, nil
}

// VerifyChallenge consumes the nonce and checks the submitted pair against it
func (r *Registry) VerifyChallenge(ctx context.Context, req core.VerifyRequest) error {
	bound, err := r.ledger.Consume(ctx, req.Nonce)
	if err != nil {
		return err
	}
	if bound != holderKey(req.Holder)+"|"+req.Domain {
		return fmt.Errorf("%w: nonce was issued for another holder or domain", core.ErrInvalidChallenge)
	}

	vc, err := credential.Parse(req.VC)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidChallenge, err)
	}
	vp, err := credential.Parse(req.VP)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidChallenge, err)
	}

	err = credential.VerifyPair(vc, vp, credential.Expectation{Holder: req.Holder, Domain: req.Domain, Nonce: req.Nonce})
	switch {
	case errors.Is(err, credential.ErrSignerMismatch):
		return fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	case err != nil:
		return fmt.Errorf("%w: %v", core.ErrInvalidChallenge, err)
	}

	r.logger.Info("DID challenge verified", slog.String("holder", req.Holder), slog.String("domain", req.Domain))
	return nil
}
