// Package sandbox is a local stand-in for the auth, DID verification, chain
// and notification services the trust layer talks to.
package sandbox

import (
	"context"
	"log/slog"

	"github.com/talentbridge/trustlayer/ports"
)

// Services bundles the sandbox backends served by transport/http
type Services struct {
	Accounts *Accounts
	Auth     *AuthService
	Registry *Registry
	Chain    *Chain
	Inbox    *Inbox
}

// Deps are the infrastructure pieces the sandbox runs on
type Deps struct {
	Tokenizer ports.Tokenizer
	Revoked   ports.RevocationStore
	Nonces    ports.NonceLedger
	Forward   ports.ContractNotifier
	Logger    *slog.Logger
}

// ChainConfig describes the simulated network
type ChainConfig struct {
	ID       int64
	Registry string
	Endpoint string
}

// New wires the sandbox services
func New(d Deps, chain ChainConfig) (*Services, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c, err := NewChain(chain.ID, chain.Registry, chain.Endpoint, logger)
	if err != nil {
		return nil, err
	}
	accounts := NewAccounts()
	registry := NewRegistry(d.Nonces, accounts, logger)
	c.OnIdentity(func(wallet string) {
		_ = registry.InitIdentity(context.Background(), wallet)
	})
	return &Services{
		Accounts: accounts,
		Auth:     NewAuthService(d.Tokenizer, d.Revoked, accounts, logger),
		Registry: registry,
		Chain:    c,
		Inbox:    NewInbox(d.Forward, logger),
	}, nil
}
