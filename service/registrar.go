package service

import (
	"context"
	"fmt"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/ports"
)

// ChainRegistrar creates identities with an on-chain transaction signed by the
// holder's wallet. Verification methods are registered through methods.
type ChainRegistrar struct {
	tx      *TransactionAdapter
	wallet  ports.Wallet
	methods ports.IdentityRegistrar
}

func NewChainRegistrar(tx *TransactionAdapter, wallet ports.Wallet, methods ports.IdentityRegistrar) *ChainRegistrar {
	return &ChainRegistrar{tx: tx, wallet: wallet, methods: methods}
}

var _ ports.IdentityRegistrar = (*ChainRegistrar)(nil)

func (r *ChainRegistrar) InitIdentity(ctx context.Context, holder string) error {
	prep, err := r.tx.Prepare(ctx, core.DIDInitIntent{Wallet: holder})
	if err != nil {
		return err
	}
	if _, err := r.tx.SignAndSubmit(ctx, prep.Envelope, r.wallet); err != nil {
		return fmt.Errorf("identity transaction failed: %w", err)
	}
	return nil
}

func (r *ChainRegistrar) AddVerificationMethod(ctx context.Context, holder string) error {
	return r.methods.AddVerificationMethod(ctx, holder)
}
