package ports

import (
	"context"

	"github.com/talentbridge/trustlayer/core"
)

// ChainService prepares unsigned transactions and reads contract state
type ChainService interface {
	Prepare(ctx context.Context, intent core.TxIntent) (*core.PreparedTransaction, error)
	LoadContract(ctx context.Context, contractAddress string) (map[string]any, error)
}

// ChainNetwork submits signed transactions and reports confirmation
type ChainNetwork interface {
	SendRawTransaction(ctx context.Context, signed []byte) (string, error)
	// Confirmed returns core.ErrTransactionFailed for reverted transactions
	Confirmed(ctx context.Context, signature string) (bool, error)
}

// NetworkDialer opens a network for an endpoint recommended by the chain service
type NetworkDialer func(ctx context.Context, endpoint string) (ChainNetwork, error)
