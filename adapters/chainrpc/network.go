package chainrpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/ports"
)

// Network submits transactions to an Ethereum JSON-RPC endpoint
type Network struct {
	client *ethclient.Client
}

var _ ports.ChainNetwork = (*Network)(nil)

// Dial connects to endpoint
func Dial(ctx context.Context, endpoint string) (*Network, error) {
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	return &Network{client: client}, nil
}

// Dialer adapts Dial to ports.NetworkDialer
func Dialer(ctx context.Context, endpoint string) (ports.ChainNetwork, error) {
	return Dial(ctx, endpoint)
}

func (n *Network) SendRawTransaction(ctx context.Context, signed []byte) (string, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(signed); err != nil {
		return "", fmt.Errorf("failed to decode signed transaction: %w", err)
	}
	if err := n.client.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	return tx.Hash().Hex(), nil
}

func (n *Network) Confirmed(ctx context.Context, signature string) (bool, error) {
	receipt, err := n.client.TransactionReceipt(ctx, common.HexToHash(signature))
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return false, fmt.Errorf("%w: %s", core.ErrTransactionFailed, signature)
	}
	return true, nil
}

func (n *Network) Close() {
	n.client.Close()
}
