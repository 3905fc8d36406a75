package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/ports"
)

// LocalWallet signs with a key held in memory
type LocalWallet struct {
	key     *ecdsa.PrivateKey
	signer  types.Signer
	network ports.ChainNetwork
	address string

	connected atomic.Bool
}

var _ ports.Wallet = (*LocalWallet)(nil)

// Option configures a LocalWallet
type Option func(*LocalWallet)

// WithBroadcast lets the wallet submit its own transactions, enabling sign-and-send
func WithBroadcast(n ports.ChainNetwork) Option {
	return func(w *LocalWallet) { w.network = n }
}

// New creates a wallet signing transactions for chainID
func New(key *ecdsa.PrivateKey, chainID *big.Int, opts ...Option) *LocalWallet {
	w := &LocalWallet{
		key:     key,
		signer:  types.LatestSignerForChainID(chainID),
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// FromHex loads a wallet from a hex private key
func FromHex(hexKey string, chainID *big.Int, opts ...Option) (*LocalWallet, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet key: %w", err)
	}
	return New(key, chainID, opts...), nil
}

// Generate creates a wallet with a fresh key
func Generate(chainID *big.Int, opts ...Option) (*LocalWallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate wallet key: %w", err)
	}
	return New(key, chainID, opts...), nil
}

func (w *LocalWallet) Connect(ctx context.Context) (string, error) {
	w.connected.Store(true)
	return w.address, nil
}

func (w *LocalWallet) Address() string {
	if !w.connected.Load() {
		return ""
	}
	return w.address
}

func (w *LocalWallet) Capabilities() ports.Capability {
	caps := ports.CanSignMessage | ports.CanSignTransaction
	if w.network != nil {
		caps |= ports.CanSignAndSend
	}
	return caps
}

// SignMessage returns a 65 byte personal-message signature with V in {27, 28}
func (w *LocalWallet) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func (w *LocalWallet) SignTransaction(ctx context.Context, unsigned []byte) ([]byte, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(unsigned); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	signed, err := types.SignTx(tx, w.signer, w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed.MarshalBinary()
}

func (w *LocalWallet) SignAndSendTransaction(ctx context.Context, unsigned []byte) (string, error) {
	if w.network == nil {
		return "", core.ErrWalletCapabilityMissing
	}
	signed, err := w.SignTransaction(ctx, unsigned)
	if err != nil {
		return "", err
	}
	return w.network.SendRawTransaction(ctx, signed)
}
