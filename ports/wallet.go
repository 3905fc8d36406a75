package ports

import "context"

// Capability is a set of optional wallet operations
type Capability uint8

const (
	CanSignMessage Capability = 1 << iota
	CanSignTransaction
	CanSignAndSend
)

// Has reports whether every capability in o is present
func (c Capability) Has(o Capability) bool {
	return c&o == o
}

// Wallet is an externally owned signing key. Operations outside Capabilities
// fail with core.ErrWalletCapabilityMissing.
type Wallet interface {
	Connect(ctx context.Context) (string, error)
	// Address is empty until the wallet is connected
	Address() string
	Capabilities() Capability

	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
	SignTransaction(ctx context.Context, unsigned []byte) ([]byte, error)
	SignAndSendTransaction(ctx context.Context, unsigned []byte) (string, error)
}
