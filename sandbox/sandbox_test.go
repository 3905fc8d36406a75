package sandbox

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/talentbridge/trustlayer/adapters/store"
	"github.com/talentbridge/trustlayer/adapters/tokenizer"
	"github.com/talentbridge/trustlayer/adapters/wallet"
)

const testRegistry = "0x00000000000000000000000000000000000000aa"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServices(t *testing.T) *Services {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	s, err := New(Deps{
		Tokenizer: tokenizer.NewJWTTokenizer(key),
		Revoked:   store.NewMemoryRevocationStore(),
		Nonces:    store.NewMemoryNonceLedger(),
		Logger:    discardLogger(),
	}, ChainConfig{ID: 1337, Registry: testRegistry})
	require.NoError(t, err)
	return s
}

func newWallet(t *testing.T) *wallet.LocalWallet {
	t.Helper()
	w, err := wallet.Generate(big.NewInt(1337))
	require.NoError(t, err)
	_, err = w.Connect(context.Background())
	require.NoError(t, err)
	return w
}

// fixedClock returns a clock that advances only when moved
type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time      { return c.t }
func (c *fixedClock) add(d time.Duration) { c.t = c.t.Add(d) }
