package wallet

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/credential"
	"github.com/talentbridge/trustlayer/ports"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

type recordingNetwork struct{ sent [][]byte }

func (n *recordingNetwork) SendRawTransaction(ctx context.Context, signed []byte) (string, error) {
	n.sent = append(n.sent, signed)
	return "0xsent", nil
}

func (n *recordingNetwork) Confirmed(ctx context.Context, sig string) (bool, error) { return true, nil }

func TestConnect(t *testing.T) {
	w, err := FromHex(testKey, big.NewInt(31337))
	require.NoError(t, err)

	assert.Empty(t, w.Address())
	addr, err := w.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, common.IsHexAddress(addr))
	assert.Equal(t, addr, w.Address())
	assert.False(t, w.Capabilities().Has(ports.CanSignAndSend))
}

func TestSignMessageRecovers(t *testing.T) {
	ctx := context.Background()
	w, err := Generate(big.NewInt(1))
	require.NoError(t, err)
	addr, _ := w.Connect(ctx)

	sig, err := w.SignMessage(ctx, []byte("nonce-1"))
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	signer, err := credential.RecoverSigner([]byte("nonce-1"), sig)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(addr), common.HexToAddress(signer))
}

func TestSignTransaction(t *testing.T) {
	ctx := context.Background()
	chainID := big.NewInt(31337)
	network := &recordingNetwork{}
	w, err := FromHex(testKey, chainID, WithBroadcast(network))
	require.NoError(t, err)
	addr, _ := w.Connect(ctx)
	assert.True(t, w.Capabilities().Has(ports.CanSignAndSend))

	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	unsigned, err := types.NewTx(&types.LegacyTx{Nonce: 3, To: &to, Gas: 21000, GasPrice: big.NewInt(1)}).MarshalBinary()
	require.NoError(t, err)

	signed, err := w.SignTransaction(ctx, unsigned)
	require.NoError(t, err)
	tx := new(types.Transaction)
	require.NoError(t, tx.UnmarshalBinary(signed))
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(addr), sender)
	assert.Equal(t, uint64(3), tx.Nonce())

	hash, err := w.SignAndSendTransaction(ctx, unsigned)
	require.NoError(t, err)
	assert.Equal(t, "0xsent", hash)
	assert.Len(t, network.sent, 1)

	_, err = w.SignTransaction(ctx, []byte("junk"))
	assert.Error(t, err)
}

func TestSignAndSendWithoutNetwork(t *testing.T) {
	w, err := Generate(big.NewInt(1))
	require.NoError(t, err)
	_, err = w.SignAndSendTransaction(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrWalletCapabilityMissing)
}

func TestFromHexRejectsGarbage(t *testing.T) {
	_, err := FromHex("zz", big.NewInt(1))
	assert.Error(t, err)
}
