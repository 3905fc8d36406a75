package chainrpc

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentbridge/trustlayer/core"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode answers the two JSON-RPC methods the network uses
type fakeNode struct {
	mu       sync.Mutex
	raw      []string
	receipts map[string]any
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var result any
	switch req.Method {
	case "eth_sendRawTransaction":
		var raw string
		_ = json.Unmarshal(req.Params[0], &raw)
		f.raw = append(f.raw, raw)
		result = "0x" + common.Bytes2Hex(make([]byte, 32))
	case "eth_getTransactionReceipt":
		var hash string
		_ = json.Unmarshal(req.Params[0], &hash)
		result = f.receipts[hash]
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

func receipt(hash common.Hash, status uint64) map[string]any {
	return map[string]any{
		"transactionHash":   hash.Hex(),
		"transactionIndex":  "0x0",
		"blockHash":         common.Hash{1}.Hex(),
		"blockNumber":       "0x1",
		"from":              common.Address{}.Hex(),
		"to":                common.Address{}.Hex(),
		"cumulativeGasUsed": "0x5208",
		"gasUsed":           "0x5208",
		"effectiveGasPrice": "0x1",
		"contractAddress":   nil,
		"logs":              []any{},
		"logsBloom":         hexutil.Encode(make([]byte, 256)),
		"status":            hexutil.EncodeUint64(status),
		"type":              "0x0",
	}
}

func signedTx(t *testing.T) []byte {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{To: &to, Gas: 21000, GasPrice: big.NewInt(1)}),
		types.LatestSignerForChainID(big.NewInt(31337)), key)
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func TestNetwork(t *testing.T) {
	ctx := context.Background()
	node := &fakeNode{receipts: map[string]any{}}
	srv := httptest.NewServer(node)
	defer srv.Close()

	n, err := Dial(ctx, srv.URL)
	require.NoError(t, err)
	defer n.Close()

	raw := signedTx(t)
	hash, err := n.SendRawTransaction(ctx, raw)
	require.NoError(t, err)
	require.Len(t, node.raw, 1)
	assert.Equal(t, hexutil.Encode(raw), node.raw[0])

	ok, err := n.Confirmed(ctx, hash)
	require.NoError(t, err)
	assert.False(t, ok, "no receipt yet")

	node.mu.Lock()
	node.receipts[hash] = receipt(common.HexToHash(hash), types.ReceiptStatusSuccessful)
	node.mu.Unlock()
	ok, err = n.Confirmed(ctx, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	node.mu.Lock()
	node.receipts[hash] = receipt(common.HexToHash(hash), types.ReceiptStatusFailed)
	node.mu.Unlock()
	_, err = n.Confirmed(ctx, hash)
	assert.ErrorIs(t, err, core.ErrTransactionFailed)
}

func TestSendRejectsGarbage(t *testing.T) {
	srv := httptest.NewServer(&fakeNode{})
	defer srv.Close()
	n, err := Dial(context.Background(), srv.URL)
	require.NoError(t, err)

	_, err = n.SendRawTransaction(context.Background(), []byte{0x01})
	assert.Error(t, err)
}
