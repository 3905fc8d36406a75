package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/ports"
)

// ChainClient talks to the chain service. It also relays signed transactions
// through the service for deployments without direct network access.
type ChainClient struct {
	c     *Client
	chain string
}

var (
	_ ports.ChainService = (*ChainClient)(nil)
	_ ports.ChainNetwork = (*ChainClient)(nil)
)

func NewChainClient(c *Client) *ChainClient {
	return &ChainClient{c: c, chain: "ethereum"}
}

// prepareResponse accepts both the nested and the flat response shapes
type prepareResponse struct {
	Transaction     json.RawMessage `json:"transaction"`
	Tx              string          `json:"tx"`
	TxB64           string          `json:"txB64"`
	Network         string          `json:"network"`
	RPC             string          `json:"rpc"`
	FeePayer        string          `json:"feePayer"`
	Contract        string          `json:"contract"`
	ContractAddress string          `json:"contractAddress"`
	Escrow          string          `json:"escrow"`
	EscrowAddress   string          `json:"escrowAddress"`
}

func (r *prepareResponse) descriptor(chain string) (*core.TransactionDescriptor, error) {
	d := &core.TransactionDescriptor{Chain: chain, Network: r.Network, RPC: r.RPC, FeePayer: r.FeePayer}
	if len(r.Transaction) > 0 && string(r.Transaction) != "null" {
		var s string
		if err := json.Unmarshal(r.Transaction, &s); err == nil {
			d.Tx = s
		} else if err := json.Unmarshal(r.Transaction, d); err != nil {
			return nil, fmt.Errorf("malformed transaction: %w", err)
		}
	}
	if d.Tx == "" {
		d.Tx = r.Tx
	}
	if d.Tx == "" {
		d.Tx = r.TxB64
	}
	if d.Chain == "" {
		d.Chain = chain
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// intentRequest maps an intent onto its endpoint and body
func intentRequest(intent core.TxIntent) (string, any, error) {
	switch i := intent.(type) {
	case core.DIDInitIntent:
		return "/chain/did/init", map[string]string{"wallet": i.Wallet}, nil
	case core.ContractCreateIntent:
		return "/chain/contract/create", map[string]any{
			"employer":  i.Employer,
			"employee":  i.Employee,
			"salary":    i.Salary.String(),
			"startDate": i.StartDate.Unix(),
			"dueDate":   i.DueDate.Unix(),
		}, nil
	case core.ContractFinalizeIntent:
		return "/chain/contract/finalize", map[string]string{"employer": i.Employer, "contract": i.Contract, "escrow": i.Escrow}, nil
	case core.ContractExpireIntent:
		return "/chain/contract/expire", map[string]string{"employer": i.Employer, "contract": i.Contract, "escrow": i.Escrow}, nil
	case core.ContractEndIntent:
		return "/chain/contract/end", map[string]string{
			"employer": i.Employer,
			"employee": i.Employee,
			"contract": i.Contract,
			"escrow":   i.Escrow,
			"amount":   i.Amount.String(),
		}, nil
	}
	return "", nil, fmt.Errorf("unsupported intent %T", intent)
}

// Prepare requests an unsigned transaction. Failures are *core.ChainServiceError.
func (cc *ChainClient) Prepare(ctx context.Context, intent core.TxIntent) (*core.PreparedTransaction, error) {
	path, body, err := intentRequest(intent)
	if err != nil {
		return nil, &core.ChainServiceError{Status: http.StatusBadRequest, Reason: err.Error()}
	}

	var resp prepareResponse
	if err := cc.c.do(ctx, request{method: http.MethodPost, path: path, body: body, auth: true}, &resp); err != nil {
		return nil, chainError(err)
	}

	d, err := resp.descriptor(cc.chain)
	if err != nil {
		return nil, &core.ChainServiceError{Status: http.StatusOK, Reason: err.Error()}
	}
	prep := &core.PreparedTransaction{
		Descriptor:      d,
		ContractAddress: firstNonEmpty(resp.Contract, resp.ContractAddress),
		EscrowAddress:   firstNonEmpty(resp.Escrow, resp.EscrowAddress),
	}
	if d.Tx != "" {
		if prep.Envelope, err = d.Envelope(); err != nil {
			return nil, &core.ChainServiceError{Status: http.StatusOK, Reason: err.Error()}
		}
	}
	return prep, nil
}

func (cc *ChainClient) LoadContract(ctx context.Context, contractAddress string) (map[string]any, error) {
	var resp map[string]any
	err := cc.c.do(ctx, request{
		method: http.MethodGet,
		path:   "/chain/contract/load",
		query:  url.Values{"address": {contractAddress}},
		auth:   true,
	}, &resp)
	if err != nil {
		return nil, chainError(err)
	}
	return resp, nil
}

func (cc *ChainClient) SendRawTransaction(ctx context.Context, signed []byte) (string, error) {
	var resp struct {
		Signature string `json:"signature"`
	}
	err := cc.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/chain/tx/submit",
		body:   map[string]string{"tx": base64.StdEncoding.EncodeToString(signed)},
		auth:   true,
	}, &resp)
	if err != nil {
		return "", chainError(err)
	}
	return resp.Signature, nil
}

func (cc *ChainClient) Confirmed(ctx context.Context, signature string) (bool, error) {
	var resp struct {
		Confirmed bool `json:"confirmed"`
		Failed    bool `json:"failed"`
	}
	err := cc.c.do(ctx, request{method: http.MethodGet, path: "/chain/tx/" + url.PathEscape(signature), auth: true}, &resp)
	var he *HTTPError
	if errors.As(err, &he) && he.Status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, chainError(err)
	}
	if resp.Failed {
		return false, core.ErrTransactionFailed
	}
	return resp.Confirmed, nil
}

func chainError(err error) error {
	var he *HTTPError
	if errors.As(err, &he) {
		return &core.ChainServiceError{Status: he.Status, Reason: firstNonEmpty(he.Reason, he.Code)}
	}
	return &core.ChainServiceError{Reason: err.Error()}
}
