package core

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ChainTransactionEnvelope carries a transaction between prepare and confirm
type ChainTransactionEnvelope struct {
	UnsignedPayload []byte
	Signature       string
	NetworkID       string
	NetworkEndpoint string
	FeePayer        string
}

// TransactionDescriptor is the wire form of an unsigned transaction handed
// to a counterparty
type TransactionDescriptor struct {
	Chain    string `json:"chain"`
	Network  string `json:"network"`
	Tx       string `json:"tx"`
	RPC      string `json:"rpc,omitempty"`
	FeePayer string `json:"feePayer,omitempty"`
}

// DescriptorFor encodes an envelope for delivery
func DescriptorFor(chain string, env ChainTransactionEnvelope) *TransactionDescriptor {
	return &TransactionDescriptor{
		Chain:    chain,
		Network:  env.NetworkID,
		Tx:       base64.StdEncoding.EncodeToString(env.UnsignedPayload),
		RPC:      env.NetworkEndpoint,
		FeePayer: env.FeePayer,
	}
}

// Envelope decodes the descriptor back into an unsigned envelope
func (d *TransactionDescriptor) Envelope() (ChainTransactionEnvelope, error) {
	if d == nil || d.Tx == "" {
		return ChainTransactionEnvelope{}, fmt.Errorf("transaction descriptor has no payload")
	}
	payload, err := base64.StdEncoding.DecodeString(d.Tx)
	if err != nil {
		return ChainTransactionEnvelope{}, fmt.Errorf("failed to decode transaction payload: %w", err)
	}
	return ChainTransactionEnvelope{
		UnsignedPayload: payload,
		NetworkID:       d.Network,
		NetworkEndpoint: d.RPC,
		FeePayer:        d.FeePayer,
	}, nil
}

// IntentKind names the business operation a transaction performs
type IntentKind string

const (
	IntentDIDInit          IntentKind = "did_init"
	IntentContractCreate   IntentKind = "contract_create"
	IntentContractFinalize IntentKind = "contract_finalize"
	IntentContractExpire   IntentKind = "contract_expire"
	IntentContractEnd      IntentKind = "contract_end"
)

// TxIntent describes what a prepared transaction should do
type TxIntent interface {
	Kind() IntentKind
}

// DIDInitIntent registers an identity for a wallet
type DIDInitIntent struct {
	Wallet string
}

// ContractCreateIntent opens an escrow contract between two parties
type ContractCreateIntent struct {
	Employer  string
	Employee  string
	Salary    decimal.Decimal
	StartDate time.Time
	DueDate   time.Time
}

// ContractFinalizeIntent is the employer's closing signature
type ContractFinalizeIntent struct {
	Employer string
	Contract string
	Escrow   string
}

// ContractExpireIntent cancels an unfinished contract after its due date
type ContractExpireIntent struct {
	Employer string
	Contract string
	Escrow   string
}

// ContractEndIntent settles a completed contract by releasing escrow
type ContractEndIntent struct {
	Employer string
	Employee string
	Contract string
	Escrow   string
	Amount   decimal.Decimal
}

func (DIDInitIntent) Kind() IntentKind          { return IntentDIDInit }
func (ContractCreateIntent) Kind() IntentKind   { return IntentContractCreate }
func (ContractFinalizeIntent) Kind() IntentKind { return IntentContractFinalize }
func (ContractExpireIntent) Kind() IntentKind   { return IntentContractExpire }
func (ContractEndIntent) Kind() IntentKind      { return IntentContractEnd }

// PreparedTransaction is the chain service's answer to a prepare request
type PreparedTransaction struct {
	Envelope        ChainTransactionEnvelope
	Descriptor      *TransactionDescriptor
	ContractAddress string
	EscrowAddress   string
}
