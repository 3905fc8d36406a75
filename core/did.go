package core

import (
	"encoding/json"
	"strings"
	"time"
)

// DefaultDIDMethod is the method segment used for wallet-derived identifiers
const DefaultDIDMethod = "eth"

// DidHolder binds a wallet address to its decentralized identifier
type DidHolder struct {
	WalletAddress string
	Identifier    string
}

// NewDidHolder derives the holder for address. The identifier is a pure
// function of the address.
func NewDidHolder(method, address string) DidHolder {
	if method == "" {
		method = DefaultDIDMethod
	}
	return DidHolder{
		WalletAddress: address,
		Identifier:    "did:" + method + ":" + strings.ToLower(address),
	}
}

// VerificationMethod returns the key reference used in proofs
func (h DidHolder) VerificationMethod() string {
	return h.Identifier + "#controller"
}

// Challenge is a single-use verification challenge issued for one attempt
type Challenge struct {
	Holder    string
	Domain    string
	Nonce     string
	ExpiresIn time.Duration
	Payload   any // embedded into the credential subject as "challenge"
	Raw       any // the verifier's response as decoded
}

// NonceGrant is a nonce issued for wallet binding
type NonceGrant struct {
	Nonce     string        `json:"nonce"`
	ExpiresIn time.Duration `json:"-"`
}

// IdentityStatus reports whether a holder already has a registered identity
type IdentityStatus struct {
	HasIdentity bool   `json:"hasIdentity"`
	Identifier  string `json:"identifier,omitempty"`
}

// WalletBinding is a signed nonce proving wallet ownership
type WalletBinding struct {
	DID             string `json:"did"`
	Address         string `json:"address"`
	SignatureBase58 string `json:"signatureBase58"`
}

// VerifyRequest is submitted to the verifier to complete a challenge
type VerifyRequest struct {
	Holder string          `json:"holder"`
	Domain string          `json:"domain"`
	Nonce  string          `json:"nonce"`
	VC     json.RawMessage `json:"vc"`
	VP     json.RawMessage `json:"vp"`
}

// Phase is a state of the DID challenge-response flow
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseCheckingStatus       Phase = "checking"
	PhaseInitializingIdentity Phase = "initializing"
	PhaseChallengeIssued      Phase = "challenge"
	PhaseSigning              Phase = "signing"
	PhaseVerifying            Phase = "verifying"
	PhaseSuccess              Phase = "success"
	PhaseError                Phase = "error"
)

// Terminal reports whether the flow stops in p
func (p Phase) Terminal() bool {
	return p == PhaseSuccess || p == PhaseError
}

// PhaseDetail is optional context attached to a phase transition
type PhaseDetail struct {
	Message string `json:"message,omitempty"`
	Nonce   string `json:"nonce,omitempty"`
}
