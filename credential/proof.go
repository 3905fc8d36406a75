package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
)

const (
	// ProofType names the signature suite: secp256k1 with public key recovery
	ProofType = "EcdsaSecp256k1RecoverySignature2020"

	PurposeAssertion      = "assertionMethod"
	PurposeAuthentication = "authentication"
)

// Proof is a detached signature embedded in a document
type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	Challenge          string `json:"challenge,omitempty"`
	Domain             string `json:"domain,omitempty"`
	SignatureValue     string `json:"signatureValue"`
}

// MessageSigner produces a detached signature over raw bytes
type MessageSigner interface {
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// ProofOptions describe the proof to attach
type ProofOptions struct {
	VerificationMethod string
	Purpose            string
	Created            time.Time
	Challenge          string
	Domain             string
}

// AddProof signs the canonical form of d and embeds the proof. Any previous
// proof is replaced and does not take part in the signature.
func AddProof(ctx context.Context, d Document, signer MessageSigner, opts ProofOptions) error {
	if opts.VerificationMethod == "" {
		return fmt.Errorf("verification method is required")
	}
	if opts.Purpose == "" {
		return fmt.Errorf("proof purpose is required")
	}

	payload, err := d.Canonical()
	if err != nil {
		return err
	}
	sig, err := signer.SignMessage(ctx, payload)
	if err != nil {
		return fmt.Errorf("failed to sign document: %w", err)
	}

	proof := map[string]interface{}{
		"type":               ProofType,
		"created":            opts.Created.UTC().Format(time.RFC3339),
		"verificationMethod": opts.VerificationMethod,
		"proofPurpose":       opts.Purpose,
		"signatureValue":     base58.Encode(sig),
	}
	if opts.Challenge != "" {
		proof["challenge"] = opts.Challenge
	}
	if opts.Domain != "" {
		proof["domain"] = opts.Domain
	}
	d["proof"] = proof
	return nil
}
