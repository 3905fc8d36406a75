package credential

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
)

var (
	ErrMissingProof     = errors.New("document has no proof")
	ErrSignerMismatch   = errors.New("proof was not produced by the holder")
	ErrBindingMismatch  = errors.New("document does not bind the expected holder, domain and nonce")
	ErrEmbeddedMismatch = errors.New("presentation does not embed the submitted credential")
)

// TextHash is the digest a wallet signs for a message: the EIP-191
// personal message hash
func TextHash(msg []byte) []byte {
	return accounts.TextHash(msg)
}

// RecoverSigner returns the lower-case hex address that signed msg
func RecoverSigner(msg, sig []byte) (string, error) {
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	s := append([]byte(nil), sig...)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(TextHash(msg), s)
	if err != nil {
		return "", fmt.Errorf("failed to recover signer: %w", err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// VerifyProof checks that the document's proof was produced by address
func VerifyProof(d Document, address string) error {
	proof, ok := d.Proof()
	if !ok || proof.SignatureValue == "" {
		return ErrMissingProof
	}
	sig, err := base58.Decode(proof.SignatureValue)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}
	payload, err := d.Canonical()
	if err != nil {
		return err
	}
	signer, err := RecoverSigner(payload, sig)
	if err != nil {
		return err
	}
	if !strings.EqualFold(signer, address) {
		return ErrSignerMismatch
	}
	return nil
}

// Expectation is what a verifier requires the pair to bind
type Expectation struct {
	Holder string
	Domain string
	Nonce  string
}

// VerifyPair validates shape, bindings and both signatures of a submitted pair
func VerifyPair(vc, vp Document, want Expectation) error {
	if err := ValidateCredential(vc); err != nil {
		return err
	}
	if err := ValidatePresentation(vp); err != nil {
		return err
	}

	subject, _ := vc["credentialSubject"].(map[string]interface{})
	if subject["id"] != want.Holder || subject["domain"] != want.Domain || subject["nonce"] != want.Nonce {
		return ErrBindingMismatch
	}
	if vp["holder"] != want.Holder || vp["domain"] != want.Domain || vp["nonce"] != want.Nonce {
		return ErrBindingMismatch
	}

	embedded, ok := EmbeddedCredential(vp)
	if !ok {
		return ErrEmbeddedMismatch
	}
	a, err := embedded.JSON()
	if err != nil {
		return err
	}
	b, err := vc.JSON()
	if err != nil {
		return err
	}
	if !bytes.Equal(a, b) {
		return ErrEmbeddedMismatch
	}

	if err := VerifyProof(vc, want.Holder); err != nil {
		return fmt.Errorf("credential: %w", err)
	}
	if err := VerifyProof(vp, want.Holder); err != nil {
		return fmt.Errorf("presentation: %w", err)
	}
	return nil
}
