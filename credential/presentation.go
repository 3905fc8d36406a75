package credential

import (
	"context"
	"fmt"
	"time"
)

const ContextV1 = "https://www.w3.org/2018/credentials/v1"

// Subject is what a DID authentication credential attests
type Subject struct {
	Holder             string
	Domain             string
	Nonce              string
	Challenge          interface{}
	VerificationMethod string
}

func (s Subject) verificationMethod() string {
	if s.VerificationMethod != "" {
		return s.VerificationMethod
	}
	return s.Holder
}

// NewCredential builds the unsigned credential for s
func NewCredential(s Subject, issued time.Time) Document {
	return Document{
		"@context":     []interface{}{ContextV1},
		"type":         []interface{}{"VerifiableCredential", "DidAuthCredential"},
		"issuer":       s.Holder,
		"issuanceDate": issued.UTC().Format(time.RFC3339),
		"credentialSubject": map[string]interface{}{
			"id":        s.Holder,
			"domain":    s.Domain,
			"nonce":     s.Nonce,
			"challenge": s.Challenge,
		},
	}
}

// NewPresentation wraps an already signed credential
func NewPresentation(s Subject, signedVC Document) Document {
	return Document{
		"@context":             []interface{}{ContextV1},
		"type":                 []interface{}{"VerifiablePresentation", "DidAuthPresentation"},
		"holder":               s.Holder,
		"domain":               s.Domain,
		"nonce":                s.Nonce,
		"verifiableCredential": []interface{}{map[string]interface{}(signedVC)},
	}
}

// Pair is a signed credential and the presentation carrying it
type Pair struct {
	VC Document
	VP Document
}

// BuildSigned signs a credential for s, then signs a presentation that embeds
// the proof-bearing credential verbatim. Each signature covers only its own
// document's canonical form.
func BuildSigned(ctx context.Context, s Subject, signer MessageSigner, now time.Time) (*Pair, error) {
	vc, err := normalize(NewCredential(s, now))
	if err != nil {
		return nil, err
	}
	err = AddProof(ctx, vc, signer, ProofOptions{
		VerificationMethod: s.verificationMethod(),
		Purpose:            PurposeAssertion,
		Created:            now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign credential: %w", err)
	}
	if vc, err = normalize(vc); err != nil {
		return nil, err
	}

	vp := NewPresentation(s, vc)
	err = AddProof(ctx, vp, signer, ProofOptions{
		VerificationMethod: s.verificationMethod(),
		Purpose:            PurposeAuthentication,
		Created:            now,
		Challenge:          s.Nonce,
		Domain:             s.Domain,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign presentation: %w", err)
	}

	return &Pair{VC: vc, VP: vp}, nil
}

// Serialize returns the wire form of both documents
func (p *Pair) Serialize() (vc, vp []byte, err error) {
	if vc, err = p.VC.JSON(); err != nil {
		return nil, nil, err
	}
	if vp, err = p.VP.JSON(); err != nil {
		return nil, nil, err
	}
	return vc, vp, nil
}

// EmbeddedCredential returns the first credential inside a presentation
func EmbeddedCredential(vp Document) (Document, bool) {
	list, ok := vp["verifiableCredential"].([]interface{})
	if !ok || len(list) == 0 {
		return nil, false
	}
	vc, ok := list[0].(map[string]interface{})
	if !ok {
		return nil, false
	}
	return Document(vc), true
}
