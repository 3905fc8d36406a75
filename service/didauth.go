package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/credential"
	"github.com/talentbridge/trustlayer/internal/obs"
	"github.com/talentbridge/trustlayer/ports"
)

// DefaultDomain is the verification domain used when none is configured
const DefaultDomain = "localhost"

// PhaseObserver is told about every phase transition, in order. It runs on its
// own goroutine and cannot hold up the flow.
type PhaseObserver func(phase core.Phase, detail core.PhaseDetail)

// AuthResult is the outcome of a successful challenge-response run
type AuthResult struct {
	Holder core.DidHolder
	Domain string
	Nonce  string
	VC     []byte
	VP     []byte
}

// Authenticator runs the DID challenge-response flow for one wallet
type Authenticator struct {
	verifier  ports.DIDVerifier
	registrar ports.IdentityRegistrar
	wallet    ports.Wallet
	tokens    *TokenManager
	events    ports.EventPublisher
	logger    *slog.Logger

	method    string
	domain    string
	scanDepth int
	now       func() time.Time

	running atomic.Bool
}

// AuthenticatorOption configures an Authenticator
type AuthenticatorOption func(*Authenticator)

// WithDIDMethod sets the method segment of holder identifiers
func WithDIDMethod(method string) AuthenticatorOption {
	return func(a *Authenticator) { a.method = method }
}

// WithDomain sets the domain requested for challenges
func WithDomain(domain string) AuthenticatorOption {
	return func(a *Authenticator) { a.domain = domain }
}

// WithNonceScanDepth bounds how deep the challenge response is searched for a nonce
func WithNonceScanDepth(depth int) AuthenticatorOption {
	return func(a *Authenticator) { a.scanDepth = depth }
}

// WithPhaseEvents publishes every phase change
func WithPhaseEvents(events ports.EventPublisher) AuthenticatorOption {
	return func(a *Authenticator) { a.events = events }
}

// WithTokenManager stores credentials returned by wallet binding
func WithTokenManager(tokens *TokenManager) AuthenticatorOption {
	return func(a *Authenticator) { a.tokens = tokens }
}

// WithAuthClock replaces the clock used for issuance timestamps
func WithAuthClock(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) { a.now = now }
}

// WithAuthLogger sets the logger
func WithAuthLogger(l *slog.Logger) AuthenticatorOption {
	return func(a *Authenticator) { a.logger = l }
}

// NewAuthenticator creates an authenticator. registrar is used only for
// holders without an identity.
func NewAuthenticator(verifier ports.DIDVerifier, registrar ports.IdentityRegistrar, wallet ports.Wallet, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		verifier:  verifier,
		registrar: registrar,
		wallet:    wallet,
		logger:    slog.Default(),
		method:    core.DefaultDIDMethod,
		domain:    DefaultDomain,
		scanDepth: DefaultNonceScanDepth,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate runs CheckingStatus, the optional InitializingIdentity,
// ChallengeIssued, Signing and Verifying, ending in Success or Error. Only one
// run may be active at a time.
func (a *Authenticator) Authenticate(ctx context.Context, observer PhaseObserver) (*AuthResult, error) {
	if !a.running.CompareAndSwap(false, true) {
		return nil, core.ErrFlowInProgress
	}
	defer a.running.Store(false)

	address, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	holder := core.NewDidHolder(a.method, address)

	emit := newPhaseEmitter(ctx, holder.WalletAddress, observer, a.events, a.logger)
	defer emit.close()

	res, err := a.run(ctx, holder, emit)
	if err != nil {
		emit.send(core.PhaseError, core.PhaseDetail{Message: err.Error()})
		a.logger.Warn("DID authentication failed", slog.String("holder", holder.Identifier), slog.String("error", err.Error()))
		return nil, err
	}
	emit.send(core.PhaseSuccess, core.PhaseDetail{Nonce: res.Nonce})
	a.logger.Info("DID authentication succeeded", slog.String("holder", holder.Identifier))
	return res, nil
}

func (a *Authenticator) run(ctx context.Context, holder core.DidHolder, emit *phaseEmitter) (*AuthResult, error) {
	address := holder.WalletAddress

	emit.send(core.PhaseCheckingStatus, core.PhaseDetail{})
	status, err := a.verifier.Status(ctx, address)
	if err != nil && !errors.Is(err, core.ErrIdentityNotFound) {
		return nil, fmt.Errorf("identity status check failed: %w", err)
	}

	if !status.HasIdentity {
		emit.send(core.PhaseInitializingIdentity, core.PhaseDetail{})
		if err := a.registrar.InitIdentity(ctx, address); err != nil {
			return nil, fmt.Errorf("identity creation failed: %w", err)
		}
		if err := a.registrar.AddVerificationMethod(ctx, address); err != nil {
			return nil, fmt.Errorf("verification method registration failed: %w", err)
		}
	}

	challenge, err := a.issueChallenge(ctx, address)
	if err != nil {
		return nil, err
	}
	emit.send(core.PhaseChallengeIssued, core.PhaseDetail{Nonce: challenge.Nonce})

	emit.send(core.PhaseSigning, core.PhaseDetail{Nonce: challenge.Nonce})
	pair, err := credential.BuildSigned(ctx, credential.Subject{
		Holder:             address,
		Domain:             challenge.Domain,
		Nonce:              challenge.Nonce,
		Challenge:          challenge.Payload,
		VerificationMethod: holder.VerificationMethod(),
	}, a.messageSigner(), a.now())
	if err != nil {
		return nil, err
	}
	vc, vp, err := pair.Serialize()
	if err != nil {
		return nil, err
	}

	emit.send(core.PhaseVerifying, core.PhaseDetail{Nonce: challenge.Nonce})
	err = a.verifier.VerifyChallenge(ctx, core.VerifyRequest{
		Holder: address,
		Domain: challenge.Domain,
		Nonce:  challenge.Nonce,
		VC:     vc,
		VP:     vp,
	})
	if err != nil {
		return nil, fmt.Errorf("challenge verification failed: %w", err)
	}

	return &AuthResult{Holder: holder, Domain: challenge.Domain, Nonce: challenge.Nonce, VC: vc, VP: vp}, nil
}

// issueChallenge requests a challenge and pulls the nonce, and optionally a
// domain override and challenge payload, out of whatever shape the verifier uses
func (a *Authenticator) issueChallenge(ctx context.Context, holder string) (*core.Challenge, error) {
	raw, err := a.verifier.IssueChallenge(ctx, holder, a.domain)
	if err != nil {
		return nil, fmt.Errorf("challenge issuance failed: %w", err)
	}

	site, err := findNonce(raw, a.scanDepth)
	if err != nil {
		return nil, err
	}

	// top-level fields win over those beside the nonce
	top, _ := raw.(map[string]any)
	c := &core.Challenge{Holder: holder, Domain: a.domain, Nonce: site.nonce, Raw: raw}
	if d, ok := challengeField(top, site.container, "domain").(string); ok && d != "" {
		c.Domain = d
	}
	if secs, ok := wholeSeconds(challengeField(top, site.container, "expiresIn")); ok {
		c.ExpiresIn = secs
	}
	c.Payload = challengeField(top, site.container, "challenge")
	if c.Payload == nil && site.parentKey == "challenge" {
		c.Payload = site.container
	}
	return c, nil
}

func challengeField(top, beside map[string]any, key string) any {
	if v, ok := top[key]; ok && v != nil {
		return v
	}
	return beside[key]
}

func wholeSeconds(v any) (time.Duration, bool) {
	switch n := v.(type) {
	case float64:
		return time.Duration(n) * time.Second, true
	case int:
		return time.Duration(n) * time.Second, true
	case int64:
		return time.Duration(n) * time.Second, true
	case json.Number:
		i, err := n.Int64()
		return time.Duration(i) * time.Second, err == nil
	}
	return 0, false
}

// BindWallet proves wallet ownership by signing a fresh nonce. A credential
// returned by the verifier is stored through the token manager.
func (a *Authenticator) BindWallet(ctx context.Context) (core.DidHolder, error) {
	address, err := a.connect(ctx)
	if err != nil {
		return core.DidHolder{}, err
	}
	holder := core.NewDidHolder(a.method, address)

	grant, err := a.verifier.IssueNonce(ctx, address)
	if err != nil {
		return core.DidHolder{}, fmt.Errorf("nonce issuance failed: %w", err)
	}
	if grant.Nonce == "" {
		return core.DidHolder{}, core.ErrChallengeNonceMissing
	}

	sig, err := a.messageSigner().SignMessage(ctx, []byte(grant.Nonce))
	if err != nil {
		return core.DidHolder{}, err
	}

	cred, err := a.verifier.BindWallet(ctx, core.WalletBinding{
		DID:             holder.Identifier,
		Address:         address,
		SignatureBase58: base58.Encode(sig),
	})
	if err != nil {
		return core.DidHolder{}, fmt.Errorf("wallet binding failed: %w", err)
	}
	if cred != nil && a.tokens != nil {
		if err := a.tokens.SaveCredential(ctx, *cred); err != nil {
			return core.DidHolder{}, err
		}
	}
	return holder, nil
}

// MarkVerified records the holder's identifier as verified on the account
func (a *Authenticator) MarkVerified(ctx context.Context, did string) error {
	if did == "" {
		return core.ErrDIDRequired
	}
	return a.verifier.MarkVerified(ctx, did)
}

func (a *Authenticator) connect(ctx context.Context) (string, error) {
	if addr := a.wallet.Address(); addr != "" {
		return addr, nil
	}
	addr, err := a.wallet.Connect(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrWalletNotConnected, err)
	}
	if addr == "" {
		return "", core.ErrWalletNotConnected
	}
	return addr, nil
}

func (a *Authenticator) messageSigner() credential.MessageSigner {
	return capabilitySigner{a.wallet}
}

// capabilitySigner refuses up front when the wallet cannot sign messages
type capabilitySigner struct{ w ports.Wallet }

func (s capabilitySigner) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if !s.w.Capabilities().Has(ports.CanSignMessage) {
		return nil, core.ErrMessageSigningUnsupported
	}
	return s.w.SignMessage(ctx, msg)
}

type phaseEvent struct {
	phase  core.Phase
	detail core.PhaseDetail
}

// phaseEmitter delivers transitions to the observer and the event bus from a
// single goroutine so delivery order matches transition order
type phaseEmitter struct {
	ch chan phaseEvent
}

func newPhaseEmitter(ctx context.Context, holder string, observer PhaseObserver, events ports.EventPublisher, logger *slog.Logger) *phaseEmitter {
	e := &phaseEmitter{ch: make(chan phaseEvent, 16)}
	pctx := context.WithoutCancel(ctx)
	go func() {
		for ev := range e.ch {
			if observer != nil {
				observer(ev.phase, ev.detail)
			}
			if events != nil {
				if err := events.PublishPhase(pctx, holder, ev.phase, ev.detail); err != nil {
					logger.Warn("Failed to publish phase event", slog.String("phase", string(ev.phase)), slog.String("error", err.Error()))
				}
			}
		}
	}()
	return e
}

func (e *phaseEmitter) send(phase core.Phase, detail core.PhaseDetail) {
	obs.DIDPhaseTotal.WithLabelValues(string(phase)).Inc()
	select {
	case e.ch <- phaseEvent{phase: phase, detail: detail}:
	default:
		// The buffer exceeds the number of phases in a run; a full buffer means a stuck observer
	}
}

func (e *phaseEmitter) close() {
	close(e.ch)
}
