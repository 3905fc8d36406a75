package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentbridge/trustlayer/adapters/store"
	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/credential"
	"github.com/talentbridge/trustlayer/ports"
)

type fakeVerifier struct {
	mu          sync.Mutex
	statusErr   error
	hasIdentity bool
	challenge   any
	verifyErr   error
	verified    []core.VerifyRequest
	inits, vms  int
	bindings    []core.WalletBinding
	bindCred    *core.AccessCredential
	marked      []string
	gate        chan struct{}
}

func (v *fakeVerifier) IssueNonce(ctx context.Context, address string) (core.NonceGrant, error) {
	return core.NonceGrant{Nonce: "bind-nonce", ExpiresIn: time.Minute}, nil
}

func (v *fakeVerifier) BindWallet(ctx context.Context, b core.WalletBinding) (*core.AccessCredential, error) {
	v.bindings = append(v.bindings, b)
	return v.bindCred, nil
}

func (v *fakeVerifier) MarkVerified(ctx context.Context, did string) error {
	v.marked = append(v.marked, did)
	return nil
}

func (v *fakeVerifier) Status(ctx context.Context, holder string) (core.IdentityStatus, error) {
	if v.gate != nil {
		<-v.gate
	}
	if v.statusErr != nil {
		return core.IdentityStatus{}, v.statusErr
	}
	if !v.hasIdentity {
		return core.IdentityStatus{}, core.ErrIdentityNotFound
	}
	return core.IdentityStatus{HasIdentity: true, Identifier: "did:eth:" + holder}, nil
}

func (v *fakeVerifier) IssueChallenge(ctx context.Context, holder, domain string) (any, error) {
	return v.challenge, nil
}

func (v *fakeVerifier) VerifyChallenge(ctx context.Context, req core.VerifyRequest) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.verified = append(v.verified, req)
	return v.verifyErr
}

func (v *fakeVerifier) InitIdentity(ctx context.Context, holder string) error {
	v.inits++
	return nil
}

func (v *fakeVerifier) AddVerificationMethod(ctx context.Context, holder string) error {
	v.vms++
	return nil
}

// phaseRecorder collects observer calls
type phaseRecorder struct {
	mu     sync.Mutex
	phases []core.Phase
	detail []core.PhaseDetail
	done   chan struct{}
}

func newPhaseRecorder() *phaseRecorder {
	return &phaseRecorder{done: make(chan struct{})}
}

func (r *phaseRecorder) observe(p core.Phase, d core.PhaseDetail) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, p)
	r.detail = append(r.detail, d)
	if p.Terminal() {
		close(r.done)
	}
}

func (r *phaseRecorder) wait(t *testing.T) []core.Phase {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(time.Second):
		t.Fatal("observer never saw a terminal phase")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Phase(nil), r.phases...)
}

func nestedChallenge(nonce string) any {
	return map[string]any{
		"ok":        true,
		"domain":    "app.example",
		"challenge": map[string]any{"purpose": "did-auth"},
		"data":      map[string]any{"auth": map[string]any{"sessionNonce": nonce}},
	}
}

func messageWallet() *fakeWallet {
	return &fakeWallet{address: "0xholder", caps: ports.CanSignMessage | ports.CanSignTransaction}
}

func TestAuthenticateExistingIdentity(t *testing.T) {
	verifier := &fakeVerifier{hasIdentity: true, challenge: nestedChallenge("abc")}
	rec := newPhaseRecorder()
	a := NewAuthenticator(verifier, verifier, messageWallet(), WithAuthClock(func() time.Time { return testNow }))

	res, err := a.Authenticate(context.Background(), rec.observe)
	require.NoError(t, err)

	assert.Equal(t, []core.Phase{
		core.PhaseCheckingStatus,
		core.PhaseChallengeIssued,
		core.PhaseSigning,
		core.PhaseVerifying,
		core.PhaseSuccess,
	}, rec.wait(t))
	assert.Zero(t, verifier.inits)

	assert.Equal(t, "abc", res.Nonce)
	assert.Equal(t, "app.example", res.Domain, "verifier supplied domain wins")
	assert.Equal(t, "did:eth:0xholder", res.Holder.Identifier)

	require.Len(t, verifier.verified, 1)
	req := verifier.verified[0]
	assert.Equal(t, "abc", req.Nonce)

	vp, err := credential.Parse(req.VP)
	require.NoError(t, err)
	vc, ok := credential.EmbeddedCredential(vp)
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{
		"id":        "0xholder",
		"domain":    "app.example",
		"nonce":     "abc",
		"challenge": map[string]interface{}{"purpose": "did-auth"},
	}, vc["credentialSubject"])
}

func TestAuthenticateInitializesMissingIdentity(t *testing.T) {
	verifier := &fakeVerifier{challenge: nestedChallenge("abc")}
	rec := newPhaseRecorder()
	a := NewAuthenticator(verifier, verifier, messageWallet())

	_, err := a.Authenticate(context.Background(), rec.observe)
	require.NoError(t, err)

	phases := rec.wait(t)
	assert.Equal(t, core.PhaseInitializingIdentity, phases[1])
	assert.Equal(t, 1, verifier.inits)
	assert.Equal(t, 1, verifier.vms)
}

func TestAuthenticateOnChainRegistration(t *testing.T) {
	verifier := &fakeVerifier{challenge: nestedChallenge("abc")}
	chain := &fakeChain{}
	adapter := newTestAdapter(chain, newFakeNetwork())
	wallet := messageWallet()

	a := NewAuthenticator(verifier, NewChainRegistrar(adapter, wallet, verifier), wallet)
	_, err := a.Authenticate(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []core.IntentKind{core.IntentDIDInit}, chain.kinds())
	assert.Equal(t, 1, wallet.signedCount())
	assert.Equal(t, 1, verifier.vms)
}

func TestAuthenticateErrors(t *testing.T) {
	tests := []struct {
		name     string
		verifier *fakeVerifier
		wallet   *fakeWallet
		wantErr  error
	}{
		{
			name:     "transport failure on status",
			verifier: &fakeVerifier{statusErr: errors.New("connection reset"), challenge: nestedChallenge("abc")},
			wallet:   messageWallet(),
		},
		{
			name:     "nonce missing",
			verifier: &fakeVerifier{hasIdentity: true, challenge: map[string]any{"data": map[string]any{"token": "x"}}},
			wallet:   messageWallet(),
			wantErr:  core.ErrChallengeNonceMissing,
		},
		{
			name:     "verifier rejects",
			verifier: &fakeVerifier{hasIdentity: true, challenge: nestedChallenge("abc"), verifyErr: &core.ServiceError{Status: 401, Code: "NONCE_EXPIRED"}},
			wallet:   messageWallet(),
		},
		{
			name:     "wallet cannot sign messages",
			verifier: &fakeVerifier{hasIdentity: true, challenge: nestedChallenge("abc")},
			wallet:   &fakeWallet{address: "0xholder", caps: ports.CanSignTransaction},
			wantErr:  core.ErrMessageSigningUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newPhaseRecorder()
			_, err := NewAuthenticator(tt.verifier, tt.verifier, tt.wallet).Authenticate(context.Background(), rec.observe)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}

			phases := rec.wait(t)
			assert.Equal(t, core.PhaseError, phases[len(phases)-1])
			rec.mu.Lock()
			assert.Equal(t, err.Error(), rec.detail[len(rec.detail)-1].Message)
			rec.mu.Unlock()
		})
	}
}

func TestAuthenticateRejectsOverlappingRuns(t *testing.T) {
	verifier := &fakeVerifier{hasIdentity: true, challenge: nestedChallenge("abc"), gate: make(chan struct{})}
	a := NewAuthenticator(verifier, verifier, messageWallet())

	errs := make(chan error, 1)
	go func() {
		_, err := a.Authenticate(context.Background(), nil)
		errs <- err
	}()

	require.Eventually(t, func() bool { return a.running.Load() }, time.Second, time.Millisecond)
	_, err := a.Authenticate(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrFlowInProgress)

	close(verifier.gate)
	require.NoError(t, <-errs)
}

func TestAuthenticateSlowObserverDoesNotBlock(t *testing.T) {
	verifier := &fakeVerifier{hasIdentity: true, challenge: nestedChallenge("abc")}
	release := make(chan struct{})
	a := NewAuthenticator(verifier, verifier, messageWallet())

	done := make(chan error, 1)
	go func() {
		_, err := a.Authenticate(context.Background(), func(core.Phase, core.PhaseDetail) { <-release })
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("flow waited on the observer")
	}
	close(release)
}

func TestBindWallet(t *testing.T) {
	ctx := context.Background()
	bound := &core.AccessCredential{Token: "bound", ExpiresAt: testNow.Unix() + 600}
	verifier := &fakeVerifier{bindCred: bound}
	st := &countingStore{CredentialStore: store.NewMemoryCredentialStore()}
	tokens := newTestTokenManager(&fakeAuth{}, st)
	wallet := messageWallet()

	a := NewAuthenticator(verifier, verifier, wallet, WithTokenManager(tokens), WithDIDMethod("sol"))
	holder, err := a.BindWallet(ctx)
	require.NoError(t, err)
	assert.Equal(t, "did:sol:0xholder", holder.Identifier)

	require.Len(t, verifier.bindings, 1)
	b := verifier.bindings[0]
	sig, err := base58.Decode(b.SignatureBase58)
	require.NoError(t, err)
	want, _ := wallet.SignMessage(ctx, []byte("bind-nonce"))
	assert.Equal(t, want, sig)

	got, ok, err := st.CredentialStore.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, *bound, got)
}

func TestMarkVerified(t *testing.T) {
	verifier := &fakeVerifier{}
	a := NewAuthenticator(verifier, verifier, messageWallet())

	assert.ErrorIs(t, a.MarkVerified(context.Background(), ""), core.ErrDIDRequired)
	require.NoError(t, a.MarkVerified(context.Background(), "did:eth:0xholder"))
	assert.Equal(t, []string{"did:eth:0xholder"}, verifier.marked)
}

func TestVerifyRequestCarriesJSON(t *testing.T) {
	verifier := &fakeVerifier{hasIdentity: true, challenge: nestedChallenge("abc")}
	_, err := NewAuthenticator(verifier, verifier, messageWallet()).Authenticate(context.Background(), nil)
	require.NoError(t, err)

	body, err := json.Marshal(verifier.verified[0])
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.IsType(t, map[string]any{}, decoded["vc"])
	assert.IsType(t, map[string]any{}, decoded["vp"])
}

func TestIssueChallengeReadsFieldsBesideNonce(t *testing.T) {
	sandboxShaped := map[string]any{
		"ok":     true,
		"domain": "app.example",
		"data": map[string]any{"challenge": map[string]any{
			"holder":       "0xholder",
			"domain":       "other.example",
			"sessionNonce": "abc",
			"expiresIn":    float64(300),
		}},
	}
	a := NewAuthenticator(&fakeVerifier{challenge: sandboxShaped}, nil, messageWallet())

	c, err := a.issueChallenge(context.Background(), "0xholder")
	require.NoError(t, err)
	assert.Equal(t, "abc", c.Nonce)
	assert.Equal(t, "app.example", c.Domain, "top-level domain wins")
	assert.Equal(t, 5*time.Minute, c.ExpiresIn)
	assert.Equal(t, sandboxShaped["data"].(map[string]any)["challenge"], c.Payload)

	flat := map[string]any{
		"expiresIn": 60,
		"challenge": "opaque",
		"data":      map[string]any{"sessionNonce": "xyz", "expiresIn": float64(10), "challenge": "inner"},
	}
	a = NewAuthenticator(&fakeVerifier{challenge: flat}, nil, messageWallet(), WithDomain("mine.example"))
	c, err = a.issueChallenge(context.Background(), "0xholder")
	require.NoError(t, err)
	assert.Equal(t, "mine.example", c.Domain)
	assert.Equal(t, time.Minute, c.ExpiresIn)
	assert.Equal(t, "opaque", c.Payload)
}
