package service

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/ports"
)

type fakeAuth struct {
	mu        sync.Mutex
	calls     atomic.Int32
	release   chan struct{}
	cred      core.AccessCredential
	err       error
	profile   *core.Profile
	loginCred core.AccessCredential
	loginNext core.NextStep
	loggedOut bool
}

func (f *fakeAuth) Refresh(ctx context.Context) (core.AccessCredential, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return core.AccessCredential{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cred, f.err
}

func (f *fakeAuth) ExchangeLoginCode(ctx context.Context, code string) (core.AccessCredential, core.NextStep, error) {
	if code == "bad" {
		return core.AccessCredential{}, "", &core.ServiceError{Status: 400, Code: "INVALID_CODE"}
	}
	return f.loginCred, f.loginNext, nil
}

func (f *fakeAuth) Me(ctx context.Context, token string) (*core.Profile, error) {
	if f.profile == nil {
		return nil, core.ErrNotFound
	}
	return f.profile, nil
}

func (f *fakeAuth) Logout(ctx context.Context) error {
	f.loggedOut = true
	return errors.New("server gone")
}

// countingStore wraps the memory store and counts loads
type countingStore struct {
	ports.CredentialStore
	loads atomic.Int32
}

func (s *countingStore) Load(ctx context.Context) (core.AccessCredential, bool, error) {
	s.loads.Add(1)
	return s.CredentialStore.Load(ctx)
}

// fakeWallet signs deterministically: a message signature is sha256(prefix|msg)
type fakeWallet struct {
	address string
	caps    ports.Capability

	mu        sync.Mutex
	active    int
	maxActive int
	signed    [][]byte
	sendErr   error
	signErr   error
	block     chan struct{}
}

func (w *fakeWallet) Connect(ctx context.Context) (string, error) { return w.address, nil }
func (w *fakeWallet) Address() string                             { return w.address }
func (w *fakeWallet) Capabilities() ports.Capability              { return w.caps }

func (w *fakeWallet) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if !w.caps.Has(ports.CanSignMessage) {
		return nil, core.ErrWalletCapabilityMissing
	}
	sum := sha256.Sum256(append([]byte(w.address+"|"), msg...))
	return sum[:], nil
}

func (w *fakeWallet) enter() func() {
	w.mu.Lock()
	w.active++
	if w.active > w.maxActive {
		w.maxActive = w.active
	}
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		w.active--
		w.mu.Unlock()
	}
}

func (w *fakeWallet) SignTransaction(ctx context.Context, unsigned []byte) ([]byte, error) {
	if !w.caps.Has(ports.CanSignTransaction) {
		return nil, core.ErrWalletCapabilityMissing
	}
	defer w.enter()()
	if w.block != nil {
		<-w.block
	}
	if w.signErr != nil {
		return nil, w.signErr
	}
	w.mu.Lock()
	w.signed = append(w.signed, unsigned)
	w.mu.Unlock()
	return append([]byte("signed:"), unsigned...), nil
}

func (w *fakeWallet) SignAndSendTransaction(ctx context.Context, unsigned []byte) (string, error) {
	if !w.caps.Has(ports.CanSignAndSend) {
		return "", core.ErrWalletCapabilityMissing
	}
	defer w.enter()()
	if w.sendErr != nil {
		return "", w.sendErr
	}
	w.mu.Lock()
	w.signed = append(w.signed, unsigned)
	w.mu.Unlock()
	return fmt.Sprintf("sig-%x", sha256.Sum256(unsigned)), nil
}

func (w *fakeWallet) signedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.signed)
}

// fakeNetwork confirms a signature after confirmAfter polls
type fakeNetwork struct {
	mu           sync.Mutex
	sent         [][]byte
	polls        map[string]int
	confirmAfter int
	never        bool
	failed       bool
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{polls: make(map[string]int)}
}

func (n *fakeNetwork) SendRawTransaction(ctx context.Context, signed []byte) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, signed)
	return fmt.Sprintf("tx-%d", len(n.sent)), nil
}

func (n *fakeNetwork) Confirmed(ctx context.Context, signature string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failed {
		return false, core.ErrTransactionFailed
	}
	n.polls[signature]++
	if n.never {
		return false, nil
	}
	return n.polls[signature] > n.confirmAfter, nil
}

// fakeChain prepares deterministic transactions
type fakeChain struct {
	mu       sync.Mutex
	intents  []core.TxIntent
	err      error
	empty    bool
	contract map[string]any
	counter  int
}

func (c *fakeChain) Prepare(ctx context.Context, intent core.TxIntent) (*core.PreparedTransaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intents = append(c.intents, intent)
	if c.err != nil {
		return nil, c.err
	}
	c.counter++
	env := core.ChainTransactionEnvelope{
		UnsignedPayload: []byte(fmt.Sprintf("%s-%d", intent.Kind(), c.counter)),
		NetworkID:       "31337",
		FeePayer:        "0xfee",
	}
	if c.empty {
		env.UnsignedPayload = nil
	}
	prep := &core.PreparedTransaction{Envelope: env, Descriptor: core.DescriptorFor("ethereum", env)}
	if intent.Kind() == core.IntentContractCreate {
		prep.ContractAddress = fmt.Sprintf("CONTRACT%d", c.counter)
		prep.EscrowAddress = fmt.Sprintf("ESCROW%d", c.counter)
	}
	return prep, nil
}

func (c *fakeChain) LoadContract(ctx context.Context, address string) (map[string]any, error) {
	if c.contract == nil {
		return nil, core.ErrNotFound
	}
	return c.contract, nil
}

func (c *fakeChain) kinds() []core.IntentKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	var kinds []core.IntentKind
	for _, i := range c.intents {
		kinds = append(kinds, i.Kind())
	}
	return kinds
}

type fakeNotifier struct {
	mu    sync.Mutex
	links []core.ContractNotificationLink
	err   error
}

func (n *fakeNotifier) NotifyContractRequest(ctx context.Context, link core.ContractNotificationLink) error {
	if n.err != nil {
		return n.err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links = append(n.links, link)
	return nil
}
