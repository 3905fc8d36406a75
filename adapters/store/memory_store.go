package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/ports"
)

// Well-known storage keys for the access credential
const (
	KeyAccessToken = "accessToken"
	KeyAccessExp   = "accessExp"
)

// MemoryCredentialStore keeps the credential in process memory
type MemoryCredentialStore struct {
	values map[string]string
	mu     sync.RWMutex
}

// NewMemoryCredentialStore creates an empty credential store
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{values: make(map[string]string)}
}

var _ ports.CredentialStore = (*MemoryCredentialStore)(nil)

// Save replaces both keys at once
func (s *MemoryCredentialStore) Save(ctx context.Context, cred core.AccessCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[KeyAccessToken] = cred.Token
	s.values[KeyAccessExp] = strconv.FormatInt(cred.ExpiresAt, 10)
	return nil
}

// Load returns the stored credential if both keys are present and parseable
func (s *MemoryCredentialStore) Load(ctx context.Context) (core.AccessCredential, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return decodeCredential(s.values[KeyAccessToken], s.values[KeyAccessExp])
}

// Clear removes both keys
func (s *MemoryCredentialStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, KeyAccessToken)
	delete(s.values, KeyAccessExp)
	return nil
}

func decodeCredential(token, exp string) (core.AccessCredential, bool, error) {
	if token == "" || exp == "" {
		return core.AccessCredential{}, false, nil
	}
	expiresAt, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		// A corrupt expiry is treated as no credential at all
		return core.AccessCredential{}, false, nil
	}
	return core.AccessCredential{Token: token, ExpiresAt: expiresAt}, true, nil
}

// MemoryRevocationStore is an in-memory implementation of ports.RevocationStore
type MemoryRevocationStore struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
}

// NewMemoryRevocationStore creates a new in-memory revocation store
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{revoked: make(map[string]time.Time)}
}

// Revoke marks a token as revoked until expiry elapses
func (s *MemoryRevocationStore) Revoke(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiryTime := time.Now().Add(expiry)
	s.revoked[tokenID] = expiryTime

	time.AfterFunc(expiry, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		// Only delete if the entry was not extended meanwhile
		if stored, exists := s.revoked[tokenID]; exists && !stored.After(expiryTime) {
			delete(s.revoked, tokenID)
		}
	})

	return nil
}

// IsRevoked checks if a token is revoked
func (s *MemoryRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiryTime, exists := s.revoked[tokenID]
	if !exists {
		return false, nil
	}
	return time.Now().Before(expiryTime), nil
}

type nonceEntry struct {
	holder    string
	expiresAt time.Time
}

// MemoryNonceLedger is an in-memory implementation of ports.NonceLedger
type MemoryNonceLedger struct {
	nonces map[string]nonceEntry
	now    func() time.Time
	mu     sync.Mutex
}

// NewMemoryNonceLedger creates an empty ledger
func NewMemoryNonceLedger() *MemoryNonceLedger {
	return &MemoryNonceLedger{nonces: make(map[string]nonceEntry), now: time.Now}
}

// Remember records a freshly issued nonce
func (l *MemoryNonceLedger) Remember(ctx context.Context, nonce, holder string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, e := range l.nonces {
		if !now.Before(e.expiresAt) {
			delete(l.nonces, k)
		}
	}
	l.nonces[nonce] = nonceEntry{holder: holder, expiresAt: now.Add(ttl)}
	return nil
}

// Consume removes the nonce and returns its holder
func (l *MemoryNonceLedger) Consume(ctx context.Context, nonce string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.nonces[nonce]
	if !ok {
		return "", core.ErrInvalidChallenge
	}
	delete(l.nonces, nonce)
	if !l.now().Before(e.expiresAt) {
		return "", core.ErrInvalidChallenge
	}
	return e.holder, nil
}

// MemoryContractRepository keeps contract records in memory
type MemoryContractRepository struct {
	contracts map[string]core.ContractEscrow
	mu        sync.RWMutex
}

// NewMemoryContractRepository creates an empty repository
func NewMemoryContractRepository() *MemoryContractRepository {
	return &MemoryContractRepository{contracts: make(map[string]core.ContractEscrow)}
}

// Get returns a copy of the stored record
func (r *MemoryContractRepository) Get(ctx context.Context, id string) (*core.ContractEscrow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.contracts[id]
	if !ok {
		return nil, core.ErrContractNotFound
	}
	return &c, nil
}

// Save stores a copy of c
func (r *MemoryContractRepository) Save(ctx context.Context, c *core.ContractEscrow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.contracts[c.ID] = *c
	return nil
}

func (r *MemoryContractRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.contracts, id)
	return nil
}
