package sandbox

import (
	"strings"
	"sync"

	"github.com/talentbridge/trustlayer/core"
)

// Accounts is the sandbox's user directory
type Accounts struct {
	mu       sync.RWMutex
	profiles map[string]core.Profile
}

func NewAccounts() *Accounts {
	return &Accounts{profiles: make(map[string]core.Profile)}
}

// Ensure creates the account if it does not exist and returns it
func (a *Accounts) Ensure(userID string) core.Profile {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.profiles[userID]
	if !ok {
		p = core.Profile{UserID: userID}
		a.profiles[userID] = p
	}
	return p
}

func (a *Accounts) Get(userID string) (core.Profile, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.profiles[userID]
	return p, ok
}

// Update applies fn to an existing account
func (a *Accounts) Update(userID string, fn func(p *core.Profile)) (core.Profile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.profiles[userID]
	if !ok {
		return core.Profile{}, core.ErrNotFound
	}
	fn(&p)
	a.profiles[userID] = p
	return p, nil
}

// ByAddress finds the account a wallet is bound to
func (a *Accounts) ByAddress(address string) (core.Profile, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, p := range a.profiles {
		if p.Address != "" && strings.EqualFold(p.Address, address) {
			return p, true
		}
	}
	return core.Profile{}, false
}
