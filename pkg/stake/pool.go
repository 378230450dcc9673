package stake

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/swarmmesh/substrate/pkg/swarmerr"
)

// Metadata carries diversity-aware committee-selection attributes for a
// verifier, per spec.md §4.4/§3 Verifier Record.
type Metadata struct {
	OrgID       string
	ASN         string
	Region      string
	Reputation  float64 // 0.0-1.0
	TEEVerified bool
}

// Record is a pool member's complete registration.
type Record struct {
	VerifierID     string // account id / DID
	Stake          int64  // stake at registration time (ActiveVerifiers returns copies refreshed to live stake)
	Capabilities   []string
	Metadata       Metadata
	RegisteredAt   time.Time
	Active         bool
}

// Pool manages verifier pool registration, keyed by DID/account id, with
// live stake validated against a Manager.
type Pool struct {
	mu      sync.RWMutex
	manager *Manager
	members map[string]*Record
}

func NewPool(manager *Manager) *Pool {
	return &Pool{manager: manager, members: make(map[string]*Record)}
}

// Register adds or re-registers a verifier. The claimed stake must not
// exceed the verifier's current live staked amount (StakeMismatch).
func (p *Pool) Register(verifierID string, claimedStake int64, capabilities []string, meta Metadata) error {
	if meta.Reputation < 0 || meta.Reputation > 1 {
		return fmt.Errorf("stake: reputation must be in [0,1], got %f", meta.Reputation)
	}
	current := p.manager.GetStakedAmount(verifierID)
	if current < claimedStake {
		return swarmerr.Wrap(swarmerr.StakeMismatch, fmt.Errorf("%w: claimed %d, actual %d", ErrStakeMismatch, claimedStake, current))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.members[verifierID] = &Record{
		VerifierID: verifierID, Stake: claimedStake, Capabilities: capabilities,
		Metadata: meta, RegisteredAt: time.Now(), Active: true,
	}
	return nil
}

// Deregister is a soft delete: the record remains queryable but inactive.
func (p *Pool) Deregister(verifierID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.members[verifierID]
	if !ok {
		return fmt.Errorf("stake: verifier %s not found", verifierID)
	}
	r.Active = false
	return nil
}

func (p *Pool) Get(verifierID string) (Record, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.members[verifierID]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

func (p *Pool) UpdateCapabilities(verifierID string, capabilities []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.members[verifierID]
	if !ok {
		return fmt.Errorf("stake: verifier %s not found", verifierID)
	}
	r.Capabilities = capabilities
	return nil
}

func (p *Pool) UpdateReputation(verifierID string, reputation float64) error {
	if reputation < 0 || reputation > 1 {
		return fmt.Errorf("stake: reputation must be in [0,1], got %f", reputation)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.members[verifierID]
	if !ok {
		return fmt.Errorf("stake: verifier %s not found", verifierID)
	}
	r.Metadata.Reputation = reputation
	return nil
}

// Members returns all registered verifiers, or only the active ones when
// activeOnly is set, ordered newest-registration-first.
func (p *Pool) Members(activeOnly bool) []Record {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Record, 0, len(p.members))
	for _, r := range p.members {
		if activeOnly && !r.Active {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.After(out[j].RegisteredAt) })
	return out
}

// ActiveVerifiers queries live stake per active member and filters by
// minStake, refreshing each record's Stake field to the live value.
func (p *Pool) ActiveVerifiers(minStake int64) []Record {
	active := p.Members(true)
	out := make([]Record, 0, len(active))
	for _, r := range active {
		live := p.manager.GetStakedAmount(r.VerifierID)
		if live >= minStake {
			r.Stake = live
			out = append(out, r)
		}
	}
	return out
}
