// Package identity is the swarm's peer identity and capability registry:
// every agent is addressed by a DID derived from its Ed25519 public key,
// and the registry tracks which capability tags and reputation standing
// that DID currently carries, per the Verifier Record in spec.md §4.4 and
// the peer discovery model in §4.13.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// DID is a "did:swarm:<hex-ed25519-pubkey>" identifier.
type DID string

// NewDID derives a DID from a public key.
func NewDID(pub ed25519.PublicKey) DID {
	return DID("did:swarm:" + hex.EncodeToString(pub))
}

// PublicKey recovers the raw Ed25519 public key embedded in a DID.
func (d DID) PublicKey() (ed25519.PublicKey, error) {
	const prefix = "did:swarm:"
	s := string(d)
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return nil, fmt.Errorf("identity: malformed DID %q", d)
	}
	b, err := hex.DecodeString(s[len(prefix):])
	if err != nil {
		return nil, fmt.Errorf("identity: malformed DID %q: %w", d, err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("identity: DID %q has wrong key length", d)
	}
	return ed25519.PublicKey(b), nil
}

// Record is a registered peer: its public key, the capability tags it
// advertises (task classes it can bid on, proof types it can verify), and
// when it was last seen alive.
type Record struct {
	DID          DID
	PublicKey    ed25519.PublicKey
	Capabilities []string
	Reputation   float64
	RegisteredAt time.Time
	LastSeen     time.Time
	Revoked      bool
}

// HasCapability reports whether the record advertises tag.
func (r Record) HasCapability(tag string) bool {
	for _, c := range r.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// Registry is the in-process peer directory used by the auction, lease,
// and challenge-verifier selection paths to resolve a DID to its public
// key and capability set.
type Registry struct {
	mu      sync.RWMutex
	records map[DID]*Record
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[DID]*Record)}
}

// Register adds or updates a peer's record. Capabilities fully replace
// whatever was previously advertised, matching how a fresh PEER_ANNOUNCE
// supersedes the last one.
func (r *Registry) Register(pub ed25519.PublicKey, capabilities []string) Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	did := NewDID(pub)
	now := time.Now()
	rec, exists := r.records[did]
	if !exists {
		rec = &Record{DID: did, PublicKey: pub, RegisteredAt: now}
		r.records[did] = rec
	}
	rec.Capabilities = capabilities
	rec.LastSeen = now
	rec.Revoked = false
	return *rec
}

// Touch refreshes LastSeen for a peer without changing its capabilities,
// used on every envelope received from that sender.
func (r *Registry) Touch(did DID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[did]; ok {
		rec.LastSeen = time.Now()
	}
}

// Revoke marks a peer's key as no longer trusted; subsequent Lookup calls
// still resolve it (so historical signatures remain verifiable) but
// callers should treat Revoked records as ineligible for new work.
func (r *Registry) Revoke(did DID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[did]; ok {
		rec.Revoked = true
	}
}

// Lookup returns the record for did, if known.
func (r *Registry) Lookup(did DID) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[did]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// WithCapability returns all non-revoked peers advertising tag, the set
// the auction coordinator draws bidders from.
func (r *Registry) WithCapability(tag string) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Record
	for _, rec := range r.records {
		if !rec.Revoked && rec.HasCapability(tag) {
			out = append(out, *rec)
		}
	}
	return out
}

// SetReputation updates a peer's reputation score, driven by the stake
// subsystem's reputation-event ledger.
func (r *Registry) SetReputation(did DID, score float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[did]; ok {
		rec.Reputation = score
	}
}
