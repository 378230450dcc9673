package crypto

import (
	"crypto/ed25519"
	"fmt"
	"sort"
	"sync"
)

// KeyRing holds a node's own signing keys, supporting rotation without
// invalidating envelopes signed under a previous key: the active key
// signs new envelopes, while all non-revoked keys remain available for
// verifying the node's own historical signatures.
type KeyRing struct {
	mu        sync.RWMutex
	signers   map[string]*Ed25519Signer
	activeKey string
}

// NewKeyRing creates an empty keyring.
func NewKeyRing() *KeyRing {
	return &KeyRing{signers: make(map[string]*Ed25519Signer)}
}

// Rotate generates a fresh keypair, adds it to the ring under keyID, and
// makes it the active signing key.
func (k *KeyRing) Rotate(keyID string) (*Ed25519Signer, error) {
	s, err := NewEd25519Signer(keyID)
	if err != nil {
		return nil, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.signers[keyID] = s
	k.activeKey = keyID
	return s, nil
}

// AddKey registers an existing signer and makes it active.
func (k *KeyRing) AddKey(s *Ed25519Signer) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.signers[s.KeyID()] = s
	k.activeKey = s.KeyID()
}

// RevokeKey removes a key from the ring. If it was active, the
// lexicographically last remaining key (deterministic, not arbitrary
// map order) becomes active.
func (k *KeyRing) RevokeKey(keyID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.signers, keyID)
	if k.activeKey == keyID {
		k.activeKey = k.latestKeyLocked()
	}
}

func (k *KeyRing) latestKeyLocked() string {
	var ids []string
	for id := range k.signers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return ""
	}
	return ids[len(ids)-1]
}

// Active returns the current signing key, or an error if the ring is empty.
func (k *KeyRing) Active() (*Ed25519Signer, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.activeKey == "" {
		return nil, fmt.Errorf("crypto: keyring has no active key")
	}
	s, ok := k.signers[k.activeKey]
	if !ok {
		return nil, fmt.Errorf("crypto: active key %q missing from ring", k.activeKey)
	}
	return s, nil
}

// Sign signs data with the active key, returning the signature and the
// key ID it was signed under.
func (k *KeyRing) Sign(data []byte) (sig []byte, keyID string, err error) {
	s, err := k.Active()
	if err != nil {
		return nil, "", err
	}
	sig, err = s.Sign(data)
	if err != nil {
		return nil, "", err
	}
	return sig, s.KeyID(), nil
}

// VerifyByKeyID verifies a signature against a specific key still present
// in the ring, active or not. A revoked key has been removed from the ring,
// so verifying against it returns an error.
func (k *KeyRing) VerifyByKeyID(keyID string, message, signature []byte) (bool, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	s, ok := k.signers[keyID]
	if !ok {
		return false, fmt.Errorf("crypto: unknown key %q", keyID)
	}
	return Verify(s.PublicKey(), message, signature), nil
}

// PublicKeys returns the set of currently registered public keys by ID,
// for publishing to peers.
func (k *KeyRing) PublicKeys() map[string]ed25519.PublicKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make(map[string]ed25519.PublicKey, len(k.signers))
	for id, s := range k.signers {
		out[id] = s.PublicKey()
	}
	return out
}
