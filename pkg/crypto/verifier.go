package crypto

import (
	"crypto/ed25519"
	"fmt"
)

// Ed25519Verifier verifies signatures against a single fixed public key.
// Envelope verification, where sender_pk travels with the message, more
// often goes through the free VerifyHex function directly; this type is
// for components (e.g. a checkpoint quorum check) that hold a known,
// long-lived verifier public key.
type Ed25519Verifier struct {
	PublicKey ed25519.PublicKey
}

// NewEd25519Verifier wraps a raw public key.
func NewEd25519Verifier(pubKeyBytes []byte) (*Ed25519Verifier, error) {
	if len(pubKeyBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key size: %d", len(pubKeyBytes))
	}
	return &Ed25519Verifier{PublicKey: ed25519.PublicKey(pubKeyBytes)}, nil
}

func (v *Ed25519Verifier) Verify(message, signature []byte) bool {
	return ed25519.Verify(v.PublicKey, message, signature)
}
