package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Signer produces Ed25519 signatures over arbitrary canonical bytes.
// Envelope, plan-op, and checkpoint signing all go through this interface
// so that HSM-backed or in-memory key material is interchangeable.
type Signer interface {
	Sign(data []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
	KeyID() string
}

// Ed25519Signer is an in-memory Ed25519 keypair.
type Ed25519Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
	keyID   string
}

// NewEd25519Signer generates a fresh keypair.
func NewEd25519Signer(keyID string) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Ed25519Signer{privKey: priv, pubKey: pub, keyID: keyID}, nil
}

// NewEd25519SignerFromKey wraps an existing private key.
func NewEd25519SignerFromKey(priv ed25519.PrivateKey, keyID string) *Ed25519Signer {
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
		keyID:   keyID,
	}
}

func (s *Ed25519Signer) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(s.privKey, data), nil
}

func (s *Ed25519Signer) PublicKey() ed25519.PublicKey { return s.pubKey }
func (s *Ed25519Signer) KeyID() string                { return s.keyID }

// PublicKeyHex returns the signer's public key as lowercase hex, the wire
// encoding used for sender_pk and verifier DIDs.
func (s *Ed25519Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.pubKey)
}

// Verify checks a raw Ed25519 signature against a public key.
func Verify(pubKey ed25519.PublicKey, message, signature []byte) bool {
	if len(pubKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pubKey, message, signature)
}

// VerifyHex checks a signature expressed as hex-encoded public key and
// signature bytes, as they travel over the wire.
func VerifyHex(pubKeyHex, sigHex string, message []byte) (bool, error) {
	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("invalid public key hex: %w", err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid public key size: %d", len(pubKey))
	}
	return ed25519.Verify(pubKey, message, sig), nil
}
