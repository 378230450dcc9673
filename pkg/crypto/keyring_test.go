package crypto

import (
	"testing"
)

func TestKeyRing_DeterministicActiveKey(t *testing.T) {
	kr := NewKeyRing()

	k1, _ := NewEd25519Signer("key1")
	k2, _ := NewEd25519Signer("key2")
	k3, _ := NewEd25519Signer("key3")

	kr.AddKey(k1)
	kr.AddKey(k2)
	kr.AddKey(k3)

	msg := []byte("ring message")
	sig, keyID, err := kr.Sign(msg)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if keyID != "key3" {
		t.Errorf("expected active key key3 (most recently added), got %s", keyID)
	}

	valid, err := kr.VerifyByKeyID(keyID, msg, sig)
	if err != nil {
		t.Fatalf("VerifyByKeyID failed: %v", err)
	}
	if !valid {
		t.Error("expected signature to verify")
	}
}

func TestKeyRing_RevokeFallsBackToLexicographicallyLast(t *testing.T) {
	kr := NewKeyRing()
	k1, _ := NewEd25519Signer("key1")
	k2, _ := NewEd25519Signer("key2")
	kr.AddKey(k1)
	kr.AddKey(k2)

	kr.RevokeKey("key2")

	active, err := kr.Active()
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if active.KeyID() != "key1" {
		t.Errorf("expected fallback to key1 after revoking key2, got %s", active.KeyID())
	}

	// Revoking removes the key from the ring, so verification against it
	// is no longer possible.
	if _, err := kr.VerifyByKeyID("key2", []byte("x"), []byte("y")); err == nil {
		t.Error("expected error verifying against a fully removed key")
	}
}

func TestKeyRing_VerifyByKeyID_UnknownKey(t *testing.T) {
	kr := NewKeyRing()
	k1, _ := NewEd25519Signer("key1")
	kr.AddKey(k1)

	msg := []byte("hello world")
	sig, err := k1.Sign(msg)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	valid, err := kr.VerifyByKeyID("key1", msg, sig)
	if err != nil {
		t.Fatalf("VerifyByKeyID failed: %v", err)
	}
	if !valid {
		t.Error("expected valid signature")
	}

	if _, err := kr.VerifyByKeyID("unknown", msg, sig); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestKeyRing_EmptyRingHasNoActiveKey(t *testing.T) {
	kr := NewKeyRing()
	if _, err := kr.Active(); err == nil {
		t.Error("expected error from empty keyring")
	}
	if _, _, err := kr.Sign([]byte("x")); err == nil {
		t.Error("expected sign to fail on empty keyring")
	}
}
