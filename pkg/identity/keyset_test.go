package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

func TestDID_RoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	did := NewDID(pub)
	recovered, err := did.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey failed: %v", err)
	}
	if !pub.Equal(recovered) {
		t.Error("recovered public key does not match original")
	}
}

func TestDID_Malformed(t *testing.T) {
	if _, err := DID("not-a-did").PublicKey(); err == nil {
		t.Error("expected error for malformed DID")
	}
}

func TestRegistry_RegisterLookupWithCapability(t *testing.T) {
	reg := NewRegistry()
	pub, _, _ := ed25519.GenerateKey(rand.Reader)

	rec := reg.Register(pub, []string{"proof:compute", "task:image-classify"})
	if rec.Revoked {
		t.Error("freshly registered peer should not be revoked")
	}

	got, ok := reg.Lookup(rec.DID)
	if !ok {
		t.Fatal("expected to find registered peer")
	}
	if !got.HasCapability("proof:compute") {
		t.Error("expected capability proof:compute")
	}

	matches := reg.WithCapability("proof:compute")
	if len(matches) != 1 || matches[0].DID != rec.DID {
		t.Errorf("expected exactly one match for proof:compute, got %d", len(matches))
	}
}

func TestRegistry_RevokeExcludesFromCapabilityLookup(t *testing.T) {
	reg := NewRegistry()
	pub, _, _ := ed25519.GenerateKey(rand.Reader)
	rec := reg.Register(pub, []string{"proof:compute"})

	reg.Revoke(rec.DID)

	if matches := reg.WithCapability("proof:compute"); len(matches) != 0 {
		t.Errorf("expected revoked peer to be excluded, got %d matches", len(matches))
	}

	got, ok := reg.Lookup(rec.DID)
	if !ok || !got.Revoked {
		t.Error("expected Lookup to still resolve a revoked record, marked Revoked=true")
	}
}

func TestRegistry_SetReputation(t *testing.T) {
	reg := NewRegistry()
	pub, _, _ := ed25519.GenerateKey(rand.Reader)
	rec := reg.Register(pub, nil)

	reg.SetReputation(rec.DID, 0.92)

	got, _ := reg.Lookup(rec.DID)
	if got.Reputation != 0.92 {
		t.Errorf("expected reputation 0.92, got %v", got.Reputation)
	}
}
