package checkpoint

import (
	"encoding/hex"
	"fmt"

	"github.com/swarmmesh/substrate/pkg/crypto"
)

// RequiredQuorum returns the BFT-style ceil(2n/3) signature threshold for
// a registered verifier pool of size activeVerifiers, per DESIGN.md's
// checkpoint-signature-quorum Open Question decision.
func RequiredQuorum(activeVerifiers int) int {
	if activeVerifiers <= 0 {
		return 0
	}
	return (2*activeVerifiers + 2) / 3
}

// VerifierKeys maps a verifier's DID/account id to its known Ed25519
// public key, used to authenticate each SignedCheckpoint.Signature before
// it counts toward quorum.
type VerifierKeys map[string]*crypto.Ed25519Verifier

// VerifyQuorum recomputes checkpoint's hash, authenticates every claimed
// signature against keys, and reports whether the count of
// cryptographically valid, distinct-verifier signatures meets
// RequiredQuorum(activeVerifiers). Unknown verifiers and bad signatures
// are silently excluded rather than rejecting the whole checkpoint,
// matching a permissive quorum count (a malicious/incorrect submitter
// just doesn't get counted).
func VerifyQuorum(signed SignedCheckpoint, keys VerifierKeys, activeVerifiers int) (bool, error) {
	hash, err := signed.Checkpoint.ComputeHash()
	if err != nil {
		return false, fmt.Errorf("checkpoint: quorum hash: %w", err)
	}

	seen := make(map[string]bool)
	valid := 0
	for _, sig := range signed.Signatures {
		if seen[sig.VerifierID] {
			continue
		}
		verifier, ok := keys[sig.VerifierID]
		if !ok {
			continue
		}
		sigBytes, err := hex.DecodeString(sig.SigHex)
		if err != nil {
			continue
		}
		if verifier.Verify([]byte(hash), sigBytes) {
			seen[sig.VerifierID] = true
			valid++
		}
	}

	return valid >= RequiredQuorum(activeVerifiers), nil
}
