// Package challenge implements the Challenge Protocol (spec.md §4.10):
// bonded proof submission against a committed task, deterministic gas
// metered verification, verdict aggregation with escalation, and
// outcome-driven bond distribution. Grounded on
// original_source/src/challenges/verification.py and
// original_source/tests/test_challenges.py (which pins the proof schema
// and window behavior against a challenges/proofs.py and
// challenges/window.py that are themselves absent from the retrieval
// pack — reconstructed here from the test's assertions and spec.md).
package challenge

import (
	"errors"
	"regexp"
)

// ProofType is the kind of evidence a challenger submits against a
// committed task.
type ProofType string

const (
	ProofSchemaViolation       ProofType = "SCHEMA_VIOLATION"
	ProofMissingCitation       ProofType = "MISSING_CITATION"
	ProofSemanticContradiction ProofType = "SEMANTIC_CONTRADICTION"
	ProofOutputMismatch        ProofType = "OUTPUT_MISMATCH"
	ProofPolicyBreach          ProofType = "POLICY_BREACH"
)

func (p ProofType) valid() bool {
	switch p {
	case ProofSchemaViolation, ProofMissingCitation, ProofSemanticContradiction, ProofOutputMismatch, ProofPolicyBreach:
		return true
	}
	return false
}

// Complexity scales a proof type's base bond.
type Complexity string

const (
	ComplexitySimple   Complexity = "SIMPLE"
	ComplexityModerate Complexity = "MODERATE"
	ComplexityComplex  Complexity = "COMPLEX"
)

const (
	MaxProofSizeBytes = 1 << 20 // 1 MiB
	MaxGasEstimate    = 100000
)

var evidenceHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

var (
	ErrInvalidProofType   = errors.New("challenge: invalid proof type")
	ErrInvalidEvidence    = errors.New("challenge: invalid evidence hash")
	ErrProofTooLarge      = errors.New("challenge: proof size exceeds MAX_PROOF_SIZE")
	ErrGasEstimateTooHigh = errors.New("challenge: gas estimate exceeds MAX_GAS")
	ErrBondTooSmall       = errors.New("challenge: bond must be greater than zero")
)

// Proof is the fixed schema a challenger submits alongside a CHALLENGE
// envelope, grounded on test_challenges.py's TestProofValidation.
type Proof struct {
	ProofType    ProofType
	EvidenceHash string
	SizeBytes    int64
	GasEstimate  int64
	Metadata     map[string]interface{}
}

// Validate checks the proof schema's structural constraints, independent
// of whether the claimed evidence actually holds (that's Verify's job).
func (p Proof) Validate() error {
	if !p.ProofType.valid() {
		return ErrInvalidProofType
	}
	if !evidenceHashPattern.MatchString(p.EvidenceHash) {
		return ErrInvalidEvidence
	}
	if p.SizeBytes > MaxProofSizeBytes {
		return ErrProofTooLarge
	}
	if p.GasEstimate > MaxGasEstimate {
		return ErrGasEstimateTooHigh
	}
	return nil
}

var baseBond = map[ProofType]int64{
	ProofSchemaViolation:       10,
	ProofMissingCitation:       25,
	ProofSemanticContradiction: 50,
	ProofOutputMismatch:        100,
}

var complexityMultiplier = map[Complexity]int64{
	ComplexitySimple:   1,
	ComplexityModerate: 2,
	ComplexityComplex:  5,
}

// Bond computes the required escrow for a challenge, per spec.md §4.10:
// base(proof_type) × multiplier(complexity). POLICY_BREACH has no listed
// base in spec.md; it is treated as a SCHEMA_VIOLATION-tier claim since
// both are cheap structural checks in verification.py.
func Bond(pt ProofType, c Complexity) int64 {
	base, ok := baseBond[pt]
	if !ok {
		base = baseBond[ProofSchemaViolation]
	}
	mult, ok := complexityMultiplier[c]
	if !ok {
		mult = complexityMultiplier[ComplexitySimple]
	}
	return base * mult
}
