// Package policy implements the Preflight/Ingress/Commit-gate triplet
// (spec.md §4.6): fast client-side structural checks, full receiver-side
// CEL rule evaluation, and post-execution resource-telemetry auditing.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/swarmmesh/substrate/pkg/crypto"
	"github.com/swarmmesh/substrate/pkg/envelope"
)

// Result is the outcome of any gate evaluation.
type Result struct {
	Allowed       bool     `json:"allowed"`
	Reasons       []string `json:"reasons,omitempty"`
	PolicyVersion string   `json:"policy_version"`
	GasUsed       uint64   `json:"gas_used"`
}

func deny(version string, reason string) Result {
	return Result{Allowed: false, Reasons: []string{reason}, PolicyVersion: version}
}

func allow(version string, gasUsed uint64) Result {
	return Result{Allowed: true, PolicyVersion: version, GasUsed: gasUsed}
}

// EvalDigestInput is the canonicalized record a policy_eval_digest is
// derived from, per spec.md §6 (`sha256(canonical_json({input, decision,
// policy_hash}))`).
type EvalDigestInput struct {
	Input      interface{} `json:"input"`
	Decision   Result      `json:"decision"`
	PolicyHash string      `json:"policy_hash"`
}

// ComputeEvalDigest derives a policy_eval_digest for an allowed decision.
func ComputeEvalDigest(input interface{}, decision Result, policyHash string) (string, error) {
	canon, err := crypto.CanonicalMarshal(EvalDigestInput{Input: input, Decision: decision, PolicyHash: policyHash})
	if err != nil {
		return "", fmt.Errorf("policy: canonicalize eval digest: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyEvalDigest independently re-derives the digest and compares it to
// the one attached to env.
func VerifyEvalDigest(env *envelope.Envelope, input interface{}, decision Result, policyHash string) error {
	want, err := ComputeEvalDigest(input, decision, policyHash)
	if err != nil {
		return err
	}
	if env.PolicyEvalDigest != want {
		return fmt.Errorf("policy: eval digest mismatch: envelope has %q, recomputed %q", env.PolicyEvalDigest, want)
	}
	return nil
}
