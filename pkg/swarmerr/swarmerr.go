// Package swarmerr defines the swarm's error-kind vocabulary (spec.md
// §7): a closed set of named failure kinds rather than an exception
// hierarchy, each mapped onto one of the three process exit codes a
// swarm node or CLI invocation can terminate with. Grounded on the
// teacher's pkg/kernel.ErrorIR's explicit error-code-enum convention
// (error_ir.go), adapted from HTTP-problem-detail semantics to this
// domain's flat sentinel-kind list.
package swarmerr

import (
	"errors"
	"fmt"
)

// Kind is one of spec.md §7's named error kinds.
type Kind string

const (
	InvalidSignature           Kind = "InvalidSignature"
	PayloadHashMismatch        Kind = "PayloadHashMismatch"
	ClockRegression            Kind = "ClockRegression"
	MalformedEnvelope          Kind = "MalformedEnvelope"
	PolicyDeniedKind           Kind = "PolicyDenied"
	GasExhausted               Kind = "GasExhausted"
	InsufficientBalance        Kind = "InsufficientBalance"
	AccountExists              Kind = "AccountExists"
	EscrowNotFound             Kind = "EscrowNotFound"
	EscrowAlreadyReleased      Kind = "EscrowAlreadyReleased"
	StakeMismatch              Kind = "StakeMismatch"
	InsufficientStake          Kind = "InsufficientStake"
	BondTooSmall               Kind = "BondTooSmall"
	WindowClosed               Kind = "WindowClosed"
	RateLimited                Kind = "RateLimited"
	RelatedPartyConflict       Kind = "RelatedPartyConflict"
	ChallengePeriodNotElapsed  Kind = "ChallengePeriodNotElapsed"
	TaskInvalidated            Kind = "TaskInvalidated"
	LeaseNotFound              Kind = "LeaseNotFound"
	WorkerMismatch             Kind = "WorkerMismatch"
	CycleDetected              Kind = "CycleDetected"
	QuorumNotMet               Kind = "QuorumNotMet"
	CheckpointContinuityBroken Kind = "CheckpointContinuityBroken"
	DeadlockDetected           Kind = "DeadlockDetected"
)

// Error is a typed swarm error: a Kind plus an optional free-form reason
// and wrapped cause, compatible with errors.Is/errors.As.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, so callers
// can write errors.Is(err, swarmerr.New(swarmerr.LeaseNotFound, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an Error of the given kind with a human-readable reason.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap builds an Error of the given kind around an underlying cause.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// PolicyDenied builds a PolicyDenied error carrying the policy's denial
// reason, matching spec.md §7's `PolicyDenied(reason)`.
func PolicyDenied(reason string) *Error {
	return &Error{Kind: PolicyDeniedKind, Reason: reason}
}

// KindOf extracts the Kind of err if it (or something it wraps) is a
// *Error, returning ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}
