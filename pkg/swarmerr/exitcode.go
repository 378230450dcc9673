package swarmerr

// Exit codes per spec.md §6: 0 success, 1 generic failure, 2
// policy/validation error, 3 ledger/conservation error.
const (
	ExitSuccess    = 0
	ExitGeneric    = 1
	ExitValidation = 2
	ExitConserve   = 3
)

// validationKinds are ingress/validation failures rejected before any
// ledger state is touched: malformed or unauthenticated input, policy
// denial, and the checkpoint/quorum/window gates that guard admission.
var validationKinds = map[Kind]bool{
	InvalidSignature:           true,
	PayloadHashMismatch:        true,
	ClockRegression:            true,
	MalformedEnvelope:          true,
	PolicyDeniedKind:           true,
	WindowClosed:               true,
	RateLimited:                true,
	RelatedPartyConflict:       true,
	ChallengePeriodNotElapsed:  true,
	QuorumNotMet:               true,
	CheckpointContinuityBroken: true,
}

// conservationKinds touch ledger/stake conservation invariants (spec.md
// §8's "Conservation" law): balances, escrow, and stake.
var conservationKinds = map[Kind]bool{
	GasExhausted:          true,
	InsufficientBalance:   true,
	AccountExists:         true,
	EscrowNotFound:        true,
	EscrowAlreadyReleased: true,
	StakeMismatch:         true,
	InsufficientStake:     true,
	BondTooSmall:          true,
}

// ExitCode maps err to the process exit code a CLI or node process
// should terminate with. Errors that aren't a *Error (or don't wrap one)
// map to ExitGeneric, matching spec.md §7's "otherwise 1" default.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	kind, ok := KindOf(err)
	if !ok {
		return ExitGeneric
	}
	switch {
	case validationKinds[kind]:
		return ExitValidation
	case conservationKinds[kind]:
		return ExitConserve
	default:
		return ExitGeneric
	}
}
