package policy

import "fmt"

// resourceMargin is the allowed overshoot of actual telemetry above
// claimed bounds before Commit-gate rejects (spec.md §4.6).
const resourceMargin = 0.10

// ResourceClaim is the resource bound declared in a PROPOSE/DECIDE
// payload.
type ResourceClaim struct {
	CPUMs    int64
	MemoryMB int64
	GasUnits int64
}

// ResourceActual is the telemetry observed for a COMMIT/ATTEST.
type ResourceActual struct {
	CPUMs    int64
	MemoryMB int64
	GasUnits int64
}

// CommitGate runs before ATTEST: it compares claimed resource bounds
// against actual telemetry and rejects if any metric exceeds
// claimed*(1+margin).
type CommitGate struct {
	version string
	margin  float64
}

func NewCommitGate(version string) *CommitGate {
	return &CommitGate{version: version, margin: resourceMargin}
}

func (g *CommitGate) WithMargin(margin float64) *CommitGate {
	g.margin = margin
	return g
}

// Check compares actual against claim, rejecting on the first metric that
// overshoots the margin.
func (g *CommitGate) Check(claim ResourceClaim, actual ResourceActual) Result {
	checks := []struct {
		name     string
		claimed  int64
		observed int64
	}{
		{"cpu_ms", claim.CPUMs, actual.CPUMs},
		{"memory_mb", claim.MemoryMB, actual.MemoryMB},
		{"gas", claim.GasUnits, actual.GasUnits},
	}

	for _, c := range checks {
		limit := float64(c.claimed) * (1 + g.margin)
		if float64(c.observed) > limit {
			return deny(g.version, fmt.Sprintf("%s %d exceeds claimed %d by more than %.0f%% margin", c.name, c.observed, c.claimed, g.margin*100))
		}
	}
	return allow(g.version, 0)
}
