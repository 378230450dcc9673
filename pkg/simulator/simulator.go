// Package simulator implements the deterministic replay and chaos-testing
// tool used to validate swarm coordination offline (spec.md §4.14):
// loading a pkg/auditlog JSONL trail, replaying it in Lamport order to
// reconstruct final state, injecting clock skew/message reordering, and
// checking that two independent runs agree on their FINALIZE outcome.
// Grounded on original_source/tools/simulator.py (absent from the
// retrieval pack — reconstructed from original_source/tests/
// test_simulator.py's assertions, the same missing-source situation
// already recorded for pkg/challenge, pkg/checkpoint, and pkg/sync).
package simulator

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
)

// Envelope is a loosely-typed coordination message, matching the JSON
// shape audit records carry: "kind", "lamport", "timestamp_ns", "payload".
type Envelope = map[string]interface{}

// Simulator replays an audit log deterministically and supports chaos
// injection on top of a loaded trail.
type Simulator struct {
	Envelopes []Envelope
	Warnings  []string
	State     map[string]interface{}

	rng *rand.Rand
}

// NewSimulator builds a simulator. A seed of 0 seeds from a fixed constant
// rather than real entropy, so unseeded simulators are still reproducible
// run to run (callers that want true randomness pass time.Now().UnixNano()
// explicitly).
func NewSimulator(seed int64) *Simulator {
	s := &Simulator{rng: rand.New(rand.NewSource(seed))}
	s.Reset()
	return s
}

// Reset clears loaded envelopes, warnings, and replayed state.
func (s *Simulator) Reset() {
	s.Envelopes = nil
	s.Warnings = nil
	s.State = map[string]interface{}{
		"lamport":       0,
		"needs":         map[string]interface{}{},
		"decisions":     map[string]interface{}{},
		"finalizations": map[string]interface{}{},
	}
}

// GetState returns a shallow copy of the current state, safe for the
// caller to mutate without affecting the simulator.
func (s *Simulator) GetState() map[string]interface{} {
	out := make(map[string]interface{}, len(s.State))
	for k, v := range s.State {
		out[k] = v
	}
	return out
}

// LoadAuditLog reads a JSONL audit trail, extracting each record's
// "payload" field (the actual coordination envelope) and optionally
// filtering by thread_id. Malformed lines are recorded as warnings, not
// errors, so one corrupt line doesn't abort the whole load.
func (s *Simulator) LoadAuditLog(path string, threadID string) ([]Envelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var loaded []Envelope
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		var record map[string]interface{}
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			s.Warnings = append(s.Warnings, fmt.Sprintf("Invalid JSON on line %d: %v", lineNo, err))
			continue
		}

		if threadID != "" {
			recThread, _ := record["thread_id"].(string)
			if recThread != threadID {
				continue
			}
		}

		payload, ok := record["payload"].(map[string]interface{})
		if !ok {
			continue
		}
		loaded = append(loaded, payload)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	s.Envelopes = append(s.Envelopes, loaded...)
	return loaded, nil
}

// SimulationResult is the outcome of a replay.
type SimulationResult struct {
	Success            bool
	EnvelopesProcessed int
	DecideEvents       []Envelope
	FinalizeEvents     []Envelope
	FinalState         map[string]interface{}
	Errors             []string
}

// Replay replays s.Envelopes (previously populated by LoadAuditLog).
func (s *Simulator) Replay(validatePolicy bool) *SimulationResult {
	return s.ReplayEnvelopes(s.Envelopes, validatePolicy)
}

// ReplayEnvelopes sorts envelopes by Lamport clock and applies them to a
// fresh state, independent of whatever has previously been loaded. A
// DECIDE for a need_id that has already been decided is an error — the
// swarm's single-winner-per-need invariant violated.
func (s *Simulator) ReplayEnvelopes(envelopes []Envelope, validatePolicy bool) *SimulationResult {
	if len(envelopes) == 0 {
		return &SimulationResult{
			Success: false,
			Errors:  []string{"No envelopes to replay"},
			FinalState: map[string]interface{}{
				"lamport": 0, "needs": map[string]interface{}{},
				"decisions": map[string]interface{}{}, "finalizations": map[string]interface{}{},
			},
		}
	}

	sorted := append([]Envelope(nil), envelopes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lamportOf(sorted[i]) < lamportOf(sorted[j])
	})

	state := map[string]interface{}{
		"lamport":       0,
		"needs":         map[string]interface{}{},
		"decisions":     map[string]interface{}{},
		"finalizations": map[string]interface{}{},
	}
	needs := state["needs"].(map[string]interface{})
	decisions := state["decisions"].(map[string]interface{})
	finalizations := state["finalizations"].(map[string]interface{})

	var decideEvents, finalizeEvents []Envelope
	var errs []string

	for _, env := range sorted {
		state["lamport"] = lamportOf(env)
		payload, _ := env["payload"].(map[string]interface{})
		if payload == nil {
			payload = map[string]interface{}{}
		}
		needID, _ := payload["need_id"].(string)

		switch kindOf(env) {
		case "NEED":
			needs[needID] = payload
		case "DECIDE":
			if _, exists := decisions[needID]; exists {
				errs = append(errs, fmt.Sprintf("Duplicate DECIDE for need %q", needID))
				continue
			}
			decisions[needID] = payload
			decideEvents = append(decideEvents, env)
		case "FINALIZE":
			finalizations[needID] = payload
			finalizeEvents = append(finalizeEvents, env)
		}
	}

	return &SimulationResult{
		Success:            len(errs) == 0,
		EnvelopesProcessed: len(sorted),
		DecideEvents:       decideEvents,
		FinalizeEvents:     finalizeEvents,
		FinalState:         state,
		Errors:             errs,
	}
}

func lamportOf(env Envelope) int {
	switch v := env["lamport"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func kindOf(env Envelope) string {
	k, _ := env["kind"].(string)
	return k
}

// errNotFinalize is returned (as a diff message, not a Go error) when
// verifying two envelopes where at least one isn't a FINALIZE.
var errNotFinalize = errors.New("envelope is not FINALIZE")

// criticalFinalizeFields are the payload keys that must agree for two
// FINALIZE envelopes to be considered the same outcome.
var criticalFinalizeFields = []string{"need_id", "agent_id", "result"}

// VerifyFinalizeMatch compares two FINALIZE envelopes' outcomes. In
// non-strict mode only the critical payload fields are compared
// (the actual decision); strict mode additionally requires identical
// Lamport clocks and timestamps, useful for bit-for-bit replay
// comparisons rather than outcome-equivalence checks.
func (s *Simulator) VerifyFinalizeMatch(a, b Envelope, strict bool) (bool, []string) {
	if kindOf(a) != "FINALIZE" || kindOf(b) != "FINALIZE" {
		return false, []string{fmt.Sprintf("%v: one or both envelopes are not FINALIZE", errNotFinalize)}
	}

	payloadA, _ := a["payload"].(map[string]interface{})
	payloadB, _ := b["payload"].(map[string]interface{})

	var diffs []string
	for _, field := range criticalFinalizeFields {
		if fmt.Sprint(payloadA[field]) != fmt.Sprint(payloadB[field]) {
			diffs = append(diffs, fmt.Sprintf("%s differs: %v != %v", field, payloadA[field], payloadB[field]))
		}
	}

	if strict {
		if lamportOf(a) != lamportOf(b) {
			diffs = append(diffs, fmt.Sprintf("Lamport differs: %v != %v", a["lamport"], b["lamport"]))
		}
		if fmt.Sprint(a["timestamp_ns"]) != fmt.Sprint(b["timestamp_ns"]) {
			diffs = append(diffs, fmt.Sprintf("timestamp_ns differs: %v != %v", a["timestamp_ns"], b["timestamp_ns"]))
		}
	}

	return len(diffs) == 0, diffs
}
