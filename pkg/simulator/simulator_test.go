package simulator_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmmesh/substrate/pkg/simulator"
)

func writeAuditLog(t *testing.T, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSimulatorLoading(t *testing.T) {
	path := writeAuditLog(t, []string{
		`{"thread_id":"t1","payload":{"kind":"NEED","lamport":1,"need_id":"n1"}}`,
		`{"thread_id":"t1","payload":{"kind":"DECIDE","lamport":2,"need_id":"n1"}}`,
		`{"thread_id":"t2","payload":{"kind":"NEED","lamport":1,"need_id":"n2"}}`,
	})

	sim := simulator.NewSimulator(1)
	envs, err := sim.LoadAuditLog(path, "t1")
	require.NoError(t, err)
	assert.Len(t, envs, 2)
	assert.Len(t, sim.Envelopes, 2)
}

func TestSimulatorLoading_NoFilter(t *testing.T) {
	path := writeAuditLog(t, []string{
		`{"thread_id":"t1","payload":{"kind":"NEED","lamport":1}}`,
		`{"thread_id":"t2","payload":{"kind":"NEED","lamport":2}}`,
	})

	sim := simulator.NewSimulator(1)
	envs, err := sim.LoadAuditLog(path, "")
	require.NoError(t, err)
	assert.Len(t, envs, 2)
}

func TestSimulatorLoading_MalformedLineIsWarningNotError(t *testing.T) {
	path := writeAuditLog(t, []string{
		`{"thread_id":"t1","payload":{"kind":"NEED","lamport":1}}`,
		`not json at all`,
		`{"thread_id":"t1","payload":{"kind":"DECIDE","lamport":2,"need_id":"n1"}}`,
	})

	sim := simulator.NewSimulator(1)
	envs, err := sim.LoadAuditLog(path, "")
	require.NoError(t, err)
	assert.Len(t, envs, 2)
	assert.Len(t, sim.Warnings, 1)
}

func TestSimulatorLoading_MissingFile(t *testing.T) {
	sim := simulator.NewSimulator(1)
	_, err := sim.LoadAuditLog(filepath.Join(t.TempDir(), "missing.jsonl"), "")
	assert.Error(t, err)
}

func envelope(kind string, lamport int, needID string) simulator.Envelope {
	return simulator.Envelope{
		"kind":         kind,
		"lamport":      lamport,
		"timestamp_ns": int64(lamport) * 1000,
		"payload": map[string]interface{}{
			"need_id":  needID,
			"agent_id": "agent-1",
			"result":   "ok",
		},
	}
}

func TestDeterministicReplay(t *testing.T) {
	sim := simulator.NewSimulator(1)
	envs := []simulator.Envelope{
		envelope("FINALIZE", 3, "n1"),
		envelope("NEED", 1, "n1"),
		envelope("DECIDE", 2, "n1"),
	}

	result := sim.ReplayEnvelopes(envs, true)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.EnvelopesProcessed)
	assert.Len(t, result.DecideEvents, 1)
	assert.Len(t, result.FinalizeEvents, 1)
}

func TestDeterministicReplay_DuplicateDecideIsError(t *testing.T) {
	sim := simulator.NewSimulator(1)
	envs := []simulator.Envelope{
		envelope("NEED", 1, "n1"),
		envelope("DECIDE", 2, "n1"),
		envelope("DECIDE", 3, "n1"),
	}

	result := sim.ReplayEnvelopes(envs, true)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Duplicate DECIDE")
}

func TestDeterministicReplay_EmptyEnvelopes(t *testing.T) {
	sim := simulator.NewSimulator(1)
	result := sim.ReplayEnvelopes(nil, true)
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.EnvelopesProcessed)
}

func TestDeterministicReplay_OrderIndependent(t *testing.T) {
	sim1 := simulator.NewSimulator(1)
	sim2 := simulator.NewSimulator(2)

	forward := []simulator.Envelope{
		envelope("NEED", 1, "n1"),
		envelope("DECIDE", 2, "n1"),
		envelope("FINALIZE", 3, "n1"),
	}
	reversed := []simulator.Envelope{forward[2], forward[0], forward[1]}

	r1 := sim1.ReplayEnvelopes(forward, true)
	r2 := sim2.ReplayEnvelopes(reversed, true)

	assert.Equal(t, r1.FinalState["decisions"], r2.FinalState["decisions"])
	assert.Equal(t, r1.FinalState["finalizations"], r2.FinalState["finalizations"])
}

func TestFinalizeVerification(t *testing.T) {
	sim := simulator.NewSimulator(1)
	a := envelope("FINALIZE", 5, "n1")
	b := envelope("FINALIZE", 5, "n1")

	ok, diffs := sim.VerifyFinalizeMatch(a, b, false)
	assert.True(t, ok)
	assert.Empty(t, diffs)
}

func TestFinalizeVerification_ResultMismatch(t *testing.T) {
	sim := simulator.NewSimulator(1)
	a := envelope("FINALIZE", 5, "n1")
	b := envelope("FINALIZE", 5, "n1")
	b["payload"].(map[string]interface{})["result"] = "different"

	ok, diffs := sim.VerifyFinalizeMatch(a, b, false)
	assert.False(t, ok)
	assert.NotEmpty(t, diffs)
}

func TestFinalizeVerification_NotFinalize(t *testing.T) {
	sim := simulator.NewSimulator(1)
	a := envelope("NEED", 1, "n1")
	b := envelope("FINALIZE", 1, "n1")

	ok, diffs := sim.VerifyFinalizeMatch(a, b, false)
	assert.False(t, ok)
	assert.NotEmpty(t, diffs)
}

func TestFinalizeVerification_StrictChecksTimestamps(t *testing.T) {
	sim := simulator.NewSimulator(1)
	a := envelope("FINALIZE", 5, "n1")
	b := envelope("FINALIZE", 5, "n1")
	b["timestamp_ns"] = int64(99999)

	ok, diffs := sim.VerifyFinalizeMatch(a, b, true)
	assert.False(t, ok)
	assert.NotEmpty(t, diffs)

	okLoose, _ := sim.VerifyFinalizeMatch(a, b, false)
	assert.True(t, okLoose)
}

func TestSimulatorState(t *testing.T) {
	sim := simulator.NewSimulator(1)
	state := sim.GetState()
	assert.Equal(t, 0, state["lamport"])

	sim.ReplayEnvelopes([]simulator.Envelope{envelope("NEED", 1, "n1")}, true)
	sim.Reset()
	assert.Empty(t, sim.Envelopes)
	assert.Equal(t, 0, sim.GetState()["lamport"])
}

func TestEndToEndSimulation(t *testing.T) {
	path := writeAuditLog(t, []string{
		`{"thread_id":"t1","payload":{"kind":"NEED","lamport":1,"payload":{"need_id":"n1"}}}`,
		`{"thread_id":"t1","payload":{"kind":"DECIDE","lamport":2,"payload":{"need_id":"n1","agent_id":"a1","result":"ok"}}}`,
		`{"thread_id":"t1","payload":{"kind":"FINALIZE","lamport":3,"payload":{"need_id":"n1","agent_id":"a1","result":"ok"}}}`,
	})

	sim := simulator.NewSimulator(42)
	_, err := sim.LoadAuditLog(path, "t1")
	require.NoError(t, err)

	result := sim.Replay(true)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Len(t, result.FinalizeEvents, 1)
}
