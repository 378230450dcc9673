package verifier

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestVerifyBundle_EmptyBundlePasses(t *testing.T) {
	dir := t.TempDir()

	report, err := VerifyBundle(dir)
	require.NoError(t, err)
	assert.True(t, report.Verified, report.Summary)
	assert.Equal(t, VerifierVersion, report.VerifierVer)
}

func TestVerifyBundle_MissingDirFailsStructure(t *testing.T) {
	report, err := VerifyBundle(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.False(t, report.Verified)

	found := false
	for _, c := range report.Checks {
		if c.Name == "structure" && !c.Pass {
			found = true
		}
	}
	assert.True(t, found, "expected structure check to fail")
}

func TestVerifyBundle_FileHashMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "receipt.json"), []byte(`{"id":"r1"}`), 0o644))
	writeJSON(t, filepath.Join(dir, "manifest.json"), map[string]any{
		"file_hashes": map[string]string{
			"receipt.json": "0000000000000000000000000000000000000000000000000000000000000000",
		},
	})

	report, err := VerifyBundle(dir)
	require.NoError(t, err)
	assert.False(t, report.Verified)

	hashFailed := false
	for _, c := range report.Checks {
		if c.Name == "hash:receipt.json" && !c.Pass {
			hashFailed = true
		}
	}
	assert.True(t, hashFailed, "expected hash check to fail for receipt.json")
}

func TestVerifyBundle_FileHashMatch(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`{"id":"r1","type":"receipt"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "receipt.json"), content, 0o644))
	sum := sha256.Sum256(content)
	writeJSON(t, filepath.Join(dir, "manifest.json"), map[string]any{
		"file_hashes": map[string]string{
			"receipt.json": hex.EncodeToString(sum[:]),
		},
	})

	report, err := VerifyBundle(dir)
	require.NoError(t, err)
	assert.True(t, report.Verified, report.Summary)
}

func canonicalHash(t *testing.T, rec map[string]interface{}) string {
	t.Helper()
	canon, err := json.Marshal(rec)
	require.NoError(t, err)
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])
}

func TestVerifyBundle_AuditChainValid(t *testing.T) {
	dir := t.TempDir()

	rec0 := map[string]interface{}{
		"seq_no": float64(0), "thread_id": "t1", "subject": "agent-a",
		"kind": "task.claimed", "payload": map[string]interface{}{"task_id": "x"}, "ts_ns": float64(1000), "prev_hash": "",
	}
	rec0["hash"] = canonicalHash(t, rec0)

	rec1 := map[string]interface{}{
		"seq_no": float64(1), "thread_id": "t1", "subject": "agent-a",
		"kind": "task.done", "payload": map[string]interface{}{"task_id": "x"}, "ts_ns": float64(2000), "prev_hash": rec0["hash"],
	}
	rec1["hash"] = canonicalHash(t, rec1)

	writeJSON(t, filepath.Join(dir, "auditlog.json"), []map[string]interface{}{rec0, rec1})

	report, err := VerifyBundle(dir)
	require.NoError(t, err)
	assert.True(t, report.Verified, report.Summary)
}

func TestVerifyBundle_AuditChainTampered(t *testing.T) {
	dir := t.TempDir()

	rec0 := map[string]interface{}{
		"seq_no": float64(0), "thread_id": "t1", "subject": "agent-a",
		"kind": "task.claimed", "payload": map[string]interface{}{"task_id": "x"}, "ts_ns": float64(1000), "prev_hash": "",
	}
	rec0["hash"] = canonicalHash(t, rec0)
	rec0["payload"] = map[string]interface{}{"task_id": "tampered"} // mutate after hashing

	writeJSON(t, filepath.Join(dir, "auditlog.json"), []map[string]interface{}{rec0})

	report, err := VerifyBundle(dir)
	require.NoError(t, err)
	assert.False(t, report.Verified)
}

func TestVerifyBundle_CheckpointContinuityGap(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "checkpoints"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkpoints", "epoch_0.json"), []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkpoints", "epoch_2.json"), []byte(`{}`), 0o644))

	report, err := VerifyBundle(dir)
	require.NoError(t, err)
	assert.False(t, report.Verified)
}

func TestVerifyBundle_CheckpointContinuityOK(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "checkpoints"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkpoints", "epoch_0.json"), []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkpoints", "epoch_1.json"), []byte(`{}`), 0o644))

	report, err := VerifyBundle(dir)
	require.NoError(t, err)
	assert.True(t, report.Verified, report.Summary)
}

func TestVerifyBundle_JSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	report, err := VerifyBundle(dir)
	require.NoError(t, err)

	data, err := json.MarshalIndent(report, "", "  ")
	require.NoError(t, err)

	var rt VerifyReport
	require.NoError(t, json.Unmarshal(data, &rt))
	assert.Equal(t, dir, rt.Bundle)
}
