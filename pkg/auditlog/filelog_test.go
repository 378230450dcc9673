package auditlog

import (
	"os"
	"testing"
)

func TestFileLog_AppendAndVerify(t *testing.T) {
	f, err := os.CreateTemp("", "test_audit_*.log")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	f.Close()

	log, err := NewFileLog(f.Name())
	if err != nil {
		t.Fatalf("failed to create audit log: %v", err)
	}

	if _, err := log.Append("task-1", "ledger.account.alice", "TRANSFER", map[string]interface{}{"amount": 10}, 1000); err != nil {
		t.Fatalf("failed to append record: %v", err)
	}
	if _, err := log.Append("task-1", "ledger.account.bob", "TRANSFER", map[string]interface{}{"amount": 10}, 1001); err != nil {
		t.Fatalf("failed to append record: %v", err)
	}

	entries, err := log.Entries()
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Subject != "ledger.account.alice" {
		t.Errorf("expected subject ledger.account.alice, got %s", entries[0].Subject)
	}
	if entries[1].PrevHash != entries[0].Hash {
		t.Error("second record's prev_hash must equal first record's hash")
	}

	if err := log.VerifyChain(); err != nil {
		t.Errorf("expected valid chain, got error: %v", err)
	}
}

func TestFileLog_ReopenContinuesChain(t *testing.T) {
	f, err := os.CreateTemp("", "test_audit_reopen_*.log")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	f.Close()

	log1, err := NewFileLog(f.Name())
	if err != nil {
		t.Fatalf("failed to create audit log: %v", err)
	}
	if _, err := log1.Append("task-1", "plan.op", "ADD_TASK", nil, 1); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	log2, err := NewFileLog(f.Name())
	if err != nil {
		t.Fatalf("failed to reopen audit log: %v", err)
	}
	rec, err := log2.Append("task-1", "plan.op", "ADD_TASK", nil, 2)
	if err != nil {
		t.Fatalf("append after reopen failed: %v", err)
	}
	if rec.SeqNo != 2 {
		t.Errorf("expected seq_no to continue at 2, got %d", rec.SeqNo)
	}
	if err := log2.VerifyChain(); err != nil {
		t.Errorf("expected valid chain after reopen, got error: %v", err)
	}
}

func TestFileLog_DetectsTampering(t *testing.T) {
	f, err := os.CreateTemp("", "test_audit_tamper_*.log")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	f.Close()

	log, err := NewFileLog(f.Name())
	if err != nil {
		t.Fatalf("failed to create audit log: %v", err)
	}
	if _, err := log.Append("task-1", "ledger.account.alice", "TRANSFER", map[string]interface{}{"amount": 10}, 1); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	raw, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	tampered := []byte{}
	tampered = append(tampered, raw...)
	for i, b := range tampered {
		if b == '1' {
			tampered[i] = '9'
			break
		}
	}
	if err := os.WriteFile(f.Name(), tampered, 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	log2, err := NewFileLog(f.Name())
	if err != nil {
		t.Fatalf("failed to reopen: %v", err)
	}
	if err := log2.VerifyChain(); err == nil {
		t.Error("expected VerifyChain to detect tampering")
	}
}

func TestMemoryLog_AppendAndVerify(t *testing.T) {
	log := NewMemoryLog()

	if _, err := log.Append("task-2", "stake.pool", "STAKE", map[string]interface{}{"amount": 5}, 100); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	entries, err := log.Entries()
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Kind != "STAKE" {
		t.Errorf("expected kind STAKE, got %s", entries[0].Kind)
	}
	if err := log.VerifyChain(); err != nil {
		t.Errorf("expected valid chain, got: %v", err)
	}
}
