// Package auditlog provides the hash-chained, append-only audit trail
// shared by the ledger, plan store, and checkpoint subsystems: every
// state-changing operation appends one record whose hash commits to the
// previous record's hash, so tampering with or reordering history breaks
// the chain and is detectable by a downstream verifier.
package auditlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/swarmmesh/substrate/pkg/crypto"
)

// Record is one entry in the audit trail.
type Record struct {
	SeqNo    uint64      `json:"seq_no"`
	ThreadID string      `json:"thread_id"`
	Subject  string      `json:"subject"`
	Kind     string      `json:"kind"`
	Payload  interface{} `json:"payload"`
	TsNs     int64       `json:"ts_ns"`
	PrevHash string      `json:"prev_hash"`
	Hash     string      `json:"hash"`
}

// hashInput is the portion of Record that feeds the hash chain; Hash
// itself is excluded so the hash commits to everything else.
type hashInput struct {
	SeqNo    uint64      `json:"seq_no"`
	ThreadID string      `json:"thread_id"`
	Subject  string      `json:"subject"`
	Kind     string      `json:"kind"`
	Payload  interface{} `json:"payload"`
	TsNs     int64       `json:"ts_ns"`
	PrevHash string      `json:"prev_hash"`
}

// AuditLog is the append/verify contract shared by all backends.
type AuditLog interface {
	Append(threadID, subject, kind string, payload interface{}, tsNs int64) (Record, error)
	Entries() ([]Record, error)
	VerifyChain() error
}

// FileLog is a persistent append-only-JSONL backed audit log.
type FileLog struct {
	mu       sync.Mutex
	filePath string
	hasher   crypto.Hasher
	seqNo    uint64
	lastHash string
}

// NewFileLog opens (creating if absent) a JSONL audit log at path and
// replays it to recover seqNo/lastHash continuity.
func NewFileLog(path string) (*FileLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("auditlog: open %s: %w", path, err)
	}
	_ = f.Close()

	l := &FileLog{filePath: path, hasher: crypto.NewCanonicalHasher()}
	existing, err := l.Entries()
	if err != nil {
		return nil, err
	}
	if n := len(existing); n > 0 {
		l.seqNo = existing[n-1].SeqNo
		l.lastHash = existing[n-1].Hash
	}
	return l, nil
}

func (l *FileLog) Append(threadID, subject, kind string, payload interface{}, tsNs int64) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seqNo++
	rec, err := buildRecord(l.hasher, l.seqNo, threadID, subject, kind, payload, tsNs, l.lastHash)
	if err != nil {
		return Record{}, err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("auditlog: marshal record: %w", err)
	}

	f, err := os.OpenFile(l.filePath, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return Record{}, fmt.Errorf("auditlog: open for append: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return Record{}, fmt.Errorf("auditlog: write record: %w", err)
	}

	l.lastHash = rec.Hash
	return rec, nil
}

func (l *FileLog) Entries() ([]Record, error) {
	f, err := os.Open(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("auditlog: open for read: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []Record
	dec := json.NewDecoder(f)
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("auditlog: malformed record at offset %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (l *FileLog) VerifyChain() error {
	records, err := l.Entries()
	if err != nil {
		return err
	}
	return verifyChain(l.hasher, records)
}

// MemoryLog is an in-process audit log, used for tests and the
// simulator's deterministic replay harness.
type MemoryLog struct {
	mu       sync.Mutex
	records  []Record
	hasher   crypto.Hasher
	seqNo    uint64
	lastHash string
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{hasher: crypto.NewCanonicalHasher()}
}

func (l *MemoryLog) Append(threadID, subject, kind string, payload interface{}, tsNs int64) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seqNo++
	rec, err := buildRecord(l.hasher, l.seqNo, threadID, subject, kind, payload, tsNs, l.lastHash)
	if err != nil {
		return Record{}, err
	}
	l.records = append(l.records, rec)
	l.lastHash = rec.Hash
	return rec, nil
}

func (l *MemoryLog) Entries() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out, nil
}

func (l *MemoryLog) VerifyChain() error {
	records, _ := l.Entries()
	return verifyChain(l.hasher, records)
}

func buildRecord(h crypto.Hasher, seqNo uint64, threadID, subject, kind string, payload interface{}, tsNs int64, prevHash string) (Record, error) {
	in := hashInput{
		SeqNo:    seqNo,
		ThreadID: threadID,
		Subject:  subject,
		Kind:     kind,
		Payload:  payload,
		TsNs:     tsNs,
		PrevHash: prevHash,
	}
	hash, err := h.Hash(in)
	if err != nil {
		return Record{}, fmt.Errorf("auditlog: hash record: %w", err)
	}
	return Record{
		SeqNo:    seqNo,
		ThreadID: threadID,
		Subject:  subject,
		Kind:     kind,
		Payload:  payload,
		TsNs:     tsNs,
		PrevHash: prevHash,
		Hash:     hash,
	}, nil
}

// verifyChain recomputes each record's hash from its fields and checks
// both the hash itself and the prev_hash link to the preceding record.
func verifyChain(h crypto.Hasher, records []Record) error {
	prevHash := ""
	for i, rec := range records {
		if rec.PrevHash != prevHash {
			return fmt.Errorf("auditlog: broken chain at seq %d: prev_hash mismatch", rec.SeqNo)
		}
		recomputed, err := buildRecord(h, rec.SeqNo, rec.ThreadID, rec.Subject, rec.Kind, rec.Payload, rec.TsNs, rec.PrevHash)
		if err != nil {
			return fmt.Errorf("auditlog: recompute hash for seq %d: %w", rec.SeqNo, err)
		}
		if recomputed.Hash != rec.Hash {
			return fmt.Errorf("auditlog: tampered record at seq %d (index %d)", rec.SeqNo, i)
		}
		prevHash = rec.Hash
	}
	return nil
}
