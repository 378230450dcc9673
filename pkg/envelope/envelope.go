// Package envelope implements the signed message envelope that is the
// universal unit of communication on the bus: every NEED, PROPOSE, DECIDE,
// COMMIT, ATTEST, CHALLENGE, HEARTBEAT, YIELD, RELEASE, UPDATE_PLAN, and
// FINALIZE travels as an Envelope.
package envelope

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	cid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/swarmmesh/substrate/pkg/crypto"
	"github.com/swarmmesh/substrate/pkg/swarmerr"
)

// Kind enumerates the envelope kinds that can travel on a thread subject.
type Kind string

const (
	KindNeed       Kind = "NEED"
	KindPropose    Kind = "PROPOSE"
	KindDecide     Kind = "DECIDE"
	KindCommit     Kind = "COMMIT"
	KindAttest     Kind = "ATTEST"
	KindChallenge  Kind = "CHALLENGE"
	KindHeartbeat  Kind = "HEARTBEAT"
	KindYield      Kind = "YIELD"
	KindRelease    Kind = "RELEASE"
	KindUpdatePlan Kind = "UPDATE_PLAN"
	KindFinalize   Kind = "FINALIZE"
)

var validKinds = map[Kind]bool{
	KindNeed: true, KindPropose: true, KindDecide: true, KindCommit: true,
	KindAttest: true, KindChallenge: true, KindHeartbeat: true, KindYield: true,
	KindRelease: true, KindUpdatePlan: true, KindFinalize: true,
}

// IsValidKind reports whether k is one of the eleven recognized envelope
// kinds.
func IsValidKind(k Kind) bool {
	return validKinds[k]
}

// SchemaVersion is the current envelope wire schema version.
const SchemaVersion = "1"

// PayloadRef is the CID-linked indirection form of payload, used when a
// payload exceeds the inline-size threshold and is instead stored in the
// content-addressed store (pkg/cas) and referenced here as {"/": cid}.
type PayloadRef struct {
	Link string `json:"/"`
}

// Envelope is the universal message unit. Payload is either an inline
// structured value or a PayloadRef pointing at CAS-resident content.
type Envelope struct {
	V               string          `json:"v"`
	ID              string          `json:"id"`
	ThreadID        string          `json:"thread_id"`
	Kind            Kind            `json:"kind"`
	Lamport         uint64          `json:"lamport"`
	TsNs            int64           `json:"ts_ns"`
	SenderPK        string          `json:"sender_pk_b64"`
	PayloadHash     string          `json:"payload_hash"`
	Payload         interface{}     `json:"payload,omitempty"`
	SigB64          string          `json:"sig_b64,omitempty"`
	PolicyDecision  interface{}     `json:"policy_decision,omitempty"`
	PolicyEvalDigest string         `json:"policy_eval_digest,omitempty"`
}

// signable is the subset of fields that participate in the signature; sig
// and policy_decision are excluded per spec.md §4.2/§6.
type signable struct {
	V                string      `json:"v"`
	ID               string      `json:"id"`
	ThreadID         string      `json:"thread_id"`
	Kind             Kind        `json:"kind"`
	Lamport          uint64      `json:"lamport"`
	TsNs             int64       `json:"ts_ns"`
	SenderPK         string      `json:"sender_pk_b64"`
	PayloadHash      string      `json:"payload_hash"`
	Payload          interface{} `json:"payload,omitempty"`
	PolicyEvalDigest string      `json:"policy_eval_digest,omitempty"`
}

func (e *Envelope) signable() signable {
	return signable{
		V: e.V, ID: e.ID, ThreadID: e.ThreadID, Kind: e.Kind, Lamport: e.Lamport,
		TsNs: e.TsNs, SenderPK: e.SenderPK, PayloadHash: e.PayloadHash,
		Payload: e.Payload, PolicyEvalDigest: e.PolicyEvalDigest,
	}
}

// CanonicalBytes returns the deterministic bytes that are signed/verified,
// excluding sig_b64 and policy_decision.
func (e *Envelope) CanonicalBytes() ([]byte, error) {
	return crypto.CanonicalMarshal(e.signable())
}

// HashPayload computes the canonical-JSON SHA-256 hash of payload, the
// value that must equal PayloadHash for the envelope to verify.
func HashPayload(payload interface{}) (string, error) {
	b, err := crypto.CanonicalMarshal(payload)
	if err != nil {
		return "", fmt.Errorf("envelope: canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// LinkPayload returns a CID-linked reference to blob, computed as a
// SHA-256 multihash CIDv1 (raw codec), for use as Payload when a large
// payload is indirected through pkg/cas instead of carried inline.
func LinkPayload(blob []byte) (PayloadRef, error) {
	sum, err := mh.Sum(blob, mh.SHA2_256, -1)
	if err != nil {
		return PayloadRef{}, fmt.Errorf("envelope: multihash payload: %w", err)
	}
	c := cid.NewCidV1(cid.Raw, sum)
	return PayloadRef{Link: c.String()}, nil
}

// New builds an unsigned envelope with the given id, leaving Payload/
// PayloadHash/Lamport/TsNs to the caller (typically via Builder).
func New(threadID string, kind Kind, id string) (*Envelope, error) {
	if !validKinds[kind] {
		return nil, swarmerr.Wrap(swarmerr.MalformedEnvelope, fmt.Errorf("%w: %s", ErrInvalidKind, kind))
	}
	return &Envelope{V: SchemaVersion, ID: id, ThreadID: threadID, Kind: kind}, nil
}

// Sign stamps env with lamport and tsNs (supplied by the caller, typically
// from a Clock), computes PayloadHash from Payload, signs the canonical
// bytes with signer, and embeds SenderPK/SigB64.
func Sign(env *Envelope, signer crypto.Signer, lamport uint64, tsNs int64) error {
	env.Lamport = lamport
	env.TsNs = tsNs
	env.SenderPK = hex.EncodeToString(signer.PublicKey())

	hash, err := HashPayload(env.Payload)
	if err != nil {
		return err
	}
	env.PayloadHash = hash

	bytes, err := env.CanonicalBytes()
	if err != nil {
		return fmt.Errorf("envelope: canonicalize for signing: %w", err)
	}
	sig, err := signer.Sign(bytes)
	if err != nil {
		return fmt.Errorf("envelope: sign: %w", err)
	}
	env.SigB64 = hex.EncodeToString(sig)
	return nil
}

// Verify recomputes the canonical bytes, validates SigB64 against
// SenderPK, and checks PayloadHash. It does not touch the Lamport clock —
// callers merge observed lamport separately via Clock.Observe.
func Verify(env *Envelope) error {
	if env.SigB64 == "" {
		return swarmerr.Wrap(swarmerr.InvalidSignature, ErrInvalidSignature)
	}
	pubKey, err := hex.DecodeString(env.SenderPK)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return swarmerr.Wrap(swarmerr.InvalidSignature, fmt.Errorf("%w: malformed sender_pk", ErrInvalidSignature))
	}
	sig, err := hex.DecodeString(env.SigB64)
	if err != nil {
		return swarmerr.Wrap(swarmerr.InvalidSignature, fmt.Errorf("%w: malformed sig", ErrInvalidSignature))
	}

	bytes, err := env.CanonicalBytes()
	if err != nil {
		return fmt.Errorf("envelope: canonicalize for verify: %w", err)
	}
	if !crypto.Verify(pubKey, bytes, sig) {
		return swarmerr.Wrap(swarmerr.InvalidSignature, ErrInvalidSignature)
	}

	wantHash, err := HashPayload(env.Payload)
	if err != nil {
		return err
	}
	if wantHash != env.PayloadHash {
		return swarmerr.Wrap(swarmerr.PayloadHashMismatch, ErrPayloadHashMismatch)
	}
	return nil
}
