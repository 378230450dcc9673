package envelope

import "errors"

var (
	// ErrInvalidSignature is returned when an envelope's sig does not
	// verify against sender_pk over the canonical bytes.
	ErrInvalidSignature = errors.New("envelope: invalid signature")
	// ErrPayloadHashMismatch is returned when payload_hash does not equal
	// the canonical hash of payload.
	ErrPayloadHashMismatch = errors.New("envelope: payload hash mismatch")
	// ErrClockRegression is returned when a sender's lamport goes backward
	// relative to its own last-observed value in the same thread.
	ErrClockRegression = errors.New("envelope: clock regression")
	// ErrInvalidKind is returned for a kind outside the fixed enum.
	ErrInvalidKind = errors.New("envelope: invalid kind")
)
