package envelope

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/swarmmesh/substrate/pkg/crypto"
)

// Builder stamps and signs outgoing envelopes for one node: it owns the
// node's Lamport clock and signing key so publishers never construct
// Lamport/ts_ns/sig by hand.
type Builder struct {
	signer crypto.Signer
	clock  *Clock
	now    func() time.Time
}

func NewBuilder(signer crypto.Signer, clock *Clock) *Builder {
	return &Builder{signer: signer, clock: clock, now: time.Now}
}

// WithNow overrides the wall clock used for ts_ns, for deterministic tests
// and the simulator's virtual time.
func (b *Builder) WithNow(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build constructs, stamps, and signs a new envelope of kind carrying
// payload on threadID.
func (b *Builder) Build(threadID string, kind Kind, payload interface{}) (*Envelope, error) {
	id := uuid.NewString()
	env, err := New(threadID, kind, id)
	if err != nil {
		return nil, err
	}
	env.Payload = payload

	lamport := b.clock.Next()
	tsNs := b.now().UnixNano()
	if err := Sign(env, b.signer, lamport, tsNs); err != nil {
		return nil, fmt.Errorf("envelope: build %s on %s: %w", kind, threadID, err)
	}
	return env, nil
}
