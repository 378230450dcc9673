package envelope

import (
	"fmt"
	"sync"

	"github.com/swarmmesh/substrate/pkg/swarmerr"
)

// Clock is a Lamport logical clock scoped to one node. It tracks the
// node's own counter plus, per thread, the last lamport value observed
// from each sender — the latter lets Observe detect a sender's clock
// going backward within a thread, which envelope.Verify alone cannot see.
type Clock struct {
	mu       sync.Mutex
	local    uint64
	lastSeen map[string]map[string]uint64 // thread_id -> sender_pk -> lamport
}

func NewClock() *Clock {
	return &Clock{lastSeen: make(map[string]map[string]uint64)}
}

// Next advances and returns the node's own counter, for stamping an
// envelope this node is about to sign and publish.
func (c *Clock) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local++
	return c.local
}

// Local returns the current local counter without advancing it.
func (c *Clock) Local() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

// Observe merges an incoming envelope's lamport into the clock:
// local := max(local, lamport) + 1, per spec.md §4.2. It rejects a
// regression of the same sender's own clock within the same thread.
func (c *Clock) Observe(threadID, senderPK string, lamport uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	byThread := c.lastSeen[threadID]
	if byThread == nil {
		byThread = make(map[string]uint64)
		c.lastSeen[threadID] = byThread
	}
	if prev, ok := byThread[senderPK]; ok && lamport < prev {
		return swarmerr.Wrap(swarmerr.ClockRegression, fmt.Errorf(
			"%w: thread %s sender %s lamport %d < previous %d",
			ErrClockRegression, threadID, senderPK, lamport, prev))
	}
	byThread[senderPK] = lamport

	if lamport > c.local {
		c.local = lamport
	}
	c.local++
	return nil
}
