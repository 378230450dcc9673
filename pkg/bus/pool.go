package bus

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTransportClosed is returned by a Transport operation against a
// closed transport.
var ErrTransportClosed = errors.New("bus: transport closed")

// ErrPoolClosed is returned by ConnectionPool operations after CloseAll.
var ErrPoolClosed = errors.New("bus: connection pool closed")

// session is one pooled handle onto the underlying Transport. Real
// brokers (NATS, a P2P mesh) have per-connection state worth reusing;
// the in-memory fake's session is just the shared Transport itself, but
// the pool still tracks acquire/release so a future broker-backed
// Transport can slot in without changing bus.go.
type session struct {
	transport Transport
}

// ConnectionPool bounds concurrent broker connections and reuses idle
// ones, ported from original_source/src/bus.py's ConnectionPool
// (max_size=10, asyncio.Lock-guarded acquire/release, busy-retry when at
// capacity).
type ConnectionPool struct {
	maxSize int
	factory func() (Transport, error)

	mu     sync.Mutex
	idle   []*session
	inUse  map[*session]struct{}
	closed bool
}

func NewConnectionPool(maxSize int, factory func() (Transport, error)) *ConnectionPool {
	if maxSize <= 0 {
		maxSize = 10
	}
	return &ConnectionPool{
		maxSize: maxSize,
		factory: factory,
		inUse:   make(map[*session]struct{}),
	}
}

// Get returns a pooled session, reusing an idle one, creating a fresh one
// under maxSize, or retrying with backoff once at capacity — matching the
// Python pool's "sleep(0.01) and recurse" behavior.
func (p *ConnectionPool) Get(ctx context.Context) (*session, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if n := len(p.idle); n > 0 {
			s := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.inUse[s] = struct{}{}
			p.mu.Unlock()
			return s, nil
		}
		if len(p.inUse) < p.maxSize {
			p.mu.Unlock()
			transport, err := p.factory()
			if err != nil {
				return nil, err
			}
			s := &session{transport: transport}
			p.mu.Lock()
			p.inUse[s] = struct{}{}
			p.mu.Unlock()
			return s, nil
		}
		p.mu.Unlock()

		select {
		case <-time.After(10 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release returns s to the idle pool.
func (p *ConnectionPool) Release(s *session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inUse[s]; ok {
		delete(p.inUse, s)
		p.idle = append(p.idle, s)
	}
}

// CloseAll closes every pooled and in-use transport connection.
func (p *ConnectionPool) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for _, s := range p.idle {
		_ = s.transport.Close()
	}
	for s := range p.inUse {
		_ = s.transport.Close()
	}
	p.idle = nil
	p.inUse = make(map[*session]struct{})
	return nil
}
