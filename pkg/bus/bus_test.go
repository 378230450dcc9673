package bus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmmesh/substrate/pkg/auditlog"
	"github.com/swarmmesh/substrate/pkg/bus"
	"github.com/swarmmesh/substrate/pkg/crypto"
	"github.com/swarmmesh/substrate/pkg/envelope"
	"github.com/swarmmesh/substrate/pkg/policy"
	"github.com/swarmmesh/substrate/pkg/policyloader"
)

func newTestBus(t *testing.T) (*bus.Bus, *envelope.Builder) {
	t.Helper()
	transport := bus.NewInMemoryTransport()
	t.Cleanup(func() { _ = transport.Close() })

	preflight := policy.NewPreflight("v1")
	loader := policyloader.NewLoader(t.TempDir())
	ingress, err := policy.NewIngress(loader)
	require.NoError(t, err)

	audit := auditlog.NewMemoryLog()
	clock := envelope.NewClock()

	b := bus.New(transport, preflight, ingress, audit, clock)

	signer, err := crypto.NewEd25519Signer("node-1")
	require.NoError(t, err)
	builder := envelope.NewBuilder(signer, envelope.NewClock())

	return b, builder
}

func TestBus_PublishAndSubscribeDeliversValidEnvelope(t *testing.T) {
	b, builder := newTestBus(t)
	ctx := context.Background()

	var mu sync.Mutex
	var received *envelope.Envelope
	done := make(chan struct{})

	stop, err := b.SubscribeEnvelopes(ctx, "t1", "thread.t1.*", "v1", func(ctx context.Context, env *envelope.Envelope) error {
		mu.Lock()
		received = env
		mu.Unlock()
		close(done)
		return nil
	})
	require.NoError(t, err)
	defer stop()

	env, err := builder.Build("t1", envelope.KindPropose, map[string]interface{}{"task_id": "task-1"})
	require.NoError(t, err)

	require.NoError(t, b.PublishEnvelope(ctx, "t1", bus.Subject("t1", "worker"), env))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, received)
	assert.Equal(t, env.ID, received.ID)
}

func TestBus_PreflightRejectsUnknownKind(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	env := &envelope.Envelope{V: envelope.SchemaVersion, ID: "x", ThreadID: "t1", Kind: envelope.Kind("BOGUS")}
	err := b.PublishEnvelope(ctx, "t1", bus.Subject("t1", "worker"), env)
	assert.Error(t, err)
}

func TestBus_DeliverDropsTamperedSignature(t *testing.T) {
	b, builder := newTestBus(t)
	ctx := context.Background()

	done := make(chan struct{}, 1)
	stop, err := b.SubscribeEnvelopes(ctx, "t1", "thread.t1.*", "v1", func(ctx context.Context, env *envelope.Envelope) error {
		done <- struct{}{}
		return nil
	})
	require.NoError(t, err)
	defer stop()

	env, err := builder.Build("t1", envelope.KindPropose, map[string]interface{}{"task_id": "task-1"})
	require.NoError(t, err)
	env.Payload = map[string]interface{}{"task_id": "tampered"} // invalidates the signed payload hash

	// PublishEnvelope's preflight only checks structure, not signature, so
	// the tampered envelope gets through and exercises the subscriber-side
	// signature check.
	require.NoError(t, b.PublishEnvelope(ctx, "t1", bus.Subject("t1", "worker"), env))

	select {
	case <-done:
		t.Fatal("handler should not have been invoked for a tampered envelope")
	case <-time.After(100 * time.Millisecond):
	}
}
