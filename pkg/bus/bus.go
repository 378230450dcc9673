// Package bus implements the signed-envelope message bus (spec.md §4.7):
// subject routing, a broker-agnostic Transport behind a connection pool,
// and the publish/subscribe gates that enforce structural validity
// (Preflight), full policy evaluation (Ingress), and Lamport-clock
// continuity before a handler ever sees an envelope. Grounded on
// original_source/src/bus.py's publish_envelope/subscribe_envelopes.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/swarmmesh/substrate/pkg/auditlog"
	"github.com/swarmmesh/substrate/pkg/envelope"
	"github.com/swarmmesh/substrate/pkg/policy"
	"github.com/swarmmesh/substrate/pkg/swarmerr"
)

// Bus is the per-node publish/subscribe boundary: every envelope flowing
// through it is structurally checked, policy-evaluated, audited, and
// Lamport-observed, matching bus.py's publish_envelope/subscribe_envelopes
// gate stack (preflight -> publish; verify+ingress+observe -> deliver).
type Bus struct {
	pool      *ConnectionPool
	preflight *policy.Preflight
	ingress   *policy.Ingress
	audit     auditlog.AuditLog
	clock     *envelope.Clock
	limiter   LimiterStore
	limit     RateLimit
}

// Option configures a Bus at construction.
type Option func(*Bus)

func WithRateLimit(store LimiterStore, limit RateLimit) Option {
	return func(b *Bus) { b.limiter = store; b.limit = limit }
}

// New builds a Bus over transport (wrapped in a size-10 ConnectionPool,
// matching bus.py's ConnectionPool(max_size=10)), gated by preflight and
// ingress, auditing every publish/deliver, and observing Lamport clocks
// through clock.
func New(transport Transport, preflight *policy.Preflight, ingress *policy.Ingress, audit auditlog.AuditLog, clock *envelope.Clock, opts ...Option) *Bus {
	pool := NewConnectionPool(10, func() (Transport, error) { return transport, nil })
	b := &Bus{pool: pool, preflight: preflight, ingress: ingress, audit: audit, clock: clock}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PublishEnvelope preflight-checks env, enforces the sender's rate limit
// if one is configured, audits BUS.PUBLISH, and publishes env's
// encoding/json encoding to subject.
func (b *Bus) PublishEnvelope(ctx context.Context, threadID, subject string, env *envelope.Envelope) error {
	fields := make(map[string]bool)
	if m, ok := env.Payload.(map[string]interface{}); ok {
		for k := range m {
			fields[k] = true
		}
	}
	decision := b.preflight.Check(policy.PreflightInput{
		Kind: env.Kind, PayloadBytes: payloadSize(env.Payload), PayloadFields: fields,
	}, env.PayloadHash)
	if !decision.Allowed {
		return swarmerr.PolicyDenied(fmt.Sprintf("preflight rejected %s: %v", env.Kind, decision.Reasons))
	}

	if b.limiter != nil {
		if err := EnforceRateLimit(ctx, b.limiter, env.SenderPK, b.limit); err != nil {
			return err
		}
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bus: marshal envelope: %w", err)
	}

	if _, err := b.audit.Append(threadID, subject, "BUS.PUBLISH", env, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("bus: audit publish: %w", err)
	}

	s, err := b.pool.Get(ctx)
	if err != nil {
		return err
	}
	defer b.pool.Release(s)
	return s.transport.Publish(ctx, subject, data)
}

// Handler processes one verified, policy-passed envelope.
type Handler func(ctx context.Context, env *envelope.Envelope) error

// SubscribeEnvelopes subscribes to subjectPattern and delivers only
// envelopes that verify their signature, pass Ingress, and observe
// cleanly on the Lamport clock — one goroutine serially draining the
// subscription, matching bus.py's single async _runner loop per
// subscription. Malformed or rejected envelopes are audited and dropped,
// never reaching handler. The returned stop func unsubscribes.
func (b *Bus) SubscribeEnvelopes(ctx context.Context, threadID, subjectPattern, policyVersion string, handler Handler) (stop func() error, err error) {
	s, err := b.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := s.transport.Subscribe(ctx, subjectPattern)
	if err != nil {
		b.pool.Release(s)
		return nil, err
	}

	go func() {
		defer b.pool.Release(s)
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-sub.Messages():
				if !ok {
					return
				}
				b.deliver(ctx, threadID, msg, policyVersion, handler)
			}
		}
	}()

	return sub.Close, nil
}

func (b *Bus) deliver(ctx context.Context, threadID string, msg Message, policyVersion string, handler Handler) {
	var env envelope.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		_, _ = b.audit.Append(threadID, msg.Subject, "BUS.DELIVER", map[string]string{"error": "malformed"}, time.Now().UnixNano())
		return
	}

	_, _ = b.audit.Append(threadID, msg.Subject, "BUS.DELIVER", &env, time.Now().UnixNano())

	if err := envelope.Verify(&env); err != nil {
		b.auditRejection(threadID, msg.Subject, err)
		return
	}

	if b.ingress != nil {
		input := map[string]interface{}{"kind": env.Kind, "thread_id": env.ThreadID, "payload": env.Payload}
		decision := b.ingress.Evaluate(policyVersion, input)
		if !decision.Allowed {
			b.auditRejection(threadID, msg.Subject, swarmerr.PolicyDenied(fmt.Sprintf("%v", decision.Reasons)))
			return
		}
	}

	if err := b.clock.Observe(env.ThreadID, env.SenderPK, env.Lamport); err != nil {
		b.auditRejection(threadID, msg.Subject, err)
		return
	}

	_ = handler(ctx, &env)
}

// auditRejection records the typed swarmerr.Kind a dropped envelope was
// rejected for, falling back to the bare error text for a cause that
// doesn't carry one. A malformed-JSON decode failure does not come through
// here: deliver audits that case itself as a BUS.DELIVER record. The
// envelope itself is still dropped either way — rejection
// here is for observability, not for turning a drop into a hard failure.
func (b *Bus) auditRejection(threadID, subject string, err error) {
	kind, ok := swarmerr.KindOf(err)
	reason := err.Error()
	if ok {
		reason = string(kind)
	}
	_, _ = b.audit.Append(threadID, subject, "BUS.REJECT", map[string]string{"reason": reason}, time.Now().UnixNano())
}

// Close shuts down the pooled transport connections.
func (b *Bus) Close() error {
	return b.pool.CloseAll()
}

func payloadSize(payload interface{}) int {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0
	}
	return len(b)
}
