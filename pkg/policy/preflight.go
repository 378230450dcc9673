package policy

import (
	"fmt"
	"sync"

	"github.com/swarmmesh/substrate/pkg/envelope"
)

const maxPayloadBytes = 256 * 1024

// PreflightInput is the structural record Preflight checks against.
type PreflightInput struct {
	Kind          envelope.Kind
	PayloadBytes  int
	PayloadFields map[string]bool // present fields, for required-field checks
}

var requiredFields = map[envelope.Kind][]string{
	envelope.KindPropose: {"task_id"},
	envelope.KindDecide:  {"task_id", "winner"},
	envelope.KindCommit:  {"task_id", "worker_id"},
	envelope.KindAttest:  {"task_id", "result_hash"},
}

// Preflight is the fast, client-side check run before publish: O(1),
// deterministic, no rule interpreter. It only validates structure — kind
// is recognized, payload is within size bounds, required fields are
// present — never business rules (those are Ingress's job).
type Preflight struct {
	version string

	mu    sync.Mutex
	cache map[string]Result // keyed by op|payload_hash|policy_version
}

func NewPreflight(version string) *Preflight {
	return &Preflight{version: version, cache: make(map[string]Result)}
}

// Check evaluates in, caching by (kind, payloadHash, policy_version) since
// Preflight's output depends on nothing else.
func (p *Preflight) Check(in PreflightInput, payloadHash string) Result {
	cacheKey := fmt.Sprintf("%s|%s|%s", in.Kind, payloadHash, p.version)

	p.mu.Lock()
	if cached, ok := p.cache[cacheKey]; ok {
		p.mu.Unlock()
		return cached
	}
	p.mu.Unlock()

	result := p.evaluate(in)

	p.mu.Lock()
	p.cache[cacheKey] = result
	p.mu.Unlock()
	return result
}

func (p *Preflight) evaluate(in PreflightInput) Result {
	if !envelope.IsValidKind(in.Kind) {
		return deny(p.version, fmt.Sprintf("unrecognized kind %q", in.Kind))
	}
	if in.PayloadBytes > maxPayloadBytes {
		return deny(p.version, fmt.Sprintf("payload %d bytes exceeds max %d", in.PayloadBytes, maxPayloadBytes))
	}
	for _, field := range requiredFields[in.Kind] {
		if !in.PayloadFields[field] {
			return deny(p.version, fmt.Sprintf("missing required field %q for kind %s", field, in.Kind))
		}
	}
	return allow(p.version, 0)
}
