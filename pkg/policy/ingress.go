package policy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/swarmmesh/substrate/pkg/policyloader"
)

// defaultGasLimit bounds CEL evaluation cost per rule, reset every
// evaluation (spec.md §4.6: "gas meter is reset per evaluation").
const defaultGasLimit = 10000

// Ingress is the receiver-side full policy evaluation: every enabled rule
// in the loader's active bundle is run as a metered CEL program against
// the envelope/payload input; any rule whose action is BLOCK and whose
// expression evaluates false denies the message.
type Ingress struct {
	loader *policyloader.Loader
	env    *cel.Env
	gas    int64

	mu       sync.RWMutex
	prgCache map[string]cel.Program
}

// NewIngress builds an Ingress gate evaluating against the policy bundles
// known to loader. The CEL environment exposes `input` (the structured
// envelope/payload map) as its only free variable, matching the teacher's
// `CELPolicyEvaluator`'s dynamic `module` variable shape.
func NewIngress(loader *policyloader.Loader) (*Ingress, error) {
	env, err := cel.NewEnv(cel.Variable("input", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("policy: build CEL env: %w", err)
	}
	return &Ingress{loader: loader, env: env, gas: defaultGasLimit, prgCache: make(map[string]cel.Program)}, nil
}

func (g *Ingress) WithGasLimit(limit int64) *Ingress {
	g.gas = limit
	return g
}

func (g *Ingress) program(expr string) (cel.Program, error) {
	g.mu.RLock()
	prg, hit := g.prgCache[expr]
	g.mu.RUnlock()
	if hit {
		return prg, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if prg, hit = g.prgCache[expr]; hit {
		return prg, nil
	}

	ast, issues := g.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	prg, err := g.env.Program(ast,
		cel.CostLimit(uint64(g.gas)),
		cel.EvalOptions(cel.OptTrackCost),
	)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	g.prgCache[expr] = prg
	return prg, nil
}

// Evaluate runs every enabled rule, highest priority first, against input
// (an arbitrary structured map the rule expressions reference as
// `input.<field>`). A BLOCK-action rule evaluating to false denies the
// message; exceeding the gas budget denies with "gas exhausted".
func (g *Ingress) Evaluate(policyVersion string, input map[string]interface{}) Result {
	var totalGas uint64
	for _, rule := range g.loader.ActiveRules() {
		prg, err := g.program(rule.Expression)
		if err != nil {
			return deny(policyVersion, fmt.Sprintf("rule %s: %v", rule.ID, err))
		}

		out, details, err := prg.Eval(map[string]interface{}{"input": input})
		if err != nil {
			if isCostLimitErr(err) {
				return Result{Allowed: false, Reasons: []string{"gas exhausted"}, PolicyVersion: policyVersion, GasUsed: uint64(g.gas)}
			}
			return deny(policyVersion, fmt.Sprintf("rule %s eval error: %v", rule.ID, err))
		}
		if details != nil {
			if cost := details.ActualCost(); cost != nil {
				totalGas += *cost
			}
		}

		passed, ok := out.Value().(bool)
		if !ok {
			return deny(policyVersion, fmt.Sprintf("rule %s: non-boolean result", rule.ID))
		}
		if !passed && rule.Action == "BLOCK" {
			return Result{Allowed: false, Reasons: []string{fmt.Sprintf("rule %s (%s) denied", rule.ID, rule.Name)}, PolicyVersion: policyVersion, GasUsed: totalGas}
		}
	}
	return allow(policyVersion, totalGas)
}

func isCostLimitErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "cost limit")
}
