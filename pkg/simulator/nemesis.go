package simulator

import (
	"math/rand"
	"time"
)

// Context is the mutable shared state a chaos run operates on: agent
// rosters, in-flight state, and whatever filter/interceptor hooks the
// active nemeses have installed.
type Context = map[string]interface{}

// Nemesis is a single fault-injection strategy a ChaosRunner can activate
// and later heal, ported from original_source/tools/chaos/nemesis.py.
type Nemesis interface {
	ShouldActivate() bool
	IsActive() bool
	Inject(ctx Context) bool
	Heal(ctx Context) bool
}

func newRNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = 1
	}
	return rand.New(rand.NewSource(seed))
}

// PartitionNemesis splits agents into partitionSize groups and installs a
// message_filter that only allows delivery within the same partition.
type PartitionNemesis struct {
	Probability   float64
	PartitionSize int

	rng        *rand.Rand
	active     bool
	Partitions [][]string
}

func NewPartitionNemesis(probability float64, partitionSize int) *PartitionNemesis {
	if partitionSize <= 0 {
		partitionSize = 2
	}
	return &PartitionNemesis{Probability: probability, PartitionSize: partitionSize, rng: newRNG(time.Now().UnixNano())}
}

func (n *PartitionNemesis) ShouldActivate() bool { return n.rng.Float64() < n.Probability }
func (n *PartitionNemesis) IsActive() bool       { return n.active }

func (n *PartitionNemesis) Inject(ctx Context) bool {
	agents, _ := ctx["agents"].([]string)
	if len(agents) == 0 {
		return false
	}

	groups := make([][]string, n.PartitionSize)
	for i, a := range agents {
		idx := i % n.PartitionSize
		groups[idx] = append(groups[idx], a)
	}
	n.Partitions = groups
	n.active = true

	partitionOf := func(agent string) int {
		for idx, g := range groups {
			for _, a := range g {
				if a == agent {
					return idx
				}
			}
		}
		return -1
	}
	ctx["message_filter"] = func(from, to string) bool {
		return partitionOf(from) == partitionOf(to)
	}
	return true
}

func (n *PartitionNemesis) Heal(ctx Context) bool {
	n.active = false
	n.Partitions = nil
	delete(ctx, "message_filter")
	return true
}

// SlowNemesis installs a message_interceptor that delays message delivery.
type SlowNemesis struct {
	Probability float64
	DelayMs     int

	rng    *rand.Rand
	active bool
}

func NewSlowNemesis(probability float64, delayMs int) *SlowNemesis {
	return &SlowNemesis{Probability: probability, DelayMs: delayMs, rng: newRNG(time.Now().UnixNano())}
}

func (n *SlowNemesis) ShouldActivate() bool { return n.rng.Float64() < n.Probability }
func (n *SlowNemesis) IsActive() bool       { return n.active }

func (n *SlowNemesis) Inject(ctx Context) bool {
	n.active = true
	ctx["message_interceptor"] = func(msg map[string]interface{}) {
		time.Sleep(time.Duration(n.DelayMs) * time.Millisecond)
		meta, ok := msg["metadata"].(map[string]interface{})
		if !ok {
			meta = make(map[string]interface{})
			msg["metadata"] = meta
		}
		meta["chaos_delay_ms"] = n.DelayMs
	}
	return true
}

func (n *SlowNemesis) Heal(ctx Context) bool {
	n.active = false
	delete(ctx, "message_interceptor")
	return true
}

// KillNemesis removes killCount agents from service until healed.
type KillNemesis struct {
	Probability  float64
	KillCount    int
	KilledAgents []string

	rng    *rand.Rand
	active bool
}

func NewKillNemesis(probability float64, killCount int) *KillNemesis {
	return &KillNemesis{Probability: probability, KillCount: killCount, rng: newRNG(time.Now().UnixNano())}
}

func (n *KillNemesis) ShouldActivate() bool { return n.rng.Float64() < n.Probability }
func (n *KillNemesis) IsActive() bool       { return n.active }

func (n *KillNemesis) Inject(ctx Context) bool {
	agents, _ := ctx["agents"].([]string)
	if len(agents) == 0 {
		return false
	}

	shuffled := append([]string(nil), agents...)
	n.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	count := n.KillCount
	if count > len(shuffled) {
		count = len(shuffled)
	}
	n.KilledAgents = append([]string(nil), shuffled[:count]...)
	n.active = true

	killed, _ := ctx["killed_agents"].(map[string]bool)
	if killed == nil {
		killed = make(map[string]bool)
	}
	for _, a := range n.KilledAgents {
		killed[a] = true
	}
	ctx["killed_agents"] = killed
	return true
}

func (n *KillNemesis) Heal(ctx Context) bool {
	n.active = false
	n.KilledAgents = nil
	delete(ctx, "killed_agents")
	return true
}

// ClockSkewNemesis assigns each agent a random clock offset and installs a
// time_interceptor callers use to read an agent's skewed view of time.
type ClockSkewNemesis struct {
	Probability float64
	SkewMs      int
	AgentSkews  map[string]int

	rng    *rand.Rand
	active bool
}

func NewClockSkewNemesis(probability float64, skewMs int) *ClockSkewNemesis {
	return &ClockSkewNemesis{Probability: probability, SkewMs: skewMs, AgentSkews: make(map[string]int), rng: newRNG(time.Now().UnixNano())}
}

func (n *ClockSkewNemesis) ShouldActivate() bool { return n.rng.Float64() < n.Probability }
func (n *ClockSkewNemesis) IsActive() bool       { return n.active }

func (n *ClockSkewNemesis) Inject(ctx Context) bool {
	agents, _ := ctx["agents"].([]string)
	if len(agents) == 0 {
		return false
	}

	n.AgentSkews = make(map[string]int, len(agents))
	for _, a := range agents {
		n.AgentSkews[a] = n.rng.Intn(2*n.SkewMs+1) - n.SkewMs
	}
	n.active = true

	ctx["time_interceptor"] = func(agentID string, timestampNs int64) int64 {
		return timestampNs + int64(n.AgentSkews[agentID])*1_000_000
	}
	return true
}

func (n *ClockSkewNemesis) Heal(ctx Context) bool {
	n.active = false
	n.AgentSkews = make(map[string]int)
	delete(ctx, "time_interceptor")
	return true
}
