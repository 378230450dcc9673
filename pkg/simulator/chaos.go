package simulator

import "sort"

// InjectClockSkew returns a copy of envelopes with each timestamp_ns
// perturbed by up to ±maxSkewMs milliseconds (never below zero). Lamport
// clocks are untouched — skew models clock drift, not causality
// violation.
func (s *Simulator) InjectClockSkew(maxSkewMs int, envelopes []Envelope) []Envelope {
	out := make([]Envelope, len(envelopes))
	skewNs := int64(maxSkewMs) * 1_000_000
	for i, env := range envelopes {
		cp := make(Envelope, len(env))
		for k, v := range env {
			cp[k] = v
		}

		ts, ok := toInt64(env["timestamp_ns"])
		if ok {
			delta := int64(0)
			if skewNs > 0 {
				delta = s.rng.Int63n(2*skewNs+1) - skewNs
			}
			skewed := ts + delta
			if skewed < 0 {
				skewed = 0
			}
			cp["timestamp_ns"] = skewed
		}
		out[i] = cp
	}
	return out
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// InjectMessageReorder returns a copy of envelopes with contiguous runs of
// equal Lamport clock shuffled (with probability per run), preserving the
// overall Lamport-sorted order across runs — reordering that could
// plausibly occur on a real network (concurrent messages racing each
// other) without violating causality (no message ever moves ahead of one
// with a strictly lower Lamport clock). maxDistance bounds the reach of
// each swap in the run's shuffle pass; an element swapped more than once
// can end up further than maxDistance from its starting position.
func (s *Simulator) InjectMessageReorder(probability float64, maxDistance int, envelopes []Envelope) []Envelope {
	sorted := append([]Envelope(nil), envelopes...)
	sort.SliceStable(sorted, func(i, j int) bool { return lamportOf(sorted[i]) < lamportOf(sorted[j]) })

	i := 0
	for i < len(sorted) {
		j := i + 1
		for j < len(sorted) && lamportOf(sorted[j]) == lamportOf(sorted[i]) {
			j++
		}
		if j-i > 1 && s.rng.Float64() < probability {
			shuffleBounded(sorted[i:j], maxDistance, s.rng)
		}
		i = j
	}
	return sorted
}

func shuffleBounded(run []Envelope, maxDistance int, rng interface{ Intn(int) int }) {
	n := len(run)
	for i := n - 1; i > 0; i-- {
		lo := i - maxDistance
		if lo < 0 {
			lo = 0
		}
		j := lo + rng.Intn(i-lo+1)
		run[i], run[j] = run[j], run[i]
	}
}
