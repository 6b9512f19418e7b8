package strategy

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
)

// connCounter tracks best-effort in-flight and completed counts per
// candidate, local to one Gate process. It is not store-synchronized:
// candidate order is explicitly not guaranteed by the route registry
// contract, so a per-instance estimate is consistent with that contract
// rather than a weaker version of a stronger guarantee.
type connCounter struct {
	inFlight  atomic.Int64
	completed atomic.Int64
}

// LeastConnections selects the candidate with the fewest requests
// currently in flight (total dispatched minus completed), breaking ties
// lexicographically. Ported from the least-connection strategy of the
// system this gateway replaces.
type LeastConnections struct {
	mu     sync.Mutex
	counts map[string]*connCounter
}

// NewLeastConnections constructs a LeastConnections strategy.
func NewLeastConnections() *LeastConnections {
	return &LeastConnections{counts: make(map[string]*connCounter)}
}

func (lc *LeastConnections) counterFor(worker string) *connCounter {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	c, ok := lc.counts[worker]
	if !ok {
		c = &connCounter{}
		lc.counts[worker] = c
	}
	return c
}

// Track marks a dispatch as started for the given worker_version; call
// Complete when its HttpJob reaches a terminal state. The dispatcher is
// responsible for calling both around a single Select outcome.
func (lc *LeastConnections) Track(worker string) {
	lc.counterFor(worker).inFlight.Add(1)
}

// Complete marks a previously Tracked dispatch as finished.
func (lc *LeastConnections) Complete(worker string) {
	c := lc.counterFor(worker)
	c.inFlight.Add(-1)
	c.completed.Add(1)
}

func (lc *LeastConnections) Select(_ context.Context, _, _ string, candidates []string, _ map[string]string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}
	cs := sorted(candidates)

	best := cs[0]
	bestLoad := lc.counterFor(best).inFlight.Load()
	for _, c := range cs[1:] {
		load := lc.counterFor(c).inFlight.Load()
		if load < bestLoad {
			best, bestLoad = c, load
		}
	}
	return best, nil
}

// responseTimeSample is an exponentially-weighted average of handler
// latency, in milliseconds.
type responseTimeSample struct {
	avgMillis atomic.Int64
}

// WeightedResponseTime selects a candidate at random, weighted by the
// inverse of its observed average response time — faster candidates are
// proportionally more likely to be chosen. Ported from the
// weighted-response-time strategy of the system this gateway replaces.
type WeightedResponseTime struct {
	mu      sync.Mutex
	samples map[string]*responseTimeSample
}

// NewWeightedResponseTime constructs a WeightedResponseTime strategy.
func NewWeightedResponseTime() *WeightedResponseTime {
	return &WeightedResponseTime{samples: make(map[string]*responseTimeSample)}
}

// Observe records a completed handler invocation's latency for worker, to
// be folded into future weighting decisions.
func (w *WeightedResponseTime) Observe(worker string, millis int64) {
	w.mu.Lock()
	s, ok := w.samples[worker]
	if !ok {
		s = &responseTimeSample{}
		s.avgMillis.Store(millis)
		w.samples[worker] = s
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	prev := s.avgMillis.Load()
	// Simple 50/50 exponential moving average; no prior sample history
	// is kept beyond the single running value.
	s.avgMillis.Store((prev + millis) / 2)
}

func (w *WeightedResponseTime) avgFor(worker string) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.samples[worker]; ok {
		return s.avgMillis.Load()
	}
	return 100 // default assumed latency, matching the ported strategy
}

func (w *WeightedResponseTime) Select(_ context.Context, _, _ string, candidates []string, _ map[string]string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}
	cs := sorted(candidates)

	weights := make([]float64, len(cs))
	var total float64
	for i, c := range cs {
		avg := w.avgFor(c)
		if avg < 1 {
			avg = 1
		}
		weights[i] = 1.0 / float64(avg)
		total += weights[i]
	}

	if total <= 0 {
		return cs[rand.IntN(len(cs))], nil
	}

	r := rand.Float64() * total
	var upto float64
	for i, wt := range weights {
		upto += wt
		if upto >= r {
			return cs[i], nil
		}
	}
	return cs[len(cs)-1], nil
}
