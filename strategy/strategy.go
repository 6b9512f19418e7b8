// Package strategy implements the load-balancing strategies the Job
// Dispatcher uses to pick a single worker_version from a route's candidate
// set. Round-robin, random, and version-pinned are required by the
// gateway's external contract; LeastConnections and WeightedResponseTime
// are additive strategies carried over from the system this gateway
// replaces, selectable but not the default.
package strategy

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
)

// ErrNoCandidates is returned when Select is called with an empty
// candidate slice.
var ErrNoCandidates = errors.New("strategy: no candidates")

// VersionHeader is the request header a client sets to pin dispatch to a
// specific worker_version.
const VersionHeader = "X-Worker-Version"

// Strategy selects one worker_version from a non-empty candidate set.
// Implementations tie-break deterministically by lexicographic order of
// worker_version when indifferent.
type Strategy interface {
	Select(ctx context.Context, method, path string, candidates []string, headers map[string]string) (string, error)
}

// Counter is the persistent atomic-increment primitive RoundRobin uses to
// keep its cursor stable across Gate instances and restarts. store/redis
// and store/memory both implement it.
type Counter interface {
	AtomicIncrement(ctx context.Context, key string) (int64, error)
}

// LoadTracker is implemented by strategies that need to know when a
// dispatch to a worker_version starts and finishes, to weight future
// Select calls. The dispatcher calls Track right after a successful
// Select and Complete once that job reaches a terminal state.
// LeastConnections implements this; the other strategies do not.
type LoadTracker interface {
	Track(worker string)
	Complete(worker string)
}

// LatencyObserver is implemented by strategies that weight candidates by
// observed handler latency. The dispatcher calls Observe once a
// dispatched job completes, with the elapsed time between dispatch and
// completion. WeightedResponseTime implements this.
type LatencyObserver interface {
	Observe(worker string, millis int64)
}

func sorted(candidates []string) []string {
	out := make([]string, len(candidates))
	copy(out, candidates)
	sort.Strings(out)
	return out
}

// Random selects uniformly at random among candidates.
type Random struct{}

// NewRandom constructs a Random strategy.
func NewRandom() *Random { return &Random{} }

func (r *Random) Select(_ context.Context, _, _ string, candidates []string, _ map[string]string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}
	cs := sorted(candidates)
	return cs[rand.IntN(len(cs))], nil
}

// RoundRobin cycles through candidates using a cursor persisted in the
// store per (method, path), so the rotation survives Gate restarts and is
// shared across Gate instances.
type RoundRobin struct {
	counter Counter
}

// NewRoundRobin constructs a RoundRobin strategy backed by counter.
func NewRoundRobin(counter Counter) *RoundRobin {
	return &RoundRobin{counter: counter}
}

func (rr *RoundRobin) Select(ctx context.Context, method, path string, candidates []string, _ map[string]string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}
	cs := sorted(candidates)

	key := "route:cursor:" + method + "|" + path
	n, err := rr.counter.AtomicIncrement(ctx, key)
	if err != nil {
		return "", err
	}

	idx := int((n - 1) % int64(len(cs)))
	if idx < 0 {
		idx += len(cs)
	}
	return cs[idx], nil
}

// VersionPinned filters the candidate set down to the worker_version named
// by the X-Worker-Version request header. ErrNoCandidates (mapped to 503
// by the dispatcher) is returned if the pinned version is absent from the
// candidate set or the header is empty.
type VersionPinned struct{}

// NewVersionPinned constructs a VersionPinned strategy.
func NewVersionPinned() *VersionPinned { return &VersionPinned{} }

func (v *VersionPinned) Select(_ context.Context, _, _ string, candidates []string, headers map[string]string) (string, error) {
	pinned := headerValue(headers, VersionHeader)
	if pinned == "" {
		return "", ErrNoCandidates
	}
	for _, c := range candidates {
		if c == pinned {
			return c, nil
		}
	}
	return "", ErrNoCandidates
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if equalFold(k, key) {
			return v
		}
	}
	return ""
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
