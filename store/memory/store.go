// Package memory is a fully in-memory implementation of store.Store,
// intended for unit tests and local development without Redis.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/relaymesh/gatework"
	"github.com/relaymesh/gatework/httpjob"
	"github.com/relaymesh/gatework/route"
)

// Store is a fully in-memory implementation of store.Store. Safe for
// concurrent access.
type Store struct {
	mu sync.RWMutex

	jobs   map[string]*httpjob.HttpJob
	queues map[string][]string

	// routeWorkers maps "method|path" -> set of worker_version.
	routeWorkers map[string]map[string]struct{}
	// workerRoutes maps worker_version -> set of "method|path".
	workerRoutes map[string]map[string]struct{}
	heartbeats   map[string]time.Time
	cursors      map[string]int64

	subs map[string][]chan struct{}
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:         make(map[string]*httpjob.HttpJob),
		queues:       make(map[string][]string),
		routeWorkers: make(map[string]map[string]struct{}),
		workerRoutes: make(map[string]map[string]struct{}),
		heartbeats:   make(map[string]time.Time),
		cursors:      make(map[string]int64),
		subs:         make(map[string][]chan struct{}),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ── HttpJob store ──

func (m *Store) CreateJob(_ context.Context, j *httpjob.HttpJob, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[j.RequestID]; exists {
		return gatework.ErrJobAlreadyExists
	}
	cp := *j
	m.jobs[j.RequestID] = &cp
	return nil
}

func (m *Store) GetJob(_ context.Context, requestID string) (*httpjob.HttpJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[requestID]
	if !ok {
		return nil, gatework.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *Store) UpdateJob(_ context.Context, j *httpjob.HttpJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[j.RequestID]; !ok {
		return gatework.ErrJobNotFound
	}
	cp := *j
	cp.UpdatedAt = time.Now().UTC()
	m.jobs[j.RequestID] = &cp
	return nil
}

func (m *Store) CompareAndSwapState(_ context.Context, requestID string, from, to httpjob.State) (*httpjob.HttpJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[requestID]
	if !ok {
		return nil, gatework.ErrJobNotFound
	}
	if j.State != from {
		cp := *j
		return &cp, gatework.ErrInvalidStateTransition
	}
	j.State = to
	j.UpdatedAt = time.Now().UTC()
	cp := *j
	return &cp, nil
}

func (m *Store) DeleteJob(_ context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[requestID]; !ok {
		return gatework.ErrJobNotFound
	}
	delete(m.jobs, requestID)
	return nil
}

func (m *Store) QueueSize(_ context.Context, workerVersion string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.queues[workerVersion])), nil
}

// ── Queue / pub-sub primitives ──

func (m *Store) QueuePush(_ context.Context, queue, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[queue] = append(m.queues[queue], requestID)
	return nil
}

// QueuePopBlocking polls the in-memory queue at a short interval up to
// timeout; there is no real blocking primitive to wait on in-process.
func (m *Store) QueuePopBlocking(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		q := m.queues[queue]
		if len(q) > 0 {
			head := q[0]
			m.queues[queue] = q[1:]
			m.mu.Unlock()
			return head, nil
		}
		m.mu.Unlock()

		if time.Now().After(deadline) {
			return "", nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (m *Store) AtomicIncrement(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[key]++
	return m.cursors[key], nil
}

func (m *Store) Publish(_ context.Context, channel string) error {
	m.mu.Lock()
	subs := append([]chan struct{}{}, m.subs[channel]...)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (m *Store) Subscribe(_ context.Context, channel string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)

	m.mu.Lock()
	m.subs[channel] = append(m.subs[channel], ch)
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subs[channel]
		for i, c := range subs {
			if c == ch {
				m.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel, nil
}

// ── Route store ──

func pairKey(method, path string) string { return method + "|" + path }

func (m *Store) Register(_ context.Context, workerVersion, method, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pair := pairKey(method, path)
	if m.routeWorkers[pair] == nil {
		m.routeWorkers[pair] = make(map[string]struct{})
	}
	m.routeWorkers[pair][workerVersion] = struct{}{}

	if m.workerRoutes[workerVersion] == nil {
		m.workerRoutes[workerVersion] = make(map[string]struct{})
	}
	m.workerRoutes[workerVersion][pair] = struct{}{}

	m.heartbeats[workerVersion] = time.Now().UTC()
	return nil
}

func (m *Store) Deregister(_ context.Context, workerVersion, method, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pair := pairKey(method, path)
	delete(m.routeWorkers[pair], workerVersion)
	if len(m.routeWorkers[pair]) == 0 {
		delete(m.routeWorkers, pair)
	}
	delete(m.workerRoutes[workerVersion], pair)
	return nil
}

func (m *Store) DeregisterWorker(_ context.Context, workerVersion string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for pair := range m.workerRoutes[workerVersion] {
		delete(m.routeWorkers[pair], workerVersion)
		if len(m.routeWorkers[pair]) == 0 {
			delete(m.routeWorkers, pair)
		}
	}
	delete(m.workerRoutes, workerVersion)
	delete(m.heartbeats, workerVersion)
	return nil
}

func (m *Store) Match(_ context.Context, method, path string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	workers := m.routeWorkers[pairKey(method, path)]
	out := make([]string, 0, len(workers))
	for w := range workers {
		out = append(out, w)
	}
	return out, nil
}

func (m *Store) ListAll(_ context.Context) ([]route.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var routes []route.Route
	for pair, workers := range m.routeWorkers {
		method, path, ok := strings.Cut(pair, "|")
		if !ok {
			continue
		}
		for w := range workers {
			routes = append(routes, route.Route{
				Method:          method,
				Path:            path,
				WorkerVersion:   w,
				LastHeartbeatAt: m.heartbeats[w],
			})
		}
	}
	return routes, nil
}

func (m *Store) Heartbeat(_ context.Context, workerVersion string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats[workerVersion] = time.Now().UTC()
	return nil
}
