// Package route defines the Route entity and the registry contract that
// maps (method, path) pairs to candidate worker_versions.
package route

import (
	"context"
	"time"
)

// Route is a single (method, path, worker_version) advertisement. The
// triple is unique; multiple worker_versions may advertise the same
// (method, path) — those form the candidate set load-balanced over by a
// Strategy.
type Route struct {
	Method          string    `json:"method"`
	Path            string    `json:"path"`
	WorkerVersion   string    `json:"worker_version"`
	RegisteredAt    time.Time `json:"registered_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

// Store defines the persistence contract for the route registry.
type Store interface {
	// Register is idempotent per (method, path, workerVersion). It
	// acquires a short-lived per-route lock around the write to guard
	// the known gap in concurrent-registration safety (see
	// SPEC_FULL.md §5.3); callers should treat ErrRouteLocked as
	// transient and retry.
	Register(ctx context.Context, workerVersion, method, path string) error

	// Deregister removes a single (method, path, workerVersion) entry.
	// Safe to call when the entry does not exist.
	Deregister(ctx context.Context, workerVersion, method, path string) error

	// DeregisterWorker removes every route entry advertised by
	// workerVersion, using the reverse index for efficiency. Called on
	// graceful Worker shutdown.
	DeregisterWorker(ctx context.Context, workerVersion string) error

	// Match returns the candidate worker_versions for an exact
	// (method, path) pair. Order is not guaranteed. Returns an empty,
	// nil-error slice when no worker has ever registered the pair —
	// callers distinguish "no route" by checking len() == 0.
	Match(ctx context.Context, method, path string) ([]string, error)

	// ListAll returns every registered route, for the /routes endpoint.
	ListAll(ctx context.Context) ([]Route, error)

	// Heartbeat refreshes the TTL-bound heartbeat:<worker_version> key.
	Heartbeat(ctx context.Context, workerVersion string) error
}
