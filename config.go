package gatework

import "time"

// Config holds tunables shared by the Gate and Worker binaries. Each
// binary's cmd package parses its own environment variables (see
// SPEC_FULL.md §7) into one of these before constructing its components;
// library packages never read the environment directly.
type Config struct {
	// DispatchTimeout bounds how long the Gate waits for a dispatched job
	// to reach a terminal state before returning 504 and marking it
	// EXPIRED.
	DispatchTimeout time.Duration

	// JobTTL is the Repository TTL applied to a newly created HttpJob.
	JobTTL time.Duration

	// PollInitialBackoff / PollMaxBackoff bound the Gate's exponential
	// poll-for-completion backoff used alongside pub/sub delivery.
	PollInitialBackoff time.Duration
	PollMaxBackoff     time.Duration

	// StuckThreshold is how long a job may remain PENDING before the
	// dispatcher evicts the target worker from its candidate cache and
	// re-dispatches once.
	StuckThreshold time.Duration

	// QueuePopTimeout is the blocking timeout the Worker uses per
	// queue-pop attempt.
	QueuePopTimeout time.Duration

	// HeartbeatInterval is how often a Worker refreshes its
	// heartbeat:<worker_version> key.
	HeartbeatInterval time.Duration

	// HeartbeatTTL names the TTL of the heartbeat key. store/redis applies
	// its own fixed 30s TTL and does not read this field.
	HeartbeatTTL time.Duration

	// RouteLockTTL names the TTL of the short-lived lock acquired around a
	// route registration write. store/redis uses its own fixed 2s lock TTL
	// and does not read this field.
	RouteLockTTL time.Duration

	// Concurrency is the number of goroutines in a Worker's pool.
	Concurrency int

	// Strategy names the package strategy.Strategy the Gate constructs via
	// strategy.New. Empty means round-robin, the default. Kept as a plain
	// string here rather than strategy.Name so this package does not
	// depend on package strategy; cmd/gate converts it at the call site.
	Strategy string
}

// DefaultConfig returns a Config with the defaults named in SPEC_FULL.md.
func DefaultConfig() Config {
	return Config{
		DispatchTimeout:    30 * time.Second,
		JobTTL:             300 * time.Second,
		PollInitialBackoff: 20 * time.Millisecond,
		PollMaxBackoff:     200 * time.Millisecond,
		StuckThreshold:     5 * time.Second,
		QueuePopTimeout:    1 * time.Second,
		HeartbeatInterval:  10 * time.Second,
		HeartbeatTTL:       30 * time.Second,
		RouteLockTTL:       2 * time.Second,
		Concurrency:        1,
		Strategy:           "round_robin",
	}
}
