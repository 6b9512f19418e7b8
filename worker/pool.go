package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relaymesh/gatework"
	"github.com/relaymesh/gatework/ext"
	"github.com/relaymesh/gatework/id"
	"github.com/relaymesh/gatework/store"
)

// Pool manages a set of concurrent goroutines that pop request_ids off a
// single worker_version's queue and run them through an Executor. It also
// keeps the route registry's heartbeat for that worker_version alive for
// as long as the pool is running.
type Pool struct {
	store         store.Store
	executor      *Executor
	extensions    *ext.Registry
	concurrency   int
	workerVersion string
	popTimeout    time.Duration
	workerID      id.ID
	logger        *slog.Logger

	heartbeatInterval time.Duration

	stopCh     chan struct{}
	eg         *errgroup.Group
	mu         sync.Mutex
	running    bool
	activeJobs map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent dequeue goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPopTimeout sets how long each dequeue goroutine blocks waiting for
// a request_id before looping to check for shutdown.
func WithPopTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.popTimeout = d }
}

// WithHeartbeatInterval sets how often the pool refreshes the route
// registry's heartbeat for its worker_version. A zero value disables
// heartbeats, which is only appropriate in tests against a store that
// does not expire registrations.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// NewPool creates a worker pool that serves workerVersion's queue.
func NewPool(
	workerVersion string,
	st store.Store,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		store:         st,
		executor:      executor,
		extensions:    extensions,
		concurrency:   10,
		workerVersion: workerVersion,
		popTimeout:    5 * time.Second,
		workerID:      id.NewWorkerID(),
		logger:        logger,
		stopCh:        make(chan struct{}),
		activeJobs:    make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique process identifier.
func (p *Pool) WorkerID() id.ID { return p.workerID }

// Start launches the dequeue goroutines and, if configured, the heartbeat
// goroutine. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.eg = &errgroup.Group{}

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.String("worker_version", p.workerVersion),
		slog.Int("concurrency", p.concurrency),
	)

	for range p.concurrency {
		p.eg.Go(p.dequeueLoop)
	}

	if p.heartbeatInterval > 0 {
		p.eg.Go(p.heartbeatLoop)
	}

	return nil
}

// Stop signals all goroutines to stop, deregisters the worker_version's
// routes, and waits for in-flight jobs to finish. If the context has a
// deadline, active jobs are cancelled when time runs out. Registered
// Shutdown extensions are notified once the pool has stopped.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping",
		slog.String("worker_id", p.workerID.String()),
		slog.String("worker_version", p.workerVersion),
	)

	close(p.stopCh)

	if err := p.store.DeregisterWorker(context.Background(), p.workerVersion); err != nil {
		p.logger.Warn("failed to deregister worker routes on shutdown",
			slog.String("worker_version", p.workerVersion),
			slog.String("error", err.Error()),
		)
	}

	done := make(chan struct{})
	go func() {
		_ = p.eg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		_ = p.eg.Wait()
	}

	p.extensions.EmitShutdown(ctx)

	return nil
}

// dequeueLoop is run by each pool goroutine. It always returns nil; the
// return value exists to satisfy errgroup.Group.Go.
func (p *Pool) dequeueLoop() error {
	for {
		select {
		case <-p.stopCh:
			return nil
		default:
		}

		requestID, err := p.store.QueuePopBlocking(context.Background(), p.workerVersion, p.popTimeout)
		if err != nil {
			p.logger.Error("dequeue error", slog.String("error", err.Error()))
			continue
		}
		if requestID == "" {
			continue
		}

		j, err := p.store.GetJob(context.Background(), requestID)
		if err != nil {
			if errors.Is(err, gatework.ErrJobNotFound) {
				p.logger.Debug("popped request_id has no surviving job, skipping",
					slog.String("request_id", requestID),
				)
				continue
			}
			p.logger.Error("failed to load dequeued job",
				slog.String("request_id", requestID),
				slog.String("error", err.Error()),
			)
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		p.trackJob(requestID, cancel)

		if execErr := p.executor.Execute(ctx, j); execErr != nil {
			p.logger.Debug("job execution failed",
				slog.String("request_id", requestID),
				slog.String("error", execErr.Error()),
			)
		}

		p.untrackJob(requestID)
		cancel()
	}
}

// heartbeatLoop periodically refreshes this worker_version's route
// registry heartbeat, which the Gate reports as last_heartbeat_at on
// /routes. It always returns nil; the return value exists to satisfy
// errgroup.Group.Go.
func (p *Pool) heartbeatLoop() error {
	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.store.Heartbeat(context.Background(), p.workerVersion); err != nil {
				p.logger.Warn("heartbeat failed",
					slog.String("worker_version", p.workerVersion),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (p *Pool) trackJob(requestID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[requestID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(requestID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, requestID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for requestID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("request_id", requestID))
		cancel()
	}
}
