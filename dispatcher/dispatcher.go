// Package dispatcher implements the Gate side of a split HTTP gateway:
// turning an inbound request into an HttpJob, routing it to a candidate
// worker_version, and waiting for a Worker to complete it.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaymesh/gatework"
	"github.com/relaymesh/gatework/backoff"
	"github.com/relaymesh/gatework/ext"
	"github.com/relaymesh/gatework/httpjob"
	"github.com/relaymesh/gatework/store"
	"github.com/relaymesh/gatework/strategy"
)

// evictionTTL bounds how long a worker_version stays excluded from a
// route's candidate set after a stuck-job eviction. It is not persisted —
// each Gate instance keeps its own cache, and a worker recovers as soon
// as the eviction ages out or the Gate restarts.
const evictionTTL = 30 * time.Second

// Dispatcher turns inbound requests into dispatched HttpJobs and waits for
// a Worker to complete them.
type Dispatcher struct {
	store      store.Store
	strategy   strategy.Strategy
	cfg        gatework.Config
	extensions *ext.Registry
	logger     *slog.Logger

	evictedMu sync.Mutex
	evicted   map[string]map[string]time.Time // routeKey -> worker_version -> evicted-until
}

// New creates a Dispatcher.
func New(st store.Store, strat strategy.Strategy, cfg gatework.Config, extensions *ext.Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:      st,
		strategy:   strat,
		cfg:        cfg,
		extensions: extensions,
		logger:     logger,
		evicted:    make(map[string]map[string]time.Time),
	}
}

// Store returns the Dispatcher's backing store, for handlers that need
// direct read access (job lookup, route listing, queue depth).
func (d *Dispatcher) Store() store.Store { return d.store }

// Dispatch routes method/path to a candidate worker_version, creates and
// pushes an HttpJob, and blocks until the job reaches a terminal state or
// the configured dispatch deadline elapses. requestID is generated before
// any route lookup and is returned on every path, including errors, so
// callers can surface it in an error body.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	method, path string,
	query map[string]string,
	headers map[string]string,
	body []byte,
) (status int, respHeaders map[string]string, respBody []byte, requestID string, err error) {
	requestID = uuid.NewString()

	candidates, err := d.store.Match(ctx, method, path)
	if err != nil {
		return 0, nil, nil, requestID, err
	}
	if len(candidates) == 0 {
		return 0, nil, nil, requestID, gatework.ErrNoRoute
	}

	routeKey := method + "|" + path
	eligible := d.filterEvicted(routeKey, candidates)
	if len(eligible) == 0 {
		// Every candidate is currently evicted; fall back to the full
		// set rather than report no route at all.
		eligible = candidates
	}

	target, err := d.strategy.Select(ctx, method, path, eligible, headers)
	if err != nil {
		if errors.Is(err, strategy.ErrNoCandidates) {
			return 0, nil, nil, requestID, gatework.ErrNoCandidate
		}
		return 0, nil, nil, requestID, err
	}
	d.track(target)

	now := time.Now().UTC()
	j := &httpjob.HttpJob{
		RequestID:    requestID,
		Method:       method,
		Path:         path,
		Query:        query,
		Headers:      headers,
		Body:         body,
		TargetWorker: target,
		State:        httpjob.StatePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// Subscribe before the push so a Worker that finishes the job between
	// our CreateJob and Subscribe calls can never leave us waiting on a
	// signal that already fired.
	done, cancelSub, err := d.store.Subscribe(ctx, httpjob.DoneChannel(requestID))
	if err != nil {
		return 0, nil, nil, requestID, err
	}
	defer cancelSub()

	if err := d.store.CreateJob(ctx, j, d.cfg.JobTTL); err != nil {
		return 0, nil, nil, requestID, err
	}

	if err := d.store.QueuePush(ctx, target, requestID); err != nil {
		return 0, nil, nil, requestID, err
	}
	d.extensions.EmitJobEnqueued(ctx, j)

	final, waitErr := d.wait(ctx, routeKey, requestID, target, eligible, headers, done)
	if waitErr != nil {
		return 0, nil, nil, requestID, waitErr
	}

	respHeaders = make(map[string]string, len(final.ResponseHeaders)+1)
	for k, v := range final.ResponseHeaders {
		respHeaders[k] = v
	}
	respHeaders["X-Request-ID"] = requestID

	return final.ResponseStatus, respHeaders, final.ResponseBody, requestID, nil
}

// wait blocks until requestID reaches a terminal state or the dispatch
// deadline elapses, applying the stuck-job re-dispatch policy at
// StuckThreshold.
func (d *Dispatcher) wait(
	ctx context.Context,
	routeKey, requestID, target string,
	candidates []string,
	headers map[string]string,
	done <-chan struct{},
) (*httpjob.HttpJob, error) {
	deadline := time.Now().Add(d.cfg.DispatchTimeout)
	start := time.Now()
	poll := backoff.NewExponential(d.cfg.PollInitialBackoff, d.cfg.PollMaxBackoff)
	attempt := 0
	redispatched := false

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			d.complete(target, time.Since(start))
			return d.expire(ctx, requestID)
		}

		attempt++
		wait := poll.Delay(attempt)
		if wait > remaining {
			wait = remaining
		}
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			d.complete(target, time.Since(start))
			return d.expire(context.Background(), requestID)
		case <-done:
			timer.Stop()
		case <-timer.C:
		}

		j, err := d.store.GetJob(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if j.State.Terminal() {
			d.complete(target, time.Since(start))
			return j, nil
		}

		if !redispatched && j.State == httpjob.StatePending && time.Since(start) >= d.cfg.StuckThreshold {
			if newJob, ok := d.redispatch(ctx, routeKey, requestID, target, candidates, headers, j); ok {
				redispatched = true
				target = newJob.TargetWorker
			}
		}
	}
}

// redispatch evicts target from routeKey's candidate cache and, if a
// different candidate is available, re-targets the job and pushes it onto
// the new candidate's queue. The original queue entry is left in place;
// a CompareAndSwapState race guards against double execution.
func (d *Dispatcher) redispatch(
	ctx context.Context,
	routeKey, requestID, target string,
	candidates []string,
	headers map[string]string,
	j *httpjob.HttpJob,
) (*httpjob.HttpJob, bool) {
	d.evict(routeKey, target)

	remaining := d.filterEvicted(routeKey, candidates)
	if len(remaining) == 0 {
		return nil, false
	}

	newTarget, err := d.strategy.Select(ctx, j.Method, j.Path, remaining, headers)
	if err != nil || newTarget == target {
		return nil, false
	}

	d.untrack(target)
	d.track(newTarget)

	j.TargetWorker = newTarget
	j.UpdatedAt = time.Now().UTC()
	if err := d.store.UpdateJob(ctx, j); err != nil {
		d.logger.Warn("stuck-job redispatch: failed to update target",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if err := d.store.QueuePush(ctx, newTarget, requestID); err != nil {
		d.logger.Warn("stuck-job redispatch: failed to push to new queue",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	d.logger.Info("redispatched stuck job",
		slog.String("request_id", requestID),
		slog.String("from_worker", target),
		slog.String("to_worker", newTarget),
	)
	return j, true
}

// expire marks requestID EXPIRED unless it already reached a terminal
// state through a race with the Worker, and returns gatework.ErrDispatchTimeout
// in that case.
func (d *Dispatcher) expire(ctx context.Context, requestID string) (*httpjob.HttpJob, error) {
	for _, from := range []httpjob.State{httpjob.StatePending, httpjob.StateInProgress} {
		j, err := d.store.CompareAndSwapState(ctx, requestID, from, httpjob.StateExpired)
		if err == nil {
			d.extensions.EmitJobExpired(ctx, j)
			return nil, gatework.ErrDispatchTimeout
		}
		if !errors.Is(err, gatework.ErrInvalidStateTransition) {
			return nil, err
		}
	}

	// Neither CAS applied: the job already reached a terminal state.
	j, err := d.store.GetJob(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// track and complete/untrack notify the strategy (when it implements
// strategy.LoadTracker / strategy.LatencyObserver) that a dispatch to
// worker has started or finished. Most strategies implement neither and
// these are no-ops.
func (d *Dispatcher) track(worker string) {
	if t, ok := d.strategy.(strategy.LoadTracker); ok {
		t.Track(worker)
	}
}

func (d *Dispatcher) untrack(worker string) {
	if t, ok := d.strategy.(strategy.LoadTracker); ok {
		t.Complete(worker)
	}
}

// complete untracks worker and, for a strategy.LatencyObserver, records
// elapsed as the observed handler latency.
func (d *Dispatcher) complete(worker string, elapsed time.Duration) {
	d.untrack(worker)
	if o, ok := d.strategy.(strategy.LatencyObserver); ok {
		o.Observe(worker, elapsed.Milliseconds())
	}
}

func (d *Dispatcher) evict(routeKey, workerVersion string) {
	d.evictedMu.Lock()
	defer d.evictedMu.Unlock()
	if d.evicted[routeKey] == nil {
		d.evicted[routeKey] = make(map[string]time.Time)
	}
	d.evicted[routeKey][workerVersion] = time.Now().Add(evictionTTL)
}

func (d *Dispatcher) filterEvicted(routeKey string, candidates []string) []string {
	d.evictedMu.Lock()
	defer d.evictedMu.Unlock()

	byVersion := d.evicted[routeKey]
	if len(byVersion) == 0 {
		return candidates
	}

	now := time.Now()
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		until, ok := byVersion[c]
		if ok && now.After(until) {
			delete(byVersion, c)
			ok = false
		}
		if !ok {
			out = append(out, c)
		}
	}
	return out
}
