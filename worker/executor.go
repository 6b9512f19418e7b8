// Package worker provides the job execution engine for a Worker process —
// a Registry mapping (method, path) to handlers, an Executor that invokes
// a matched handler through the middleware chain, and a Pool that manages
// concurrent goroutines polling the shared queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaymesh/gatework"
	"github.com/relaymesh/gatework/ext"
	"github.com/relaymesh/gatework/httpjob"
	"github.com/relaymesh/gatework/middleware"
	"github.com/relaymesh/gatework/store"
)

// Executor runs a single dequeued job through middleware and its matched
// handler, then writes the response back to the store and signals
// completion.
type Executor struct {
	registry   *Registry
	extensions *ext.Registry
	store      store.Store
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *Registry,
	extensions *ext.Registry,
	st store.Store,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry:   registry,
		extensions: extensions,
		store:      st,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute claims a job (PENDING → IN_PROGRESS), runs it through the
// middleware chain and matched handler, persists the outcome, and
// publishes a completion signal on its done channel.
//
// If the compare-and-swap claim fails, the job already moved on — marked
// EXPIRED by the Gate after its wait deadline, or claimed by another
// worker after a stuck-job re-dispatch — and Execute returns nil without
// invoking the handler.
func (e *Executor) Execute(ctx context.Context, j *httpjob.HttpJob) error {
	claimed, err := e.store.CompareAndSwapState(ctx, j.RequestID, httpjob.StatePending, httpjob.StateInProgress)
	if err != nil {
		if errors.Is(err, gatework.ErrInvalidStateTransition) {
			e.logger.Debug("job already claimed or evicted, skipping",
				slog.String("request_id", j.RequestID),
			)
			return nil
		}
		return err
	}
	*j = *claimed

	e.extensions.EmitJobStarted(ctx, j)

	handler, ok := e.registry.Get(j.Method, j.Path)
	if !ok {
		j.SetError(fmt.Errorf("no handler registered for %s %s", j.Method, j.Path))
		return e.finish(ctx, j, 0)
	}

	start := time.Now()
	terminal := func(ctx context.Context) error {
		status, headers, body, handlerErr := handler(ctx, j)
		if handlerErr != nil {
			j.SetError(handlerErr)
			return handlerErr
		}
		j.SetResponse(status, headers, body)
		if j.State == httpjob.StateFailed {
			return fmt.Errorf("handler returned status %d", status)
		}
		return nil
	}

	if mwErr := e.mw(ctx, j, terminal); mwErr != nil && !j.State.Terminal() {
		// A middleware (e.g. Recover) converted a panic or other
		// abnormal exit into an error before the handler could record a
		// response. The job has no response to report, so treat this as
		// a handler failure.
		j.SetError(mwErr)
	}
	elapsed := time.Since(start)

	return e.finish(ctx, j, elapsed)
}

// finish persists the job's terminal state, publishes the done signal, and
// emits the matching lifecycle event.
func (e *Executor) finish(ctx context.Context, j *httpjob.HttpJob, elapsed time.Duration) error {
	j.UpdatedAt = time.Now().UTC()

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("failed to persist job outcome",
			slog.String("request_id", j.RequestID),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	if pubErr := e.store.Publish(ctx, httpjob.DoneChannel(j.RequestID)); pubErr != nil {
		e.logger.Warn("failed to publish completion signal",
			slog.String("request_id", j.RequestID),
			slog.String("error", pubErr.Error()),
		)
	}

	switch j.State {
	case httpjob.StateCompleted:
		e.extensions.EmitJobCompleted(ctx, j, elapsed)
		return nil
	case httpjob.StateFailed:
		var handlerErr error
		if j.Error != "" {
			handlerErr = errors.New(j.Error)
		} else {
			handlerErr = fmt.Errorf("handler returned status %d", j.ResponseStatus)
		}
		e.extensions.EmitJobFailed(ctx, j, elapsed, handlerErr)
		return handlerErr
	default:
		return nil
	}
}
