package worker_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relaymesh/gatework/ext"
	"github.com/relaymesh/gatework/httpjob"
	"github.com/relaymesh/gatework/middleware"
	"github.com/relaymesh/gatework/store/memory"
	"github.com/relaymesh/gatework/worker"
)

func setupTestPool(t *testing.T, concurrency int) (*worker.Pool, *memory.Store, *worker.Registry) {
	t.Helper()
	logger := slog.Default()
	s := memory.New()
	reg := worker.NewRegistry()
	extensions := ext.NewRegistry(logger)

	executor := worker.NewExecutor(reg, extensions, s, logger, middleware.Recover(logger))

	pool := worker.NewPool("v1", s, executor, extensions, logger,
		worker.WithPoolConcurrency(concurrency),
		worker.WithPopTimeout(50*time.Millisecond),
	)

	return pool, s, reg
}

func TestPool_StartStop(t *testing.T) {
	pool, _, _ := setupTestPool(t, 2)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	// Double start should be no-op.
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("unexpected double-start error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	// Double stop should be no-op.
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("unexpected double-stop error: %v", err)
	}
}

func TestPool_ProcessesJob(t *testing.T) {
	pool, s, reg := setupTestPool(t, 1)

	var processed atomic.Bool
	reg.Register("GET", "/widgets", func(_ context.Context, j *httpjob.HttpJob) (int, map[string]string, []byte, error) {
		if j.Path != "/widgets" {
			t.Errorf("path = %q, want %q", j.Path, "/widgets")
		}
		processed.Store(true)
		return 200, nil, []byte(`{"ok":true}`), nil
	})

	j := &httpjob.HttpJob{
		RequestID:    "req_1",
		Method:       "GET",
		Path:         "/widgets",
		TargetWorker: "v1",
		State:        httpjob.StatePending,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.CreateJob(context.Background(), j, time.Minute); err != nil {
		t.Fatalf("create job error: %v", err)
	}
	if err := s.QueuePush(context.Background(), "v1", j.RequestID); err != nil {
		t.Fatalf("queue push error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for !processed.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job to be processed")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	got, err := s.GetJob(context.Background(), j.RequestID)
	if err != nil {
		t.Fatalf("get job error: %v", err)
	}
	if got.State != httpjob.StateCompleted {
		t.Errorf("job state = %q, want %q", got.State, httpjob.StateCompleted)
	}
}

func TestPool_FailedJob(t *testing.T) {
	pool, s, reg := setupTestPool(t, 1)

	var processed atomic.Bool
	reg.Register("POST", "/orders", func(_ context.Context, _ *httpjob.HttpJob) (int, map[string]string, []byte, error) {
		processed.Store(true)
		return 500, nil, []byte(`{"error":"boom"}`), nil
	})

	j := &httpjob.HttpJob{
		RequestID:    "req_2",
		Method:       "POST",
		Path:         "/orders",
		TargetWorker: "v1",
		State:        httpjob.StatePending,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.CreateJob(context.Background(), j, time.Minute); err != nil {
		t.Fatalf("create job error: %v", err)
	}
	if err := s.QueuePush(context.Background(), "v1", j.RequestID); err != nil {
		t.Fatalf("queue push error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for !processed.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job to be processed")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	got, err := s.GetJob(context.Background(), j.RequestID)
	if err != nil {
		t.Fatalf("get job error: %v", err)
	}
	if got.State != httpjob.StateFailed {
		t.Errorf("job state = %q, want %q", got.State, httpjob.StateFailed)
	}
	if got.ResponseStatus != 500 {
		t.Errorf("response status = %d, want 500", got.ResponseStatus)
	}
}

func TestPool_GracefulShutdown(t *testing.T) {
	pool, _, _ := setupTestPool(t, 4)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("graceful shutdown failed: %v", err)
	}
}

func TestPool_ExtensionFires(t *testing.T) {
	logger := slog.Default()
	s := memory.New()
	reg := worker.NewRegistry()
	extensions := ext.NewRegistry(logger)

	tracker := &trackingExt{}
	extensions.Register(tracker)

	executor := worker.NewExecutor(reg, extensions, s, logger)
	pool := worker.NewPool("v1", s, executor, extensions, logger,
		worker.WithPoolConcurrency(1),
		worker.WithPopTimeout(50*time.Millisecond),
	)

	var processed atomic.Bool
	reg.Register("GET", "/tracked", func(_ context.Context, _ *httpjob.HttpJob) (int, map[string]string, []byte, error) {
		processed.Store(true)
		return 200, nil, nil, nil
	})

	j := &httpjob.HttpJob{
		RequestID:    "req_3",
		Method:       "GET",
		Path:         "/tracked",
		TargetWorker: "v1",
		State:        httpjob.StatePending,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.CreateJob(context.Background(), j, time.Minute); err != nil {
		t.Fatalf("create job error: %v", err)
	}
	if err := s.QueuePush(context.Background(), "v1", j.RequestID); err != nil {
		t.Fatalf("queue push error: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for !processed.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	if !tracker.started.Load() {
		t.Error("expected OnJobStarted to fire")
	}
	if !tracker.completed.Load() {
		t.Error("expected OnJobCompleted to fire")
	}
}

// trackingExt records which hooks fired.
type trackingExt struct {
	started   atomic.Bool
	completed atomic.Bool
	failed    atomic.Bool
}

func (e *trackingExt) Name() string { return "tracker" }

func (e *trackingExt) OnJobStarted(_ context.Context, _ *httpjob.HttpJob) error {
	e.started.Store(true)
	return nil
}

func (e *trackingExt) OnJobCompleted(_ context.Context, _ *httpjob.HttpJob, _ time.Duration) error {
	e.completed.Store(true)
	return nil
}

func (e *trackingExt) OnJobFailed(_ context.Context, _ *httpjob.HttpJob, _ time.Duration, _ error) error {
	e.failed.Store(true)
	return nil
}
