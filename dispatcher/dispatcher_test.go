package dispatcher_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relaymesh/gatework"
	"github.com/relaymesh/gatework/dispatcher"
	"github.com/relaymesh/gatework/ext"
	"github.com/relaymesh/gatework/httpjob"
	"github.com/relaymesh/gatework/store/memory"
	"github.com/relaymesh/gatework/strategy"
)

func testConfig() gatework.Config {
	cfg := gatework.DefaultConfig()
	cfg.DispatchTimeout = 500 * time.Millisecond
	cfg.JobTTL = time.Minute
	cfg.PollInitialBackoff = 2 * time.Millisecond
	cfg.PollMaxBackoff = 10 * time.Millisecond
	cfg.StuckThreshold = 100 * time.Millisecond
	return cfg
}

func TestDispatch_NoRoute(t *testing.T) {
	s := memory.New()
	d := dispatcher.New(s, strategy.NewRandom(), testConfig(), ext.NewRegistry(slog.Default()), slog.Default())

	_, _, _, requestID, err := d.Dispatch(context.Background(), "GET", "/missing", nil, nil, nil)
	if !errors.Is(err, gatework.ErrNoRoute) {
		t.Fatalf("err = %v, want ErrNoRoute", err)
	}
	if requestID == "" {
		t.Error("expected a request_id even on ErrNoRoute")
	}
}

func TestDispatch_VersionPinnedNoCandidate(t *testing.T) {
	s := memory.New()
	if err := s.Register(context.Background(), "v1", "GET", "/widgets"); err != nil {
		t.Fatalf("register error: %v", err)
	}
	d := dispatcher.New(s, strategy.NewVersionPinned(), testConfig(), ext.NewRegistry(slog.Default()), slog.Default())

	headers := map[string]string{strategy.VersionHeader: "v2"}
	_, _, _, requestID, err := d.Dispatch(context.Background(), "GET", "/widgets", nil, headers, nil)
	if !errors.Is(err, gatework.ErrNoCandidate) {
		t.Fatalf("err = %v, want ErrNoCandidate", err)
	}
	if requestID == "" {
		t.Error("expected a request_id even on ErrNoCandidate")
	}
}

func TestDispatch_CompletesWhenWorkerResponds(t *testing.T) {
	s := memory.New()
	if err := s.Register(context.Background(), "v1", "GET", "/widgets"); err != nil {
		t.Fatalf("register error: %v", err)
	}
	d := dispatcher.New(s, strategy.NewRandom(), testConfig(), ext.NewRegistry(slog.Default()), slog.Default())

	go simulateWorker(t, s, "v1", 200, []byte(`{"ok":true}`), 20*time.Millisecond)

	status, _, body, _, err := d.Dispatch(context.Background(), "GET", "/widgets", nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != 200 {
		t.Errorf("status = %d, want 200", status)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}
}

func TestDispatch_TimesOutAndMarksExpired(t *testing.T) {
	s := memory.New()
	if err := s.Register(context.Background(), "v1", "GET", "/slow"); err != nil {
		t.Fatalf("register error: %v", err)
	}
	d := dispatcher.New(s, strategy.NewRandom(), testConfig(), ext.NewRegistry(slog.Default()), slog.Default())

	_, _, _, _, err := d.Dispatch(context.Background(), "GET", "/slow", nil, nil, nil)
	if !errors.Is(err, gatework.ErrDispatchTimeout) {
		t.Fatalf("err = %v, want ErrDispatchTimeout", err)
	}

	requestID, popErr := s.QueuePopBlocking(context.Background(), "v1", 0)
	if popErr != nil || requestID == "" {
		t.Fatal("expected the timed-out job's request_id still on the queue")
	}
	j, err := s.GetJob(context.Background(), requestID)
	if err != nil {
		t.Fatalf("get job error: %v", err)
	}
	if j.State != httpjob.StateExpired {
		t.Errorf("state = %q, want %q", j.State, httpjob.StateExpired)
	}
}

func TestDispatch_PropagatesFailedResponse(t *testing.T) {
	s := memory.New()
	if err := s.Register(context.Background(), "v1", "POST", "/orders"); err != nil {
		t.Fatalf("register error: %v", err)
	}
	d := dispatcher.New(s, strategy.NewRandom(), testConfig(), ext.NewRegistry(slog.Default()), slog.Default())

	go simulateWorker(t, s, "v1", 500, []byte(`{"error":"boom"}`), 20*time.Millisecond)

	status, _, body, _, err := d.Dispatch(context.Background(), "POST", "/orders", nil, nil, []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != 500 {
		t.Errorf("status = %d, want 500", status)
	}
	if string(body) != `{"error":"boom"}` {
		t.Errorf("body = %q", body)
	}
}

// TestDispatch_ConcurrentRequestsRoundRobin fans out concurrent Dispatch
// calls over an errgroup under round-robin, with a simulated worker
// draining each registered worker_version's queue, and asserts every call
// completes with its own distinct request_id.
func TestDispatch_ConcurrentRequestsRoundRobin(t *testing.T) {
	s := memory.New()
	for _, v := range []string{"v1", "v2"} {
		if err := s.Register(context.Background(), v, "GET", "/widgets"); err != nil {
			t.Fatalf("register error: %v", err)
		}
	}
	d := dispatcher.New(s, strategy.NewRoundRobin(s), testConfig(), ext.NewRegistry(slog.Default()), slog.Default())

	const n = 8
	var mu sync.Mutex
	seen := map[string]int{}

	var drainWG sync.WaitGroup
	drainWG.Add(2)
	for _, v := range []string{"v1", "v2"} {
		go func(queue string) {
			defer drainWG.Done()
			for i := 0; i < n/2; i++ {
				simulateWorker(t, s, queue, 200, []byte(`{}`), time.Millisecond)
			}
		}(v)
	}

	var eg errgroup.Group
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			_, headers, _, _, err := d.Dispatch(context.Background(), "GET", "/widgets", nil, nil, nil)
			if err != nil {
				return err
			}
			mu.Lock()
			seen[headers["X-Request-ID"]]++
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	drainWG.Wait()

	if len(seen) != n {
		t.Fatalf("got %d distinct request_ids, want %d", len(seen), n)
	}
}

func TestDispatch_ThreadsQueryIntoJob(t *testing.T) {
	s := memory.New()
	if err := s.Register(context.Background(), "v1", "GET", "/widgets"); err != nil {
		t.Fatalf("register error: %v", err)
	}
	d := dispatcher.New(s, strategy.NewRandom(), testConfig(), ext.NewRegistry(slog.Default()), slog.Default())

	var gotQuery map[string]string
	go func() {
		requestID, err := s.QueuePopBlocking(context.Background(), "v1", time.Second)
		if err != nil || requestID == "" {
			return
		}
		j, err := s.GetJob(context.Background(), requestID)
		if err != nil {
			return
		}
		gotQuery = j.Query
		claimed, err := s.CompareAndSwapState(context.Background(), requestID, httpjob.StatePending, httpjob.StateInProgress)
		if err != nil {
			return
		}
		claimed.SetResponse(200, nil, nil)
		_ = s.UpdateJob(context.Background(), claimed)
		_ = s.Publish(context.Background(), httpjob.DoneChannel(requestID))
	}()

	query := map[string]string{"limit": "10"}
	_, _, _, _, err := d.Dispatch(context.Background(), "GET", "/widgets", query, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery["limit"] != "10" {
		t.Errorf("job query = %+v, want limit=10", gotQuery)
	}
}

func TestDispatch_LeastConnectionsTracksInFlightLoad(t *testing.T) {
	s := memory.New()
	for _, v := range []string{"v1", "v2"} {
		if err := s.Register(context.Background(), v, "GET", "/widgets"); err != nil {
			t.Fatalf("register error: %v", err)
		}
	}
	lc := strategy.NewLeastConnections()
	// Pin v1 as busy before the real dispatcher gets a chance to track
	// anything, so an untracked strategy would still favor it by
	// alphabetical tie-break while a tracking one must avoid it.
	lc.Track("v1")
	lc.Track("v1")

	d := dispatcher.New(s, lc, testConfig(), ext.NewRegistry(slog.Default()), slog.Default())

	resultCh := make(chan string, 1)
	go func() {
		requestID, err := s.QueuePopBlocking(context.Background(), "v2", time.Second)
		if err != nil || requestID == "" {
			resultCh <- ""
			return
		}
		resultCh <- requestID
	}()

	done := make(chan struct{})
	go func() {
		requestID := <-resultCh
		if requestID == "" {
			close(done)
			return
		}
		j, err := s.CompareAndSwapState(context.Background(), requestID, httpjob.StatePending, httpjob.StateInProgress)
		if err == nil {
			j.SetResponse(200, nil, []byte(`{}`))
			_ = s.UpdateJob(context.Background(), j)
			_ = s.Publish(context.Background(), httpjob.DoneChannel(requestID))
		}
		close(done)
	}()

	_, _, _, _, err := d.Dispatch(context.Background(), "GET", "/widgets", nil, nil, nil)
	<-done
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, err := s.QueueSize(context.Background(), "v1"); err != nil || n != 0 {
		t.Errorf("v1 queue size = %d (err %v), want 0: the busy v1 was selected", n, err)
	}
}

// simulateWorker waits for a single job to land on queue, then completes
// it after delay, standing in for a real Worker pool in these tests.
func simulateWorker(t *testing.T, s *memory.Store, queue string, status int, body []byte, delay time.Duration) {
	t.Helper()

	requestID, err := s.QueuePopBlocking(context.Background(), queue, time.Second)
	if err != nil || requestID == "" {
		return
	}

	time.Sleep(delay)

	j, err := s.CompareAndSwapState(context.Background(), requestID, httpjob.StatePending, httpjob.StateInProgress)
	if err != nil {
		return
	}
	j.SetResponse(status, nil, body)
	if err := s.UpdateJob(context.Background(), j); err != nil {
		return
	}
	_ = s.Publish(context.Background(), httpjob.DoneChannel(requestID))
}
