package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/relaymesh/gatework"
	"github.com/relaymesh/gatework/api"
	"github.com/relaymesh/gatework/dispatcher"
	"github.com/relaymesh/gatework/ext"
	"github.com/relaymesh/gatework/httpjob"
	"github.com/relaymesh/gatework/store/memory"
	"github.com/relaymesh/gatework/strategy"
)

func testConfig() gatework.Config {
	cfg := gatework.DefaultConfig()
	cfg.DispatchTimeout = 300 * time.Millisecond
	cfg.JobTTL = time.Minute
	cfg.PollInitialBackoff = 2 * time.Millisecond
	cfg.PollMaxBackoff = 10 * time.Millisecond
	cfg.StuckThreshold = time.Second
	return cfg
}

func TestAPI_DispatchFallback_ProxiesToWorker(t *testing.T) {
	s := memory.New()
	if err := s.Register(context.Background(), "v1", "GET", "/widgets"); err != nil {
		t.Fatalf("register error: %v", err)
	}
	d := dispatcher.New(s, strategy.NewRandom(), testConfig(), ext.NewRegistry(slog.Default()), slog.Default())
	a := api.New(d, slog.Default(), nil)

	go func() {
		requestID, err := s.QueuePopBlocking(context.Background(), "v1", time.Second)
		if err != nil || requestID == "" {
			return
		}
		j, err := s.CompareAndSwapState(context.Background(), requestID, httpjob.StatePending, httpjob.StateInProgress)
		if err != nil {
			return
		}
		j.SetResponse(200, nil, []byte(`{"ok":true}`))
		_ = s.UpdateJob(context.Background(), j)
		_ = s.Publish(context.Background(), httpjob.DoneChannel(requestID))
	}()

	req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Error("expected X-Request-ID header to be set")
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}
}

func TestAPI_DispatchFallback_NoRouteMapsTo404(t *testing.T) {
	s := memory.New()
	d := dispatcher.New(s, strategy.NewRandom(), testConfig(), ext.NewRegistry(slog.Default()), slog.Default())
	a := api.New(d, slog.Default(), nil)

	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}

	var body api.DispatchErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not valid JSON: %v (body=%s)", err, rec.Body.String())
	}
	if body.Error != "no_route" {
		t.Errorf("error = %q, want no_route", body.Error)
	}
	if body.RequestID == "" {
		t.Error("expected a non-empty request_id in the error body")
	}
}

func TestAPI_DispatchFallback_NoCandidateMapsTo503(t *testing.T) {
	s := memory.New()
	if err := s.Register(context.Background(), "v1", "GET", "/pinned"); err != nil {
		t.Fatalf("register error: %v", err)
	}
	d := dispatcher.New(s, strategy.NewVersionPinned(), testConfig(), ext.NewRegistry(slog.Default()), slog.Default())
	a := api.New(d, slog.Default(), nil)

	req := httptest.NewRequest(http.MethodGet, "/pinned", nil)
	req.Header.Set(strategy.VersionHeader, "v9")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	var body api.DispatchErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not valid JSON: %v (body=%s)", err, rec.Body.String())
	}
	if body.Error != "no_candidate" {
		t.Errorf("error = %q, want no_candidate", body.Error)
	}
	if body.RequestID == "" {
		t.Error("expected a non-empty request_id in the error body")
	}
}

func TestAPI_DispatchFallback_TimeoutMapsTo504(t *testing.T) {
	s := memory.New()
	if err := s.Register(context.Background(), "v1", "GET", "/slow"); err != nil {
		t.Fatalf("register error: %v", err)
	}
	d := dispatcher.New(s, strategy.NewRandom(), testConfig(), ext.NewRegistry(slog.Default()), slog.Default())
	a := api.New(d, slog.Default(), nil)

	req := httptest.NewRequest(http.MethodGet, "/slow", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}

	var body api.DispatchErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not valid JSON: %v (body=%s)", err, rec.Body.String())
	}
	if body.Error != "dispatch_timeout" {
		t.Errorf("error = %q, want dispatch_timeout", body.Error)
	}
	if body.RequestID == "" {
		t.Error("expected a non-empty request_id in the error body")
	}
}

func TestAPI_DispatchFallback_RequestBodyForwarded(t *testing.T) {
	s := memory.New()
	if err := s.Register(context.Background(), "v1", "POST", "/orders"); err != nil {
		t.Fatalf("register error: %v", err)
	}
	d := dispatcher.New(s, strategy.NewRandom(), testConfig(), ext.NewRegistry(slog.Default()), slog.Default())
	a := api.New(d, slog.Default(), nil)

	var gotBody []byte
	go func() {
		requestID, err := s.QueuePopBlocking(context.Background(), "v1", time.Second)
		if err != nil || requestID == "" {
			return
		}
		j, err := s.GetJob(context.Background(), requestID)
		if err != nil {
			return
		}
		gotBody = j.Body
		claimed, err := s.CompareAndSwapState(context.Background(), requestID, httpjob.StatePending, httpjob.StateInProgress)
		if err != nil {
			return
		}
		claimed.SetResponse(201, nil, nil)
		_ = s.UpdateJob(context.Background(), claimed)
		_ = s.Publish(context.Background(), httpjob.DoneChannel(requestID))
	}()

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"sku":"abc"}`))
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if string(gotBody) != `{"sku":"abc"}` {
		t.Errorf("job body = %q, want the forwarded request body", gotBody)
	}
}

func TestAPI_DispatchFallback_QueryStringForwarded(t *testing.T) {
	s := memory.New()
	if err := s.Register(context.Background(), "v1", "GET", "/widgets"); err != nil {
		t.Fatalf("register error: %v", err)
	}
	d := dispatcher.New(s, strategy.NewRandom(), testConfig(), ext.NewRegistry(slog.Default()), slog.Default())
	a := api.New(d, slog.Default(), nil)

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

	req := httptest.NewRequest(http.MethodGet, "/widgets?limit=5&limit=10&sort=name", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	if gotQuery["limit"] != "10" {
		t.Errorf("query[limit] = %q, want 10 (last value wins)", gotQuery["limit"])
	}
	if gotQuery["sort"] != "name" {
		t.Errorf("query[sort] = %q, want name", gotQuery["sort"])
	}
}

func TestAPI_FixedPrefixesBypassDispatch(t *testing.T) {
	s := memory.New()
	d := dispatcher.New(s, strategy.NewRandom(), testConfig(), ext.NewRegistry(slog.Default()), slog.Default())
	a := api.New(d, slog.Default(), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	// A route registered under /health must never reach the dispatcher's
	// "no route registered" path with a 404 dispatch error body; whatever
	// Forge returns for /health, it must not be the raw dispatch error text.
	if strings.Contains(rec.Body.String(), gatework.ErrNoRoute.Error()) {
		t.Error("expected /health to be served by the admin router, not dispatch")
	}
}
