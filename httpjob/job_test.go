package httpjob_test

import (
	"errors"
	"testing"

	"github.com/relaymesh/gatework/httpjob"
)

func TestSetResponseMarksCompletedOn2xx(t *testing.T) {
	j := &httpjob.HttpJob{State: httpjob.StateInProgress}
	j.SetResponse(200, map[string]string{"Content-Type": "application/json"}, []byte(`{"ok":true}`))

	if j.State != httpjob.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", j.State)
	}
	if j.ResponseStatus != 200 {
		t.Fatalf("expected status 200, got %d", j.ResponseStatus)
	}
}

func TestSetResponseMarksFailedOnNon2xx(t *testing.T) {
	for _, status := range []int{301, 404, 500} {
		j := &httpjob.HttpJob{State: httpjob.StateInProgress}
		j.SetResponse(status, nil, nil)
		if j.State != httpjob.StateFailed {
			t.Fatalf("status %d: expected FAILED, got %s", status, j.State)
		}
	}
}

func TestSetErrorProducesSynthetic500(t *testing.T) {
	j := &httpjob.HttpJob{State: httpjob.StateInProgress}
	j.SetError(errors.New("handler panicked"))

	if j.State != httpjob.StateFailed {
		t.Fatalf("expected FAILED, got %s", j.State)
	}
	if j.ResponseStatus != 500 {
		t.Fatalf("expected synthetic 500, got %d", j.ResponseStatus)
	}
	if j.Error != "handler panicked" {
		t.Fatalf("expected error message to be recorded, got %q", j.Error)
	}
}

func TestStateTerminal(t *testing.T) {
	terminal := []httpjob.State{httpjob.StateCompleted, httpjob.StateFailed, httpjob.StateExpired}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	nonTerminal := []httpjob.State{httpjob.StatePending, httpjob.StateInProgress}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("expected %s to not be terminal", s)
		}
	}
}
