package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scriptedServer(t *testing.T, responses []func(w http.ResponseWriter)) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(responses) {
			n = len(responses) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		responses[n](w)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func pending(w http.ResponseWriter) {
	io.WriteString(w, `{"status":"pending"}`)
}

func fallbackPending(w http.ResponseWriter) {
	io.WriteString(w, `{"status":"pending","fallback":true}`)
}

func approved(w http.ResponseWriter) {
	io.WriteString(w, `{"status":"resolved","approved":true}`)
}

func rejected(w http.ResponseWriter) {
	io.WriteString(w, `{"status":"resolved","approved":false,"reason":"nope"}`)
}

func serverError(w http.ResponseWriter) {
	w.WriteHeader(http.StatusInternalServerError)
}

func TestWait_ResolvesApproved(t *testing.T) {
	srv, _ := scriptedServer(t, []func(http.ResponseWriter){pending, pending, approved})

	p := New(srv.URL, testLogger()).WithInterval(5 * time.Millisecond)
	out, err := p.Wait(context.Background(), "f1")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Approved {
		t.Error("expected approval")
	}
	if p.State() != StateResolved {
		t.Errorf("expected resolved state, got %s", p.State())
	}
}

func TestWait_ResolvesRejectedWithReason(t *testing.T) {
	srv, _ := scriptedServer(t, []func(http.ResponseWriter){pending, rejected})

	p := New(srv.URL, testLogger()).WithInterval(5 * time.Millisecond)
	out, err := p.Wait(context.Background(), "f2")
	if err != nil {
		t.Fatal(err)
	}
	if out.Approved {
		t.Error("expected rejection")
	}
	if out.Reason != "nope" {
		t.Errorf("expected reason, got %q", out.Reason)
	}
}

func TestWait_FallbackTreatedAsPending(t *testing.T) {
	srv, _ := scriptedServer(t, []func(http.ResponseWriter){fallbackPending, fallbackPending, approved})

	p := New(srv.URL, testLogger()).WithInterval(5 * time.Millisecond)
	out, err := p.Wait(context.Background(), "f1")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Approved {
		t.Error("expected approval after fallback pendings")
	}
}

func TestWait_ToleratesTransportErrors(t *testing.T) {
	srv, _ := scriptedServer(t, []func(http.ResponseWriter){serverError, pending, approved})

	p := New(srv.URL, testLogger()).WithInterval(5 * time.Millisecond)
	out, err := p.Wait(context.Background(), "f1")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Approved {
		t.Error("expected approval despite transient error")
	}
}

func TestWait_TimesOutAfterBudget(t *testing.T) {
	srv, calls := scriptedServer(t, []func(http.ResponseWriter){pending})

	p := New(srv.URL, testLogger()).WithInterval(2 * time.Millisecond).WithMaxAttempts(3)
	_, err := p.Wait(context.Background(), "f3")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if p.State() != StateTimedOut {
		t.Errorf("expected timed_out state, got %s", p.State())
	}

	// No further requests after giving up.
	n := calls.Load()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != n {
		t.Error("poller kept polling after timeout")
	}
	if n != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", n)
	}
}

func TestWait_FlowNotFoundStopsImmediately(t *testing.T) {
	srv, calls := scriptedServer(t, []func(http.ResponseWriter){func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"flow not found"}`)
	}})

	p := New(srv.URL, testLogger()).WithInterval(5 * time.Millisecond)
	_, err := p.Wait(context.Background(), "ghost")
	if !errors.Is(err, ErrFlowNotFound) {
		t.Fatalf("expected ErrFlowNotFound, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}

func TestWait_ContextCancellation(t *testing.T) {
	srv, _ := scriptedServer(t, []func(http.ResponseWriter){pending})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	p := New(srv.URL, testLogger()).WithInterval(time.Second)
	_, err := p.Wait(ctx, "f1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
