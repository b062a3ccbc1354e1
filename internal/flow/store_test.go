package flow

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aqubia/stepgate/api"
)

func testStore(ttl time.Duration) *Store {
	return NewStore(ttl, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func payload(t *testing.T, s string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestStore_CreateAndGetPending(t *testing.T) {
	s := testStore(0)

	if _, err := s.Create("f1", payload(t, `{"username":"u"}`), map[string]string{"ua": "test"}); err != nil {
		t.Fatal(err)
	}

	p, err := s.GetPending("f1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != api.FlowPending {
		t.Errorf("expected pending status, got %s", p.Status)
	}
	if p.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestStore_DuplicateFlow(t *testing.T) {
	s := testStore(0)

	if _, err := s.Create("f1", nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create("f1", nil, nil); !errors.Is(err, ErrDuplicateFlow) {
		t.Errorf("expected ErrDuplicateFlow, got %v", err)
	}

	// Still a duplicate after resolution.
	if _, err := s.Resolve("f1", true, "", api.SourceOperator); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create("f1", nil, nil); !errors.Is(err, ErrDuplicateFlow) {
		t.Errorf("expected ErrDuplicateFlow after resolve, got %v", err)
	}
}

func TestStore_FirstResolveWins(t *testing.T) {
	s := testStore(0)
	if _, err := s.Create("f1", nil, nil); err != nil {
		t.Fatal(err)
	}

	won, err := s.Resolve("f1", true, "", api.SourceOperator)
	if err != nil || !won {
		t.Fatalf("expected first resolve to win, got won=%v err=%v", won, err)
	}

	won, err = s.Resolve("f1", false, "changed my mind", api.SourceOperator)
	if err != nil {
		t.Fatal(err)
	}
	if won {
		t.Error("expected second resolve to be a no-op")
	}

	r, err := s.GetResult("f1")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Approved {
		t.Error("second resolve flipped the first decision")
	}
	if r.Reason != "" {
		t.Errorf("second resolve overwrote reason: %q", r.Reason)
	}
}

func TestStore_ResolveUnknownFlow(t *testing.T) {
	s := testStore(0)

	won, err := s.Resolve("nope", true, "", api.SourceOperator)
	if won {
		t.Error("resolve of unknown flow must not win")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ConcurrentResolves(t *testing.T) {
	s := testStore(0)
	if _, err := s.Create("f1", nil, nil); err != nil {
		t.Fatal(err)
	}

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan bool, n)

	for i := 0; i < n; i++ {
		approved := i%2 == 0
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.Resolve("f1", approved, "", api.SourceOperator)
			if err != nil {
				t.Error(err)
				return
			}
			if won {
				wins <- approved
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []bool
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winning resolve, got %d", len(winners))
	}

	r, err := s.GetResult("f1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Approved != winners[0] {
		t.Error("stored result does not match the winning resolve")
	}
}

func TestStore_FallbackIdempotent(t *testing.T) {
	s := testStore(0)

	if !s.CreateFallback("ghost") {
		t.Fatal("expected first fallback create to succeed")
	}
	if s.CreateFallback("ghost") {
		t.Error("expected second fallback create to be a no-op")
	}

	p, err := s.GetPending("ghost")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Fallback {
		t.Error("expected fallback flag on synthesized record")
	}

	// A synthesized flow is resolvable like any other.
	won, err := s.Resolve("ghost", true, "", api.SourceOperator)
	if err != nil || !won {
		t.Fatalf("expected synthesized flow to resolve, got won=%v err=%v", won, err)
	}
}

func TestStore_FallbackAfterResolveIsNoop(t *testing.T) {
	s := testStore(0)
	if _, err := s.Create("f1", nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Resolve("f1", false, "no", api.SourceManual); err != nil {
		t.Fatal(err)
	}

	if s.CreateFallback("f1") {
		t.Error("fallback create must not shadow an existing result")
	}
}

func TestStore_ListPendingOrdered(t *testing.T) {
	s := testStore(0)
	for _, id := range []string{"a", "b", "c"} {
		if _, err := s.Create(id, nil, nil); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := s.Resolve("b", true, "", api.SourceAuto); err != nil {
		t.Fatal(err)
	}

	got := s.ListPending()
	if len(got) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(got))
	}
	if got[0].FlowID != "a" || got[1].FlowID != "c" {
		t.Errorf("unexpected order: %s, %s", got[0].FlowID, got[1].FlowID)
	}
}

func TestStore_SweepExpiresStalePending(t *testing.T) {
	s := testStore(50 * time.Millisecond)
	if _, err := s.Create("old", nil, nil); err != nil {
		t.Fatal(err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, err := s.Create("fresh", nil, nil); err != nil {
		t.Fatal(err)
	}

	expired := s.Sweep(time.Now())
	if len(expired) != 1 || expired[0].FlowID != "old" {
		t.Fatalf("expected only 'old' to expire, got %v", expired)
	}

	r, err := s.GetResult("old")
	if err != nil {
		t.Fatal(err)
	}
	if r.Approved || r.Source != api.SourceExpired || r.Reason != ExpiredReason {
		t.Errorf("unexpected expiry result: %+v", r)
	}

	if _, err := s.GetResult("fresh"); !errors.Is(err, ErrNotFound) {
		t.Error("fresh flow must not expire")
	}
}

func TestStore_SweepEvictsOldResults(t *testing.T) {
	s := testStore(10 * time.Millisecond)
	if _, err := s.Create("f1", nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Resolve("f1", true, "", api.SourceOperator); err != nil {
		t.Fatal(err)
	}

	s.Sweep(time.Now().Add(time.Hour))

	if _, err := s.GetResult("f1"); !errors.Is(err, ErrNotFound) {
		t.Error("expected old result to be evicted")
	}
	pending, resolved := s.Counts()
	if pending != 0 || resolved != 0 {
		t.Errorf("expected empty store, got pending=%d resolved=%d", pending, resolved)
	}
}

func TestStore_ExpireIfStale(t *testing.T) {
	s := testStore(10 * time.Millisecond)
	if _, err := s.Create("f1", nil, nil); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	if !s.ExpireIfStale("f1") {
		t.Fatal("expected lazy expiry to resolve the flow")
	}
	if s.ExpireIfStale("f1") {
		t.Error("second lazy expiry must be a no-op")
	}
}
