package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aqubia/stepgate/api"
)

func boolPtr(b bool) *bool { return &b }

func TestJSONLStore_WriteAndQuery(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONLStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()

	event := &api.FlowEvent{
		Timestamp: time.Now(),
		FlowID:    "f1",
		Event:     api.EventSubmitted,
	}
	if err := store.Write(ctx, event); err != nil {
		t.Fatal(err)
	}
	if event.ID == "" {
		t.Error("expected generated event id")
	}

	results, err := store.Query(ctx, api.QueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].FlowID != "f1" {
		t.Errorf("expected flow f1, got %s", results[0].FlowID)
	}
}

func TestJSONLStore_QueryFilter(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONLStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()

	events := []*api.FlowEvent{
		{FlowID: "f1", Event: api.EventSubmitted},
		{FlowID: "f1", Event: api.EventResolved, Approved: boolPtr(true), Source: api.SourceOperator},
		{FlowID: "f2", Event: api.EventSubmitted},
		{FlowID: "f2", Event: api.EventExpired, Source: api.SourceExpired},
	}
	for _, e := range events {
		if err := store.Write(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	byFlow, err := store.Query(ctx, api.QueryFilter{FlowID: "f1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byFlow) != 2 {
		t.Errorf("expected 2 events for f1, got %d", len(byFlow))
	}

	byEvent, err := store.Query(ctx, api.QueryFilter{Event: api.EventExpired})
	if err != nil {
		t.Fatal(err)
	}
	if len(byEvent) != 1 || byEvent[0].FlowID != "f2" {
		t.Errorf("unexpected expired query result: %v", byEvent)
	}

	limited, err := store.Query(ctx, api.QueryFilter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}
}

func TestJSONLStore_Stats(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONLStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()

	events := []*api.FlowEvent{
		{FlowID: "f1", Event: api.EventSubmitted},
		{FlowID: "f1", Event: api.EventResolved, Approved: boolPtr(true), Source: api.SourceOperator},
		{FlowID: "f2", Event: api.EventSubmitted},
		{FlowID: "f2", Event: api.EventResolved, Approved: boolPtr(false), Source: api.SourceManual},
		{FlowID: "f3", Event: api.EventNotifyFailed},
		{FlowID: "f4", Event: api.EventFallback},
	}
	for _, e := range events {
		if err := store.Write(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Submitted != 2 {
		t.Errorf("submitted: got %d", stats.Submitted)
	}
	if stats.Approved != 1 || stats.Rejected != 1 {
		t.Errorf("approved/rejected: got %d/%d", stats.Approved, stats.Rejected)
	}
	if stats.NotifyFailures != 1 {
		t.Errorf("notify failures: got %d", stats.NotifyFailures)
	}
	if stats.Fallbacks != 1 {
		t.Errorf("fallbacks: got %d", stats.Fallbacks)
	}
	if stats.BySource["operator"] != 1 || stats.BySource["manual"] != 1 {
		t.Errorf("by source: got %v", stats.BySource)
	}
}

func TestJSONLStore_Subscribe(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONLStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	ch, cancel := store.Subscribe(ctx)
	defer cancel()

	if err := store.Write(ctx, &api.FlowEvent{FlowID: "f1", Event: api.EventSubmitted}); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-ch:
		if e.FlowID != "f1" {
			t.Errorf("expected f1, got %s", e.FlowID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscribed event")
	}
}

func TestJSONLStore_FileOnDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONLStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Write(context.Background(), &api.FlowEvent{FlowID: "f1", Event: api.EventSubmitted}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	name := filepath.Join(dir, "flows-"+time.Now().Format("2006-01-02")+".jsonl")
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("expected JSONL file to contain the event")
	}
}
