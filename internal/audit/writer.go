package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aqubia/stepgate/api"
	"github.com/google/uuid"
)

// JSONLStore is an append-only JSONL file audit store with date-based rotation.
type JSONLStore struct {
	mu          sync.Mutex
	dir         string
	currentDate string
	file        *os.File
	writer      *bufio.Writer

	// In-memory buffer for queries and stats (bounded)
	events []*api.FlowEvent
	maxMem int

	// Subscribers for real-time streaming
	subMu   sync.RWMutex
	subs    map[int]chan *api.FlowEvent
	nextSub int
}

// NewJSONLStore creates a new JSONL audit store writing to the given directory.
func NewJSONLStore(dir string) (*JSONLStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	s := &JSONLStore{
		dir:    dir,
		maxMem: 10000,
		subs:   make(map[int]chan *api.FlowEvent),
	}
	return s, nil
}

func (s *JSONLStore) Write(_ context.Context, event *api.FlowEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Rotate file if date changed
	dateStr := event.Timestamp.Format("2006-01-02")
	if dateStr != s.currentDate {
		if err := s.rotate(dateStr); err != nil {
			return err
		}
	}

	// Write JSONL line
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling flow event: %w", err)
	}
	if _, err := s.writer.Write(data); err != nil {
		return err
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return err
	}
	if err := s.writer.Flush(); err != nil {
		return err
	}

	// Keep in memory (bounded)
	if len(s.events) >= s.maxMem {
		s.events = s.events[1:]
	}
	s.events = append(s.events, event)

	// Notify subscribers
	s.notifySubscribers(event)

	return nil
}

func (s *JSONLStore) Query(_ context.Context, filter api.QueryFilter) ([]*api.FlowEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []*api.FlowEvent
	for _, e := range s.events {
		if matchesFilter(e, filter) {
			results = append(results, e)
		}
	}

	// Apply offset and limit
	if filter.Offset > 0 {
		if filter.Offset >= len(results) {
			return nil, nil
		}
		results = results[filter.Offset:]
	}
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}

	return results, nil
}

func (s *JSONLStore) Stats(_ context.Context) (*api.AuditStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &api.AuditStats{
		BySource: make(map[string]int),
	}

	for _, e := range s.events {
		stats.TotalEvents++
		switch e.Event {
		case api.EventSubmitted:
			stats.Submitted++
		case api.EventResolved:
			if e.Approved != nil && *e.Approved {
				stats.Approved++
			} else {
				stats.Rejected++
			}
		case api.EventExpired:
			stats.Expired++
		case api.EventNotifyFailed:
			stats.NotifyFailures++
		case api.EventFallback:
			stats.Fallbacks++
		}
		if e.Source != "" {
			stats.BySource[string(e.Source)]++
		}
	}

	return stats, nil
}

func (s *JSONLStore) Subscribe(_ context.Context) (<-chan *api.FlowEvent, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan *api.FlowEvent, 100)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
		close(ch)
	}

	return ch, cancel
}

func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer != nil {
		if err := s.writer.Flush(); err != nil {
			return err
		}
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

func (s *JSONLStore) rotate(dateStr string) error {
	if s.writer != nil {
		if err := s.writer.Flush(); err != nil {
			return err
		}
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return err
		}
	}

	path := filepath.Join(s.dir, fmt.Sprintf("flows-%s.jsonl", dateStr))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("opening audit log file: %w", err)
	}

	s.file = f
	s.writer = bufio.NewWriter(f)
	s.currentDate = dateStr
	return nil
}

func (s *JSONLStore) notifySubscribers(event *api.FlowEvent) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
			// Drop if subscriber is slow
		}
	}
}

func matchesFilter(e *api.FlowEvent, f api.QueryFilter) bool {
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	if f.FlowID != "" && e.FlowID != f.FlowID {
		return false
	}
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	return true
}
