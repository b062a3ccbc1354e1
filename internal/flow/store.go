package flow

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aqubia/stepgate/api"
)

// ExpiredReason is recorded on flows the sweeper resolves.
const ExpiredReason = "approval window expired"

// Store is the process-wide flow registry. One mutex guards both the pending
// and result maps so a resolve is atomic with respect to status reads and to
// a second resolve for the same flow id.
type Store struct {
	mu      sync.RWMutex
	pending map[string]*Pending
	results map[string]*Result

	ttl    time.Duration
	logger *slog.Logger
}

// NewStore creates a store. Pending flows older than ttl are expired by the
// sweeper; a ttl of zero disables expiry.
func NewStore(ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		pending: make(map[string]*Pending),
		results: make(map[string]*Result),
		ttl:     ttl,
		logger:  logger,
	}
}

// Create registers a new pending flow. A flow id that is already pending or
// already resolved is rejected with ErrDuplicateFlow; clients mint a fresh
// id per attempt.
func (s *Store) Create(flowID string, payload map[string]json.RawMessage, meta map[string]string) (Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[flowID]; ok {
		return Pending{}, ErrDuplicateFlow
	}
	if _, ok := s.results[flowID]; ok {
		return Pending{}, ErrDuplicateFlow
	}

	p := &Pending{
		FlowID:    flowID,
		Payload:   payload,
		Meta:      meta,
		CreatedAt: time.Now(),
		Status:    api.FlowPending,
	}
	s.pending[flowID] = p
	return *p, nil
}

// CreateFallback synthesizes a pending record for a flow id the store has
// never seen (status probe after a restart, or a stale client id). Returns
// false without error when a record already exists, so repeated probes for
// the same unknown id are idempotent.
func (s *Store) CreateFallback(flowID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[flowID]; ok {
		return false
	}
	if _, ok := s.results[flowID]; ok {
		return false
	}

	s.pending[flowID] = &Pending{
		FlowID:    flowID,
		CreatedAt: time.Now(),
		Status:    api.FlowPending,
		Fallback:  true,
	}
	return true
}

// Resolve records the decision for a flow. The first call wins and returns
// (true, nil); a later call for an already-resolved flow is a no-op and
// returns (false, nil) with the original result untouched. An unknown flow
// id returns (false, ErrNotFound).
func (s *Store) Resolve(flowID string, approved bool, reason string, source api.Source) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(flowID, approved, reason, source)
}

func (s *Store) resolveLocked(flowID string, approved bool, reason string, source api.Source) (bool, error) {
	if _, ok := s.results[flowID]; ok {
		return false, nil
	}
	p, ok := s.pending[flowID]
	if !ok {
		return false, ErrNotFound
	}

	p.Status = api.FlowResolved
	s.results[flowID] = &Result{
		FlowID:    flowID,
		Approved:  approved,
		Reason:    reason,
		Source:    source,
		Timestamp: time.Now(),
	}
	return true, nil
}

// GetPending returns the pending record for a flow id.
func (s *Store) GetPending(flowID string) (Pending, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pending[flowID]
	if !ok {
		return Pending{}, ErrNotFound
	}
	return *p, nil
}

// GetResult returns the resolution for a flow id, if one exists.
func (s *Store) GetResult(flowID string) (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[flowID]
	if !ok {
		return Result{}, ErrNotFound
	}
	return *r, nil
}

// SetOperatorMessage records the operator-channel message for a flow so its
// inline actions can be edited after the decision.
func (s *Store) SetOperatorMessage(flowID string, msg OperatorMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[flowID]; ok {
		p.Message = &msg
	}
}

// MarkNotifyFailed flags a flow whose outbound notification failed.
func (s *Store) MarkNotifyFailed(flowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[flowID]; ok {
		p.NotifyFailed = true
	}
}

// ListPending returns unresolved flows ordered by creation time. Debug and
// ops use only.
func (s *Store) ListPending() []Pending {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Pending
	for _, p := range s.pending {
		if p.Status == api.FlowPending {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ListResults returns all recorded resolutions ordered by decision time.
func (s *Store) ListResults() []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Result
	for _, r := range s.results {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Counts returns the number of tracked pending and resolved flows.
func (s *Store) Counts() (pending, resolved int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.pending {
		if p.Status == api.FlowPending {
			pending++
		}
	}
	return pending, len(s.results)
}

// ExpireIfStale lazily expires a single flow on access. Returns true if this
// call resolved the flow as expired.
func (s *Store) ExpireIfStale(flowID string) bool {
	if s.ttl <= 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[flowID]
	if !ok || p.Status != api.FlowPending {
		return false
	}
	if time.Since(p.CreatedAt) < s.ttl {
		return false
	}
	won, _ := s.resolveLocked(flowID, false, ExpiredReason, api.SourceExpired)
	return won
}

// Sweep expires pending flows older than the TTL and evicts results older
// than twice the TTL. It returns the resolutions it produced.
func (s *Store) Sweep(now time.Time) []Result {
	if s.ttl <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []Result
	for id, p := range s.pending {
		if p.Status != api.FlowPending {
			continue
		}
		if now.Sub(p.CreatedAt) < s.ttl {
			continue
		}
		if won, _ := s.resolveLocked(id, false, ExpiredReason, api.SourceExpired); won {
			expired = append(expired, *s.results[id])
		}
	}

	// Evict terminal records the poller has long since given up on.
	cutoff := now.Add(-2 * s.ttl)
	for id, r := range s.results {
		if r.Timestamp.Before(cutoff) {
			delete(s.results, id)
			delete(s.pending, id)
		}
	}

	return expired
}
