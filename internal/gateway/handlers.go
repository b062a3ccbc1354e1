package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aqubia/stepgate/api"
	"github.com/aqubia/stepgate/internal/flow"
	"github.com/aqubia/stepgate/internal/metrics"
	"github.com/aqubia/stepgate/internal/notify"
	"github.com/aqubia/stepgate/internal/screen"
	"github.com/aqubia/stepgate/internal/token"
)

const maxBodySize = 1 << 20

// rejectedByOperator is the reason recorded when the operator channel
// delivers a reject action, which carries no free-form text of its own.
const rejectedByOperator = "rejected by operator"

// handleSubmit registers a new flow, screens it, and (for the "ask" verdict)
// notifies the operator channel. It never waits for the decision.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow(time.Now()) {
		writeError(w, http.StatusTooManyRequests, "submission rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body")
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var flowID string
	if raw, ok := fields["flowId"]; ok {
		if err := json.Unmarshal(raw, &flowID); err != nil {
			writeError(w, http.StatusBadRequest, "flowId must be a string")
			return
		}
	}
	if flowID == "" {
		writeError(w, http.StatusBadRequest, "flowId is required")
		return
	}

	var meta map[string]string
	if raw, ok := fields["meta"]; ok {
		if err := json.Unmarshal(raw, &meta); err != nil {
			writeError(w, http.StatusBadRequest, "meta must be a string map")
			return
		}
	}
	delete(fields, "flowId")
	delete(fields, "meta")

	if _, err := s.store.Create(flowID, fields, meta); err != nil {
		if errors.Is(err, flow.ErrDuplicateFlow) {
			writeError(w, http.StatusConflict, "flowId already in use; submit with a fresh id")
			return
		}
		writeError(w, http.StatusInternalServerError, "creating flow")
		return
	}
	s.recordEvent(&api.FlowEvent{FlowID: flowID, Event: api.EventSubmitted, Payload: body})

	payloadJSON, _ := json.Marshal(fields)
	result, err := s.engine.Evaluate(r.Context(), &screen.EvalInput{Payload: payloadJSON, Meta: meta})
	if err != nil {
		// A broken screening backend must not strand the flow; escalate.
		s.logger.Error("screening failed, escalating to operator",
			slog.String("flow_id", flowID), slog.Any("error", err))
		result = &screen.EvalResult{Verdict: api.VerdictAsk, Rule: "_screen_error"}
	}
	s.recordEvent(&api.FlowEvent{
		FlowID: flowID,
		Event:  api.EventScreened,
		Rule:   result.Rule,
		Detail: string(result.Verdict),
	})
	metrics.SubmissionsTotal.WithLabelValues(string(result.Verdict)).Inc()

	switch result.Verdict {
	case api.VerdictAllow:
		s.resolveAndRecord(flowID, true, result.Message, api.SourceAuto, result.Rule)
	case api.VerdictDeny:
		reason := result.Message
		if reason == "" {
			reason = "rejected by screening rule " + result.Rule
		}
		s.resolveAndRecord(flowID, false, reason, api.SourceAuto, result.Rule)
	default:
		s.notifyOperator(r.Context(), flowID, fields, meta)
	}

	s.updatePendingGauge()
	writeJSON(w, http.StatusOK, api.SubmitResponse{OK: true, Verdict: result.Verdict})
}

// notifyOperator fires the single best-effort outbound notification. A
// failure leaves the flow pending and resolvable via the manual endpoint.
func (s *Server) notifyOperator(ctx context.Context, flowID string, payload map[string]json.RawMessage, meta map[string]string) {
	// The notification must survive the client hanging up right after the
	// submit response.
	ctx = context.WithoutCancel(ctx)

	ref, err := s.notifier.Notify(ctx, flowID, buildSummary(flowID, payload, meta), notify.Actions{
		ApproveToken: token.Approve(flowID),
		RejectToken:  token.Reject(flowID),
	})
	if err != nil {
		s.logger.Error("operator notification failed",
			slog.String("flow_id", flowID), slog.Any("error", err))
		s.store.MarkNotifyFailed(flowID)
		s.recordEvent(&api.FlowEvent{FlowID: flowID, Event: api.EventNotifyFailed, Detail: err.Error()})
		metrics.NotifyFailuresTotal.Inc()
		return
	}

	if ref != nil {
		s.store.SetOperatorMessage(flowID, flow.OperatorMessage{ChatID: ref.ChatID, MessageID: ref.MessageID})
	}
	s.recordEvent(&api.FlowEvent{FlowID: flowID, Event: api.EventNotified})
}

// handleStatus reports the current resolution state of a flow. It never
// blocks; the client polls.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	flowID := r.URL.Query().Get("flowId")
	if flowID == "" {
		writeError(w, http.StatusBadRequest, "flowId query parameter is required")
		return
	}

	if s.store.ExpireIfStale(flowID) {
		s.onExpired(flowID)
	}

	if result, err := s.store.GetResult(flowID); err == nil {
		writeJSON(w, http.StatusOK, api.StatusResponse{
			Status:   api.FlowResolved,
			Approved: &result.Approved,
			Reason:   result.Reason,
		})
		return
	}

	if _, err := s.store.GetPending(flowID); err == nil {
		writeJSON(w, http.StatusOK, api.StatusResponse{Status: api.FlowPending})
		return
	}

	// The flow id was never seen: the server may have restarted, or the
	// client holds a stale id. Either strand the client with an error, or
	// synthesize a record the operator can still act on.
	if !s.fallback {
		writeError(w, http.StatusNotFound, "flow not found")
		return
	}

	if s.store.CreateFallback(flowID) {
		s.logger.Warn("synthesized pending record for unknown flow",
			slog.String("flow_id", flowID))
		s.recordEvent(&api.FlowEvent{FlowID: flowID, Event: api.EventFallback})
		metrics.FallbacksTotal.Inc()
		s.updatePendingGauge()
	}
	writeJSON(w, http.StatusOK, api.StatusResponse{Status: api.FlowPending, Fallback: true})
}

// handleWebhook accepts the operator channel's callback events. It always
// answers 200 so the channel does not retry; anything that cannot be applied
// is logged and dropped.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	// The acknowledgment is unconditional, decided before any processing.
	defer writeJSON(w, http.StatusOK, map[string]bool{"ok": true})

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.dropCallback("", "read_error", err.Error())
		return
	}

	var update notify.Update
	if err := json.Unmarshal(body, &update); err != nil {
		s.dropCallback("", "malformed_envelope", err.Error())
		return
	}
	cq := update.CallbackQuery
	if cq == nil {
		// Not a button press; other update kinds are none of our business.
		return
	}

	action, flowID, err := token.Parse(cq.Data)
	if err != nil {
		s.dropCallback("", "malformed_token", err.Error())
		s.answerCallback(r.Context(), cq.ID, "Unrecognized action")
		return
	}

	approved := action == token.ActionApprove
	reason := ""
	if !approved {
		reason = rejectedByOperator
	}

	won, err := s.store.Resolve(flowID, approved, reason, api.SourceOperator)
	switch {
	case errors.Is(err, flow.ErrNotFound):
		// Stale or replayed callback, or the flow expired already.
		s.dropCallback(flowID, "unknown_flow", "")
		s.answerCallback(r.Context(), cq.ID, "Flow no longer exists")
		return
	case err != nil:
		s.dropCallback(flowID, "store_error", err.Error())
		return
	case !won:
		// Duplicate delivery or the operator clicked twice; first decision
		// stands.
		s.dropCallback(flowID, "already_resolved", "")
		s.answerCallback(r.Context(), cq.ID, "Already decided")
		s.disableActions(r.Context(), flowID, cq)
		return
	}

	s.recordEvent(&api.FlowEvent{
		FlowID:   flowID,
		Event:    api.EventResolved,
		Approved: &approved,
		Reason:   reason,
		Source:   api.SourceOperator,
	})
	metrics.ResolutionsTotal.WithLabelValues(metrics.ResolutionOutcome(approved), string(api.SourceOperator)).Inc()
	s.updatePendingGauge()

	s.logger.Info("flow resolved by operator",
		slog.String("flow_id", flowID),
		slog.Bool("approved", approved),
	)

	ack := "Rejected ❌"
	if approved {
		ack = "Approved ✅"
	}
	s.answerCallback(r.Context(), cq.ID, ack)
	s.disableActions(r.Context(), flowID, cq)
}

// handleManualResolve force-resolves a flow. Ops/test scaffolding, mirrors
// the operator path but takes a caller-supplied reason.
func (s *Server) handleManualResolve(w http.ResponseWriter, r *http.Request) {
	flowID := r.PathValue("id")

	var req api.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Action != "approve" && req.Action != "reject" {
		writeError(w, http.StatusBadRequest, `action must be "approve" or "reject"`)
		return
	}

	approved := req.Action == "approve"
	reason := req.Reason
	if !approved && reason == "" {
		reason = "rejected manually"
	}

	won, err := s.store.Resolve(flowID, approved, reason, api.SourceManual)
	if errors.Is(err, flow.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, api.ResolveResponse{OK: false, Error: fmt.Sprintf("no flow found for id %q", flowID)})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "resolving flow")
		return
	}
	if !won {
		writeJSON(w, http.StatusOK, api.ResolveResponse{OK: false, Error: "flow already resolved"})
		return
	}

	s.recordEvent(&api.FlowEvent{
		FlowID:   flowID,
		Event:    api.EventResolved,
		Approved: &approved,
		Reason:   reason,
		Source:   api.SourceManual,
	})
	metrics.ResolutionsTotal.WithLabelValues(metrics.ResolutionOutcome(approved), string(api.SourceManual)).Inc()
	s.updatePendingGauge()
	s.disableActions(r.Context(), flowID, nil)

	writeJSON(w, http.StatusOK, api.ResolveResponse{OK: true, Approved: approved})
}

// handleDebug dumps the store. Ops use only.
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	pendingCount, resolvedCount := s.store.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"debug": map[string]any{
			"pendingCount":  pendingCount,
			"resolvedCount": resolvedCount,
			"pending":       s.store.ListPending(),
			"results":       s.store.ListResults(),
		},
	})
}

// handleAuditLog serves recorded flow events as JSON, newest first. Filters
// come from query parameters; the default window is the 100 most recent
// matching events.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := api.QueryFilter{
		FlowID: q.Get("flowId"),
		Event:  q.Get("event"),
		Source: api.Source(q.Get("source")),
		Limit:  100,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must not be negative")
			return
		}
		filter.Offset = n
	}

	records, err := s.audit.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query audit log")
		return
	}

	// Newest first
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	if records == nil {
		records = []*api.FlowEvent{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.audit.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleEvents streams flow events over SSE for live ops tooling.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, cancel := s.audit.Subscribe(r.Context())
	defer cancel()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: flow\ndata: %s\n\n", data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// resolveAndRecord applies an automatic screening decision.
func (s *Server) resolveAndRecord(flowID string, approved bool, reason string, source api.Source, rule string) {
	won, err := s.store.Resolve(flowID, approved, reason, source)
	if err != nil || !won {
		s.logger.Error("auto resolve failed",
			slog.String("flow_id", flowID), slog.Bool("won", won), slog.Any("error", err))
		return
	}
	s.recordEvent(&api.FlowEvent{
		FlowID:   flowID,
		Event:    api.EventResolved,
		Approved: &approved,
		Reason:   reason,
		Source:   source,
		Rule:     rule,
	})
	metrics.ResolutionsTotal.WithLabelValues(metrics.ResolutionOutcome(approved), string(source)).Inc()
}

// onExpired records a lazy expiry produced by a status read.
func (s *Server) onExpired(flowID string) {
	approved := false
	s.recordEvent(&api.FlowEvent{
		FlowID:   flowID,
		Event:    api.EventExpired,
		Approved: &approved,
		Reason:   flow.ExpiredReason,
		Source:   api.SourceExpired,
	})
	metrics.ResolutionsTotal.WithLabelValues("rejected", string(api.SourceExpired)).Inc()
	s.updatePendingGauge()
}

// OnSweepExpired is the sweeper hook; it mirrors onExpired for background
// expiries.
func (s *Server) OnSweepExpired(r flow.Result) {
	s.onExpired(r.FlowID)
}

func (s *Server) dropCallback(flowID, cause, detail string) {
	s.logger.Warn("callback dropped",
		slog.String("flow_id", flowID),
		slog.String("cause", cause),
		slog.String("detail", detail),
	)
	s.recordEvent(&api.FlowEvent{FlowID: flowID, Event: api.EventCallbackDrop, Detail: cause})
	metrics.CallbacksDroppedTotal.WithLabelValues(cause).Inc()
}

func (s *Server) answerCallback(ctx context.Context, callbackID, text string) {
	if err := s.notifier.AnswerCallback(context.WithoutCancel(ctx), callbackID, text); err != nil {
		s.logger.Warn("answering callback failed", slog.Any("error", err))
	}
}

// disableActions removes the inline actions from the operator message, if one
// was delivered. Idempotency UX, not correctness-critical.
func (s *Server) disableActions(ctx context.Context, flowID string, cq *notify.CallbackQuery) {
	ref := notify.MessageRef{}
	if p, err := s.store.GetPending(flowID); err == nil && p.Message != nil {
		ref = notify.MessageRef{ChatID: p.Message.ChatID, MessageID: p.Message.MessageID}
	} else if cq != nil && cq.Message != nil {
		ref = notify.MessageRef{ChatID: cq.Message.Chat.ID, MessageID: cq.Message.MessageID}
	} else {
		return
	}

	if err := s.notifier.DisableActions(context.WithoutCancel(ctx), ref); err != nil {
		s.logger.Warn("disabling message actions failed",
			slog.String("flow_id", flowID), slog.Any("error", err))
	}
}

func (s *Server) recordEvent(event *api.FlowEvent) {
	if err := s.audit.Write(context.Background(), event); err != nil {
		s.logger.Error("writing audit event failed", slog.Any("error", err))
	}
}

func (s *Server) updatePendingGauge() {
	pending, _ := s.store.Counts()
	metrics.PendingFlows.Set(float64(pending))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}
