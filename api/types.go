package api

import (
	"encoding/json"
	"time"
)

// Verdict represents the outcome of a screening evaluation at submission time.
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictDeny  Verdict = "deny"
	VerdictAsk   Verdict = "ask"
)

// FlowStatus is the lifecycle state of a flow as reported to clients.
type FlowStatus string

const (
	FlowPending  FlowStatus = "pending"
	FlowResolved FlowStatus = "resolved"
)

// Source identifies who (or what) produced a resolution.
type Source string

const (
	SourceOperator Source = "operator" // decision via the operator channel
	SourceAuto     Source = "auto"     // screening rule decided without a human
	SourceManual   Source = "manual"   // manual resolve endpoint / CLI
	SourceExpired  Source = "expired"  // TTL sweeper
)

// SubmitResponse acknowledges a submission. Submissions never wait for the
// operator; a 200 only means the flow is registered.
type SubmitResponse struct {
	OK      bool    `json:"ok"`
	Verdict Verdict `json:"verdict,omitempty"`
}

// StatusResponse is returned by GET /api/v1/flows/status.
type StatusResponse struct {
	Status   FlowStatus `json:"status"`
	Approved *bool      `json:"approved,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	Fallback bool       `json:"fallback,omitempty"`
}

// ResolveRequest is the body of the manual resolve endpoint.
type ResolveRequest struct {
	Action string `json:"action"` // "approve" or "reject"
	Reason string `json:"reason,omitempty"`
}

// ResolveResponse reports the effect of a manual resolve.
type ResolveResponse struct {
	OK       bool   `json:"ok"`
	Approved bool   `json:"approved,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CheckRequest is used by the CLI `check` command to dry-run screening rules.
type CheckRequest struct {
	Payload json.RawMessage   `json:"payload,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// CheckResponse is the result of a screening dry-run.
type CheckResponse struct {
	Verdict Verdict `json:"verdict"`
	Rule    string  `json:"rule,omitempty"`
	Message string  `json:"message,omitempty"`
}

// ErrorResponse is the uniform error body for 4xx/5xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Event names recorded in the audit trail, one per observable flow transition.
const (
	EventSubmitted    = "submitted"
	EventScreened     = "screened"
	EventNotified     = "notified"
	EventNotifyFailed = "notify_failed"
	EventResolved     = "resolved"
	EventExpired      = "expired"
	EventFallback     = "fallback_created"
	EventCallbackDrop = "callback_dropped"
)

// FlowEvent is a single audited transition in a flow's life.
type FlowEvent struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	FlowID    string          `json:"flow_id,omitempty"`
	Event     string          `json:"event"`
	Approved  *bool           `json:"approved,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Source    Source          `json:"source,omitempty"`
	Rule      string          `json:"rule,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
