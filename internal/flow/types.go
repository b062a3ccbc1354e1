package flow

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/aqubia/stepgate/api"
)

var (
	// ErrDuplicateFlow is returned when a flow id is submitted a second time.
	ErrDuplicateFlow = errors.New("flow id already in use")

	// ErrNotFound is returned when no record exists for a flow id.
	ErrNotFound = errors.New("flow not found")
)

// OperatorMessage identifies the notification message sent to the operator
// channel, kept so the inline actions can be disabled after a decision.
type OperatorMessage struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// Pending is one flow awaiting a decision.
type Pending struct {
	FlowID    string                     `json:"flow_id"`
	Payload   map[string]json.RawMessage `json:"payload,omitempty"`
	Meta      map[string]string          `json:"meta,omitempty"`
	CreatedAt time.Time                  `json:"created_at"`
	Status    api.FlowStatus             `json:"status"`

	// Fallback marks a record synthesized by the status endpoint for a flow
	// the store had never seen. The operator was not notified for it.
	Fallback bool `json:"fallback,omitempty"`

	// NotifyFailed marks a flow whose operator notification could not be
	// delivered; the flow is still resolvable via the manual endpoint.
	NotifyFailed bool `json:"notify_failed,omitempty"`

	Message *OperatorMessage `json:"message,omitempty"`
}

// Result is the terminal decision for a flow. Exactly one exists per
// resolved flow; the first resolution wins and later attempts are no-ops.
type Result struct {
	FlowID    string     `json:"flow_id"`
	Approved  bool       `json:"approved"`
	Reason    string     `json:"reason,omitempty"`
	Source    api.Source `json:"source"`
	Timestamp time.Time  `json:"timestamp"`
}
