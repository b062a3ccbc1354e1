package api

import "time"

// QueryFilter defines criteria for querying audit events.
type QueryFilter struct {
	Since  time.Time `json:"since,omitempty"`
	Until  time.Time `json:"until,omitempty"`
	FlowID string    `json:"flow_id,omitempty"`
	Event  string    `json:"event,omitempty"`
	Source Source    `json:"source,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// AuditStats provides summary statistics for the stats endpoint.
type AuditStats struct {
	TotalEvents    int            `json:"total_events"`
	Submitted      int            `json:"submitted"`
	Approved       int            `json:"approved"`
	Rejected       int            `json:"rejected"`
	Expired        int            `json:"expired"`
	NotifyFailures int            `json:"notify_failures"`
	Fallbacks      int            `json:"fallbacks"`
	BySource       map[string]int `json:"by_source"`
}
