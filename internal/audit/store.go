package audit

import (
	"context"

	"github.com/aqubia/stepgate/api"
)

// Store defines the interface for flow event persistence and retrieval.
type Store interface {
	// Write appends a flow event.
	Write(ctx context.Context, event *api.FlowEvent) error

	// Query retrieves flow events matching the filter.
	Query(ctx context.Context, filter api.QueryFilter) ([]*api.FlowEvent, error)

	// Stats returns aggregate statistics.
	Stats(ctx context.Context) (*api.AuditStats, error)

	// Subscribe returns a channel that receives new flow events in real time.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context) (<-chan *api.FlowEvent, func())

	// Close shuts down the store and flushes any buffers.
	Close() error
}
