// Package notify delivers approval requests to the operator channel and
// acknowledges the operator's decisions.
package notify

import (
	"context"
	"log/slog"
)

// Actions carries the two callback tokens embedded in a notification. The
// channel echoes the chosen token back verbatim on operator action.
type Actions struct {
	ApproveToken string
	RejectToken  string
}

// MessageRef identifies a delivered notification message so it can be edited
// after the decision.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Notifier is the outbound operator-channel capability. Notify is
// best-effort from the caller's point of view: failures are logged and
// counted but never fail the submission.
type Notifier interface {
	// Notify sends one approval request with inline approve/reject actions.
	Notify(ctx context.Context, flowID, summary string, actions Actions) (*MessageRef, error)

	// AnswerCallback acknowledges a callback event so the channel stops the
	// client-side spinner and does not retry.
	AnswerCallback(ctx context.Context, callbackID, text string) error

	// DisableActions removes the inline actions from a delivered message
	// once the flow is resolved.
	DisableActions(ctx context.Context, ref MessageRef) error
}

// LogNotifier is the fallback used when no operator channel is configured.
// Flows submitted through it stay pending until resolved manually or expired.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, flowID, summary string, actions Actions) (*MessageRef, error) {
	n.logger.Info("operator notification (no channel configured)",
		slog.String("flow_id", flowID),
		slog.String("summary", summary),
		slog.String("approve_token", actions.ApproveToken),
		slog.String("reject_token", actions.RejectToken),
	)
	return nil, nil
}

func (n *LogNotifier) AnswerCallback(_ context.Context, callbackID, text string) error {
	n.logger.Debug("answer callback", slog.String("callback_id", callbackID), slog.String("text", text))
	return nil
}

func (n *LogNotifier) DisableActions(_ context.Context, ref MessageRef) error {
	return nil
}
