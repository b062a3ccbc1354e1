package screen

import "context"

// Engine is the interface for screening evaluation backends.
type Engine interface {
	// Evaluate checks a submission against loaded rules and returns a verdict.
	Evaluate(ctx context.Context, input *EvalInput) (*EvalResult, error)

	// Reload reloads rules from the source (file, remote, etc.).
	Reload(ctx context.Context) error
}
