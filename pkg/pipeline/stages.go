package pipeline

import (
	"context"
	"encoding/json"
)

// StageFunc adapts a named function to the Stage interface.
type StageFunc struct {
	name string
	fn   func(ctx context.Context, previous []json.RawMessage) ([]json.RawMessage, error)
}

// NewStage wraps fn as a Stage.
func NewStage(name string, fn func(ctx context.Context, previous []json.RawMessage) ([]json.RawMessage, error)) *StageFunc {
	return &StageFunc{name: name, fn: fn}
}

// Name returns the stage name used as the checkpoint key.
func (s *StageFunc) Name() string { return s.name }

// Requests builds the stage's batch requests.
func (s *StageFunc) Requests(ctx context.Context, previous []json.RawMessage) ([]json.RawMessage, error) {
	return s.fn(ctx, previous)
}

// Passthrough builds a stage whose requests are the previous stage's results
// unchanged. Useful when the engine consumes one stage's output directly.
func Passthrough(name string) *StageFunc {
	return NewStage(name, func(_ context.Context, previous []json.RawMessage) ([]json.RawMessage, error) {
		return previous, nil
	})
}
