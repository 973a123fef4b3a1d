package outcome

import (
	"context"

	"github.com/yungbote/neurobridge-mastery/internal/learning/engine"
)

const (
	WorkflowName   = "record_outcome"
	ActivityRecord = "record_outcome_apply"

	// ErrTypeInvalidOutcome marks activity failures that retrying cannot fix.
	ErrTypeInvalidOutcome = "InvalidOutcome"
)

// Recorder is the in-process outcome pipeline the activity runs.
type Recorder interface {
	RecordOutcome(ctx context.Context, out engine.Outcome) (engine.Result, error)
}
