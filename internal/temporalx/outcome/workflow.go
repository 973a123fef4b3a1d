package outcome

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/neurobridge-mastery/internal/learning/engine"
)

// Workflow applies one outcome through the engine as a single activity.
// Each component persists independently, so the activity runs exactly once:
// after a partial failure the caller decides whether to submit the outcome
// again.
func Workflow(ctx workflow.Context, out engine.Outcome) (engine.Result, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        1,
			NonRetryableErrorTypes: []string{ErrTypeInvalidOutcome},
		},
	})
	var res engine.Result
	if err := workflow.ExecuteActivity(ctx, ActivityRecord, out).Get(ctx, &res); err != nil {
		workflow.GetLogger(ctx).Warn("outcome activity failed", "skill_id", out.SkillID, "error", err)
		return engine.Result{}, err
	}
	return res, nil
}
