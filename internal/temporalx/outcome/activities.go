package outcome

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/neurobridge-mastery/internal/learning/engine"
	"github.com/yungbote/neurobridge-mastery/internal/learning/feedback"
	"github.com/yungbote/neurobridge-mastery/internal/learning/memory"
	"github.com/yungbote/neurobridge-mastery/internal/observability"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

type Activities struct {
	Log      *logger.Logger
	Recorder Recorder
	Metrics  *observability.Metrics
}

func (a *Activities) Record(ctx context.Context, out engine.Outcome) (engine.Result, error) {
	if a == nil || a.Recorder == nil {
		return engine.Result{}, fmt.Errorf("outcome: activity not configured")
	}
	start := time.Now()
	res, err := a.Recorder.RecordOutcome(ctx, out)
	status := "ok"
	if err != nil {
		status = "error"
	}
	a.Metrics.ObserveActivity(ActivityRecord, status, time.Since(start))
	if err == nil {
		return res, nil
	}
	if errors.Is(err, feedback.ErrInvalidOutcome) || errors.Is(err, memory.ErrInvalidRating) {
		return engine.Result{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidOutcome, err)
	}
	a.Log.Warn("record outcome failed", "skill_id", out.SkillID, "user_id", out.UserID, "error", err)
	return engine.Result{}, err
}
