package outcome

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/neurobridge-mastery/internal/learning/engine"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

// Dispatcher runs RecordOutcome as a workflow and waits for its result. It
// satisfies the same Recorder interface as the engine so hosts can swap one
// for the other.
type Dispatcher struct {
	client    temporalsdkclient.Client
	taskQueue string
	timeout   time.Duration
	log       *logger.Logger
}

func NewDispatcher(c temporalsdkclient.Client, taskQueue string, timeout time.Duration, baseLog *logger.Logger) *Dispatcher {
	return &Dispatcher{
		client:    c,
		taskQueue: taskQueue,
		timeout:   timeout,
		log:       baseLog.With("component", "OutcomeDispatcher"),
	}
}

func (d *Dispatcher) RecordOutcome(ctx context.Context, out engine.Outcome) (engine.Result, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	run, err := d.client.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:        "outcome-" + uuid.NewString(),
		TaskQueue: d.taskQueue,
	}, WorkflowName, out)
	if err != nil {
		return engine.Result{}, fmt.Errorf("start outcome workflow: %w", err)
	}
	d.log.Debug("outcome workflow started", "workflow_id", run.GetID(), "skill_id", out.SkillID)
	var res engine.Result
	if err := run.Get(ctx, &res); err != nil {
		return engine.Result{}, fmt.Errorf("outcome workflow %s: %w", run.GetID(), err)
	}
	return res, nil
}
