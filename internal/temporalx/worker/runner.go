// Package worker hosts the outcome workflow and activity on a Temporal task
// queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	sdkworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/neurobridge-mastery/internal/observability"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
	"github.com/yungbote/neurobridge-mastery/internal/temporalx"
	"github.com/yungbote/neurobridge-mastery/internal/temporalx/outcome"
)

type Runner struct {
	log      *logger.Logger
	tc       temporalsdkclient.Client
	cfg      temporalx.Config
	recorder outcome.Recorder
	metrics  *observability.Metrics
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, cfg temporalx.Config, recorder outcome.Recorder, m *observability.Metrics) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if recorder == nil {
		return nil, fmt.Errorf("temporal worker needs an outcome recorder")
	}
	return &Runner{log: log.With("component", "TemporalWorker"), tc: tc, cfg: cfg, recorder: recorder, metrics: m}, nil
}

func (r *Runner) newWorker() sdkworker.Worker {
	n := r.cfg.WorkerConcurrency
	if n < 1 {
		n = 1
	}
	w := sdkworker.New(r.tc, r.cfg.TaskQueue, sdkworker.Options{
		MaxConcurrentActivityExecutionSize:     n,
		MaxConcurrentWorkflowTaskExecutionSize: n,
	})
	acts := &outcome.Activities{Log: r.log, Recorder: r.recorder, Metrics: r.metrics}
	w.RegisterWorkflowWithOptions(outcome.Workflow, workflow.RegisterOptions{Name: outcome.WorkflowName})
	w.RegisterActivityWithOptions(acts.Record, activity.RegisterOptions{Name: outcome.ActivityRecord})
	return w
}

// Run starts the worker, retrying while the cluster is unreachable, and
// blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	deadline := time.Now().Add(r.cfg.DialMaxWait)
	for attempt := 1; ; attempt++ {
		w := r.newWorker()
		err := w.Start()
		if err == nil {
			r.log.Info("temporal worker started", "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			<-ctx.Done()
			w.Stop()
			return nil
		}
		w.Stop()

		var notFound *serviceerror.NamespaceNotFound
		if errors.As(err, &notFound) && r.cfg.AutoRegisterNamespace {
			if nsErr := temporalx.EnsureNamespace(ctx, r.log, r.cfg); nsErr != nil {
				r.log.Warn("temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", nsErr)
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("temporal worker start (namespace=%s): %w", r.cfg.Namespace, err)
		}
		r.log.Warn("temporal worker failed to start; retrying", "task_queue", r.cfg.TaskQueue, "attempt", attempt, "error", err)

		t := time.NewTimer(temporalx.Backoff(r.cfg.Backoff, r.cfg.BackoffMax, attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
