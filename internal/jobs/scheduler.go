// Package jobs runs periodic maintenance of the learner model: BKT parameter
// re-estimation and feedback history trimming.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/yungbote/neurobridge-mastery/internal/learning/bkt"
	"github.com/yungbote/neurobridge-mastery/internal/observability"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

const (
	JobReestimate  = "bkt_reestimate"
	JobTrimHistory = "feedback_trim_history"
)

type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

type Reestimator interface {
	ReestimateParameters(ctx context.Context) ([]bkt.Reestimation, error)
}

type HistoryTrimmer interface {
	TrimHistory(ctx context.Context) (int, error)
}

// ReestimateJob blends freshly fitted BKT parameters into every skill with
// enough observations.
func ReestimateJob(est Reestimator, every time.Duration, log *logger.Logger, m *observability.Metrics) Job {
	return Job{
		Name:  JobReestimate,
		Every: every,
		Run: func(ctx context.Context) error {
			res, err := est.ReestimateParameters(ctx)
			if err != nil {
				return err
			}
			adjusted := 0
			for _, r := range res {
				m.IncReestimation(r.Reason)
				if r.Adjusted {
					adjusted++
				}
			}
			log.Info("bkt parameters re-estimated", "skills", len(res), "adjusted", adjusted)
			return nil
		},
	}
}

func TrimHistoryJob(loop HistoryTrimmer, every time.Duration) Job {
	return Job{
		Name:  JobTrimHistory,
		Every: every,
		Run: func(ctx context.Context) error {
			_, err := loop.TrimHistory(ctx)
			return err
		},
	}
}

type Scheduler struct {
	s       *gocron.Scheduler
	log     *logger.Logger
	metrics *observability.Metrics
	jobs    map[string]Job
}

func NewScheduler(baseLog *logger.Logger, m *observability.Metrics, jobs ...Job) *Scheduler {
	s := &Scheduler{
		s:       gocron.NewScheduler(time.UTC),
		log:     baseLog.With("component", "JobScheduler"),
		metrics: m,
		jobs:    map[string]Job{},
	}
	s.s.SingletonModeAll()
	for _, j := range jobs {
		s.jobs[j.Name] = j
	}
	return s
}

func (s *Scheduler) Names() []string {
	out := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// RunOnce executes one job synchronously.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("jobs: unknown job %q", name)
	}
	return s.exec(ctx, j)
}

func (s *Scheduler) exec(ctx context.Context, j Job) error {
	start := time.Now()
	err := j.Run(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		s.log.Warn("job failed", "job", j.Name, "error", err, "duration_ms", time.Since(start).Milliseconds())
	} else {
		s.log.Debug("job finished", "job", j.Name, "duration_ms", time.Since(start).Milliseconds())
	}
	s.metrics.IncJobRun(j.Name, status)
	return err
}

// schedule registers every job with a positive interval. Jobs do not run at
// registration; the first run is one interval after start.
func (s *Scheduler) schedule(ctx context.Context) error {
	for _, name := range s.Names() {
		j := s.jobs[name]
		if j.Every <= 0 {
			s.log.Info("job disabled", "job", j.Name)
			continue
		}
		_, err := s.s.Every(j.Every).WaitForSchedule().Tag(j.Name).Do(func() {
			_ = s.exec(ctx, j)
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", j.Name, err)
		}
		s.log.Info("job scheduled", "job", j.Name, "every", j.Every.String())
	}
	return nil
}

// Run schedules the jobs and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.schedule(ctx); err != nil {
		return err
	}
	s.s.StartAsync()
	<-ctx.Done()
	s.s.Stop()
	return nil
}
