package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/learning/bkt"
	"github.com/yungbote/neurobridge-mastery/internal/learning/skills"
	"github.com/yungbote/neurobridge-mastery/internal/observability"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

type trimmer struct {
	calls int
	err   error
}

func (t *trimmer) TrimHistory(ctx context.Context) (int, error) {
	t.calls++
	return 0, t.err
}

func TestRunOnceReestimate(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	reg := skills.NewRegistry(store, nil, logger.NewNop())
	est := bkt.New(store, reg, logger.NewNop(), bkt.DefaultConfig())
	for i := 0; i < 4; i++ {
		if _, err := est.UpdateMastery(ctx, "u1", "css-grid", i%2 == 0); err != nil {
			t.Fatalf("UpdateMastery: %v", err)
		}
	}
	if _, err := est.UpdateMastery(ctx, "u1", "html-forms", true); err != nil {
		t.Fatalf("UpdateMastery: %v", err)
	}

	m := observability.NewMetrics(prometheus.NewRegistry())
	s := NewScheduler(logger.NewNop(), m, ReestimateJob(est, time.Hour, logger.NewNop(), m))
	if err := s.RunOnce(ctx, JobReestimate); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := testutil.CollectAndCount(m.Registry(), "mastery_job_runs_total"); got != 1 {
		t.Fatalf("job run series = %d", got)
	}
}

func TestRunOnceReportsFailure(t *testing.T) {
	tr := &trimmer{err: errors.New("store down")}
	s := NewScheduler(logger.NewNop(), nil, TrimHistoryJob(tr, time.Hour))
	if err := s.RunOnce(context.Background(), JobTrimHistory); err == nil {
		t.Fatalf("expected error")
	}
	if err := s.RunOnce(context.Background(), "nope"); err == nil {
		t.Fatalf("expected unknown job error")
	}
	if tr.calls != 1 {
		t.Fatalf("calls = %d", tr.calls)
	}
}

func TestScheduleSkipsDisabledJobs(t *testing.T) {
	tr := &trimmer{}
	s := NewScheduler(logger.NewNop(), nil,
		TrimHistoryJob(tr, time.Hour),
		Job{Name: "disabled", Every: 0, Run: func(context.Context) error { return nil }},
	)
	if err := s.schedule(context.Background()); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if got := len(s.s.Jobs()); got != 1 {
		t.Fatalf("scheduled jobs = %d, want 1", got)
	}
	if tr.calls != 0 {
		t.Fatalf("job ran at registration")
	}
}
