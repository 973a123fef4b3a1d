// Package feedback consumes the stream of learner outcomes. Each outcome is
// forwarded to the mastery estimator and the intervention recorder, appended
// to a bounded history, and used to recalibrate struggle thresholds, skill
// difficulty and the queue of content issues awaiting review.
package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/learning/bkt"
	"github.com/yungbote/neurobridge-mastery/internal/observability"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

// MasteryUpdater is the part of the mastery estimator the loop drives.
type MasteryUpdater interface {
	UpdateMastery(ctx context.Context, userID, skillID string, correct bool) (bkt.Update, error)
}

type Option func(*Loop)

func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

// WithRecorder replaces the default persisted effectiveness tracker.
func WithRecorder(r InterventionRecorder) Option {
	return func(l *Loop) {
		if r != nil {
			l.recorder = r
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

type Loop struct {
	store    kv.Store
	mastery  MasteryUpdater
	recorder InterventionRecorder
	tracker  *EffectivenessTracker
	log      *logger.Logger
	cfg      Config
	now      func() time.Time
	metrics  *observability.Metrics
}

func New(store kv.Store, mastery MasteryUpdater, baseLog *logger.Logger, cfg Config, opts ...Option) *Loop {
	cfg = cfg.withDefaults()
	l := &Loop{
		store:   store,
		mastery: mastery,
		log:     baseLog.With("component", "FeedbackLoop"),
		cfg:     cfg,
		now:     time.Now,
	}
	l.tracker = NewEffectivenessTracker(store, baseLog, cfg.MinInterventionUses)
	l.recorder = l.tracker
	for _, opt := range opts {
		opt(l)
	}
	l.tracker.now = l.now
	return l
}

func (l *Loop) Config() Config { return l.cfg }

// Interventions exposes the built-in effectiveness tracker. It stays empty
// when a custom recorder was installed.
func (l *Loop) Interventions() *EffectivenessTracker { return l.tracker }

// Result collects what one outcome changed.
type Result struct {
	Entry      HistoryEntry     `json:"entry"`
	Mastery    *bkt.Update      `json:"mastery,omitempty"`
	Thresholds ThresholdResult  `json:"thresholds"`
	Difficulty DifficultyRating `json:"difficulty"`
	Patterns   []Improvement    `json:"patterns,omitempty"`
}

// ProcessOutcome runs one outcome through every stage in order. Each stage
// persists independently; the first store error stops the remaining stages
// and is returned. Abandoned outcomes carry no evidence about knowledge and
// skip the mastery update.
func (l *Loop) ProcessOutcome(ctx context.Context, ev OutcomeEvent) (Result, error) {
	now := l.now()
	if err := ev.Normalize(now); err != nil {
		return Result{}, err
	}
	var res Result
	l.metrics.IncOutcome(string(ev.Outcome))

	if ev.Outcome != OutcomeAbandoned && l.mastery != nil {
		up, err := l.mastery.UpdateMastery(ctx, ev.UserID, ev.SkillID, ev.Passed())
		if err != nil {
			return Result{}, fmt.Errorf("update mastery: %w", err)
		}
		res.Mastery = &up
	}

	if ev.Intervention != "" && l.recorder != nil {
		if err := l.recorder.RecordIntervention(ctx, ev.Intervention, ev.Misconception, ev.Passed()); err != nil {
			return res, fmt.Errorf("record intervention: %w", err)
		}
	}

	history, err := l.loadHistory(ctx)
	if err != nil {
		return res, err
	}
	res.Entry = HistoryEntry{ID: uuid.New(), OutcomeEvent: ev}
	history = l.trim(append(history, res.Entry), now)
	if err := l.saveHistory(ctx, history); err != nil {
		return res, err
	}

	res.Thresholds, err = l.adjustThresholds(ctx, ev.SkillID, history)
	if err != nil {
		return res, err
	}
	l.metrics.IncThresholdAdjustment(res.Thresholds.Adjusted, res.Thresholds.Reason)
	if res.Thresholds.Adjusted {
		l.log.Debug("struggle thresholds adjusted", "skill_id", ev.SkillID, "samples", res.Thresholds.Samples)
	}

	res.Difficulty, err = l.updateDifficulty(ctx, ev)
	if err != nil {
		return res, err
	}

	res.Patterns, err = l.detectPatterns(ctx, ev, history, res.Difficulty)
	if err != nil {
		return res, err
	}
	for _, p := range res.Patterns {
		l.metrics.IncPendingImprovement(string(p.Type))
	}
	return res, nil
}
