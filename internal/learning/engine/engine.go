// Package engine builds the learner-model components as explicit instances
// over one store and routes each concluded attempt through them.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/learning/bkt"
	"github.com/yungbote/neurobridge-mastery/internal/learning/feedback"
	"github.com/yungbote/neurobridge-mastery/internal/learning/memory"
	"github.com/yungbote/neurobridge-mastery/internal/learning/recommend"
	"github.com/yungbote/neurobridge-mastery/internal/learning/skills"
	"github.com/yungbote/neurobridge-mastery/internal/learning/velocity"
	"github.com/yungbote/neurobridge-mastery/internal/observability"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

type Config struct {
	BKT       bkt.Config
	Memory    memory.Config
	Velocity  velocity.Config
	Feedback  feedback.Config
	Recommend recommend.Config
	// CategoryDefaults overrides the built-in per-category BKT parameters.
	CategoryDefaults map[string]skills.Params
}

func DefaultConfig() Config {
	return Config{
		BKT:       bkt.DefaultConfig(),
		Memory:    memory.DefaultConfig(),
		Velocity:  velocity.DefaultConfig(),
		Feedback:  feedback.DefaultConfig(),
		Recommend: recommend.DefaultConfig(),
	}
}

func ConfigFromEnv() Config {
	c := Config{
		BKT:       bkt.ConfigFromEnv(),
		Memory:    memory.ConfigFromEnv(),
		Velocity:  velocity.DefaultConfig(),
		Feedback:  feedback.ConfigFromEnv(),
		Recommend: recommend.DefaultConfig(),
	}
	c.Recommend.MasteryThreshold = c.BKT.MasteryThreshold
	return c
}

type Option func(*options)

type options struct {
	now      func() time.Time
	metrics  *observability.Metrics
	recorder feedback.InterventionRecorder
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRecorder sends intervention results to an external recorder instead of
// the built-in tracker.
func WithRecorder(r feedback.InterventionRecorder) Option {
	return func(o *options) { o.recorder = r }
}

// Engine owns one instance of every component. Hosts construct it once and
// pass it to whatever needs it.
type Engine struct {
	Skills   *skills.Registry
	Mastery  *bkt.Estimator
	Memory   *memory.Model
	Velocity *velocity.Tracker
	Feedback *feedback.Loop
	Ranker   *recommend.Ranker

	log     *logger.Logger
	metrics *observability.Metrics
}

func New(store kv.Store, provider skills.Provider, baseLog *logger.Logger, cfg Config, opts ...Option) *Engine {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}

	regOpts := []skills.Option{skills.WithClock(o.now)}
	if len(cfg.CategoryDefaults) > 0 {
		regOpts = append(regOpts, skills.WithCategoryDefaults(cfg.CategoryDefaults))
	}
	reg := skills.NewRegistry(store, provider, baseLog, regOpts...)
	est := bkt.New(store, reg, baseLog, cfg.BKT, bkt.WithClock(o.now))

	fbOpts := []feedback.Option{feedback.WithClock(o.now), feedback.WithMetrics(o.metrics)}
	if o.recorder != nil {
		fbOpts = append(fbOpts, feedback.WithRecorder(o.recorder))
	}
	fb := feedback.New(store, est, baseLog, cfg.Feedback, fbOpts...)
	mem := memory.New(store, baseLog, cfg.Memory, memory.WithClock(o.now))
	vel := velocity.New(store, reg, est, baseLog, cfg.Velocity, velocity.WithClock(o.now), velocity.WithDifficulty(fb))

	if cfg.Recommend.StruggleWindow <= 0 {
		cfg.Recommend.StruggleWindow = fb.StruggleWindow()
	}
	rank := recommend.New(reg, est, fb, baseLog, cfg.Recommend, recommend.WithClock(o.now), recommend.WithReviews(mem))

	return &Engine{
		Skills:   reg,
		Mastery:  est,
		Memory:   mem,
		Velocity: vel,
		Feedback: fb,
		Ranker:   rank,
		log:      baseLog.With("component", "LearningEngine"),
		metrics:  o.metrics,
	}
}

// Outcome is a feedback event plus the optional recall grade.
type Outcome struct {
	feedback.OutcomeEvent
	Rating memory.Rating `json:"rating,omitempty"`
}

type Result struct {
	Feedback feedback.Result      `json:"feedback"`
	Memory   *memory.Curve        `json:"memory,omitempty"`
	Velocity *velocity.SkillStats `json:"velocity,omitempty"`
}

// RecordOutcome runs the feedback loop, which updates mastery, then the
// memory model and, when the attempt has a duration, the velocity tracker.
// Abandoned attempts reach the velocity tracker only. The first error stops
// the remaining steps.
func (e *Engine) RecordOutcome(ctx context.Context, out Outcome) (Result, error) {
	ctx, span := observability.StartSpan(ctx, "engine.RecordOutcome",
		attribute.String("skill_id", out.SkillID),
		attribute.String("outcome", string(out.Outcome)),
	)
	defer span.End()

	res, err := e.recordOutcome(ctx, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	if res.Feedback.Mastery != nil {
		span.SetAttributes(attribute.Float64("mastery.after", res.Feedback.Mastery.After))
	}
	return res, nil
}

func (e *Engine) recordOutcome(ctx context.Context, out Outcome) (Result, error) {
	if out.Rating != 0 && !out.Rating.Valid() {
		return Result{}, fmt.Errorf("%w: %d", memory.ErrInvalidRating, int(out.Rating))
	}
	var res Result
	fr, err := e.Feedback.ProcessOutcome(ctx, out.OutcomeEvent)
	if err != nil {
		return res, err
	}
	res.Feedback = fr
	ev := fr.Entry.OutcomeEvent
	if fr.Mastery != nil {
		e.metrics.ObserveMasteryUpdate(ev.Passed(), fr.Mastery.IsMastered, fr.Mastery.After)
	}

	if ev.Outcome != feedback.OutcomeAbandoned {
		rating := out.Rating
		if rating == 0 {
			rating = DeriveRating(ev)
		}
		curve, err := e.Memory.UpdateStability(ctx, ev.UserID, ev.SkillID, ev.Passed(), rating)
		if err != nil {
			return res, fmt.Errorf("update memory: %w", err)
		}
		res.Memory = &curve
		e.metrics.IncReviewScheduled()
	}

	if ev.TimeSeconds > 0 {
		p, err := e.Velocity.TrackVelocityProgress(ctx, ev.UserID, ev.SkillID, ev.TimeSeconds/60, ev.Passed())
		if err != nil {
			return res, fmt.Errorf("track velocity: %w", err)
		}
		for i := range p.Skills {
			if p.Skills[i].SkillID == ev.SkillID {
				s := p.Skills[i]
				res.Velocity = &s
				break
			}
		}
	}

	e.log.Debug("outcome recorded",
		"user_id", ev.UserID,
		"skill_id", ev.SkillID,
		"outcome", ev.Outcome,
		"adjusted", fr.Thresholds.Adjusted,
		"patterns", len(fr.Patterns),
	)
	return res, nil
}

// DeriveRating grades a recall from how hard the attempt was: failures are
// Again, a struggle of 2 or more or three or more test attempts is Hard, a
// first-try pass with no help is Easy, anything else Good.
func DeriveRating(ev feedback.OutcomeEvent) memory.Rating {
	switch {
	case !ev.Passed():
		return memory.Again
	case ev.StruggleLevel >= 2 || ev.TestAttempts >= 3:
		return memory.Hard
	case ev.StruggleLevel == 0 && ev.TestAttempts <= 1 && ev.ExplainClicks == 0:
		return memory.Easy
	}
	return memory.Good
}
