// Package memory models forgetting per (learner, skill) with a power-law
// forgetting curve R(t) = (1 + t/(9S))^-1, where S is stability in days.
// Next reviews are always derived from stability and the target retention.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/learning/learner"
	"github.com/yungbote/neurobridge-mastery/internal/platform/envutil"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

const day = 24 * time.Hour

type Config struct {
	TargetRetention   float64
	InitialStability  float64
	MinStability      float64
	MaxStability      float64
	InitialDifficulty float64
	SuccessBase       float64
	SuccessBonus      float64
	FailurePenalty    float64
	MaxReviewHistory  int
}

func DefaultConfig() Config {
	return Config{
		TargetRetention:   0.9,
		InitialStability:  1.0,
		MinStability:      0.1,
		MaxStability:      365,
		InitialDifficulty: 5,
		SuccessBase:       1.3,
		SuccessBonus:      0.2,
		FailurePenalty:    0.5,
		MaxReviewHistory:  50,
	}
}

func ConfigFromEnv() Config {
	c := DefaultConfig()
	c.TargetRetention = envutil.Float("TARGET_RETENTION", c.TargetRetention)
	c.MaxStability = envutil.Float("MEMORY_MAX_STABILITY_DAYS", c.MaxStability)
	return c
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TargetRetention <= 0 || c.TargetRetention >= 1 {
		c.TargetRetention = d.TargetRetention
	}
	if c.MinStability <= 0 {
		c.MinStability = d.MinStability
	}
	if c.MaxStability <= c.MinStability {
		c.MaxStability = math.Max(d.MaxStability, c.MinStability)
	}
	if c.InitialStability <= 0 {
		c.InitialStability = d.InitialStability
	}
	c.InitialStability = clamp(c.InitialStability, c.MinStability, c.MaxStability)
	if c.InitialDifficulty < 1 || c.InitialDifficulty > 10 {
		c.InitialDifficulty = d.InitialDifficulty
	}
	if c.SuccessBase <= 1 {
		c.SuccessBase = d.SuccessBase
	}
	if c.SuccessBonus <= 0 {
		c.SuccessBonus = d.SuccessBonus
	}
	if c.FailurePenalty <= 0 || c.FailurePenalty >= 1 {
		c.FailurePenalty = d.FailurePenalty
	}
	if c.MaxReviewHistory <= 0 {
		c.MaxReviewHistory = d.MaxReviewHistory
	}
	return c
}

type Review struct {
	At              time.Time `json:"at"`
	Success         bool      `json:"success"`
	Rating          Rating    `json:"rating,omitempty"`
	Retrievability  float64   `json:"retrievability"`
	StabilityBefore float64   `json:"stability_before"`
	StabilityAfter  float64   `json:"stability_after"`
}

// Curve is the persisted forgetting state of one skill for one learner.
type Curve struct {
	SkillID    string    `json:"skill_id"`
	Stability  float64   `json:"stability"`
	Difficulty float64   `json:"difficulty"`
	LastReview time.Time `json:"last_review"`
	NextReview time.Time `json:"next_review"`
	Reviews    int       `json:"reviews"`
	Lapses     int       `json:"lapses"`
	History    []Review  `json:"history,omitempty"`
}

type Due struct {
	SkillID        string    `json:"skill_id"`
	Retrievability float64   `json:"retrievability"`
	Stability      float64   `json:"stability"`
	NextReview     time.Time `json:"next_review"`
	OverdueDays    float64   `json:"overdue_days"`
}

type Option func(*Model)

func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

type Model struct {
	store kv.Store
	log   *logger.Logger
	cfg   Config
	now   func() time.Time
}

func New(store kv.Store, baseLog *logger.Logger, cfg Config, opts ...Option) *Model {
	m := &Model{
		store: store,
		log:   baseLog.With("component", "MemoryModel"),
		cfg:   cfg.withDefaults(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Model) Config() Config { return m.cfg }

func curvesKey(userID string) string { return kv.Key("memory", userID) }

// Retrievability is R(t) for t days since the last review. It is 1 at t=0
// and always within [0, 1].
func Retrievability(days, stability float64) float64 {
	if days <= 0 {
		return 1
	}
	if stability <= 0 {
		return 0
	}
	return clamp(1/(1+days/(9*stability)), 0, 1)
}

// IntervalDays solves R(t) = target for t.
func IntervalDays(stability, target float64) float64 {
	if target <= 0 || target >= 1 || stability <= 0 {
		return 0
	}
	return 9 * stability * (1/target - 1)
}

// GetRetrievability evaluates the skill's curve daysSinceReview days after a
// review. Unknown skills use the initial stability and are not persisted.
func (m *Model) GetRetrievability(ctx context.Context, userID, skillID string, daysSinceReview float64) (float64, error) {
	c, err := m.Curve(ctx, userID, skillID)
	if err != nil {
		return 0, err
	}
	return Retrievability(daysSinceReview, c.Stability), nil
}

// GetNextInterval returns the days until retrievability falls to
// targetRetention. Out-of-range targets use the configured target.
func (m *Model) GetNextInterval(ctx context.Context, userID, skillID string, targetRetention float64) (float64, error) {
	c, err := m.Curve(ctx, userID, skillID)
	if err != nil {
		return 0, err
	}
	return IntervalDays(c.Stability, m.target(targetRetention)), nil
}

func (m *Model) target(t float64) float64 {
	if t <= 0 || t >= 1 || math.IsNaN(t) {
		return m.cfg.TargetRetention
	}
	return t
}

// UpdateStability records a review. Success multiplies stability by
// SuccessBase + (1 + (rating-3)*0.1)*SuccessBonus up to MaxStability; failure
// multiplies by FailurePenalty down to MinStability. A zero rating means Good
// for a success and Again for a failure.
func (m *Model) UpdateStability(ctx context.Context, userID, skillID string, success bool, rating Rating) (Curve, error) {
	if rating == 0 {
		rating = Good
		if !success {
			rating = Again
		}
	}
	if !rating.Valid() {
		return Curve{}, fmt.Errorf("%w: %d", ErrInvalidRating, int(rating))
	}
	userID = learner.ID(userID)
	idx, err := m.load(ctx, userID)
	if err != nil {
		return Curve{}, err
	}
	now := m.now().UTC()
	c, ok := idx[skillID]
	if !ok {
		fresh := m.newCurve(skillID)
		c = &fresh
		idx[skillID] = c
	}

	before := c.Stability
	r := 1.0
	if !c.LastReview.IsZero() {
		r = Retrievability(now.Sub(c.LastReview).Hours()/24, before)
	}

	if success {
		growth := m.cfg.SuccessBase + (1+float64(rating-Good)*0.1)*m.cfg.SuccessBonus
		c.Stability = math.Min(before*growth, m.cfg.MaxStability)
		c.Difficulty = clamp(c.Difficulty-float64(rating-Good)*0.5, 1, 10)
	} else {
		c.Stability = math.Max(before*m.cfg.FailurePenalty, m.cfg.MinStability)
		c.Difficulty = clamp(c.Difficulty+1, 1, 10)
		c.Lapses++
	}
	c.Stability = clamp(c.Stability, m.cfg.MinStability, m.cfg.MaxStability)
	c.Reviews++
	c.LastReview = now
	c.NextReview = now.Add(daysToDuration(IntervalDays(c.Stability, m.cfg.TargetRetention)))
	c.History = append(c.History, Review{
		At:              now,
		Success:         success,
		Rating:          rating,
		Retrievability:  r,
		StabilityBefore: before,
		StabilityAfter:  c.Stability,
	})
	if len(c.History) > m.cfg.MaxReviewHistory {
		c.History = append([]Review(nil), c.History[len(c.History)-m.cfg.MaxReviewHistory:]...)
	}

	if err := m.save(ctx, userID, idx); err != nil {
		return Curve{}, err
	}
	m.log.Debug("stability updated", "user_id", userID, "skill_id", skillID, "success", success,
		"rating", rating.String(), "stability", c.Stability, "next_review", c.NextReview)
	return *c, nil
}

// CurrentRetrievability evaluates the curve at the current time. ok is false
// for a skill that has never been reviewed.
func (m *Model) CurrentRetrievability(ctx context.Context, userID, skillID string) (float64, bool, error) {
	c, err := m.Curve(ctx, userID, skillID)
	if err != nil {
		return 0, false, err
	}
	if c.LastReview.IsZero() {
		return 1, false, nil
	}
	return Retrievability(m.now().Sub(c.LastReview).Hours()/24, c.Stability), true, nil
}

// GetConceptsDueForReview lists reviewed skills whose next review is not in
// the future, most at risk first.
func (m *Model) GetConceptsDueForReview(ctx context.Context, userID string) ([]Due, error) {
	idx, err := m.load(ctx, learner.ID(userID))
	if err != nil {
		return nil, err
	}
	now := m.now()
	out := make([]Due, 0)
	for _, c := range idx {
		if c.NextReview.IsZero() || c.NextReview.After(now) {
			continue
		}
		out = append(out, Due{
			SkillID:        c.SkillID,
			Retrievability: Retrievability(now.Sub(c.LastReview).Hours()/24, c.Stability),
			Stability:      c.Stability,
			NextReview:     c.NextReview,
			OverdueDays:    now.Sub(c.NextReview).Hours() / 24,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Retrievability != out[j].Retrievability {
			return out[i].Retrievability < out[j].Retrievability
		}
		return out[i].SkillID < out[j].SkillID
	})
	return out, nil
}

// Curve returns the stored curve or a fresh one for an unseen skill.
func (m *Model) Curve(ctx context.Context, userID, skillID string) (Curve, error) {
	idx, err := m.load(ctx, learner.ID(userID))
	if err != nil {
		return Curve{}, err
	}
	if c, ok := idx[skillID]; ok {
		return *c, nil
	}
	return m.newCurve(skillID), nil
}

// Curves lists every stored curve for the learner ordered by skill id.
func (m *Model) Curves(ctx context.Context, userID string) ([]Curve, error) {
	idx, err := m.load(ctx, learner.ID(userID))
	if err != nil {
		return nil, err
	}
	out := make([]Curve, 0, len(idx))
	for _, c := range idx {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SkillID < out[j].SkillID })
	return out, nil
}

func (m *Model) newCurve(skillID string) Curve {
	return Curve{
		SkillID:    skillID,
		Stability:  m.cfg.InitialStability,
		Difficulty: m.cfg.InitialDifficulty,
	}
}

func (m *Model) load(ctx context.Context, userID string) (map[string]*Curve, error) {
	list, err := kv.Load[[]*Curve](ctx, m.store, curvesKey(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("load forgetting curves: %w", err)
	}
	idx := make(map[string]*Curve, len(list))
	for _, c := range list {
		if c == nil || c.SkillID == "" {
			continue
		}
		if c.Stability <= 0 {
			c.Stability = m.cfg.InitialStability
		}
		c.Stability = clamp(c.Stability, m.cfg.MinStability, m.cfg.MaxStability)
		if c.Difficulty == 0 {
			c.Difficulty = m.cfg.InitialDifficulty
		}
		idx[c.SkillID] = c
	}
	return idx, nil
}

func (m *Model) save(ctx context.Context, userID string, idx map[string]*Curve) error {
	list := make([]*Curve, 0, len(idx))
	for _, c := range idx {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].SkillID < list[j].SkillID })
	if err := m.store.Set(ctx, curvesKey(userID), list); err != nil {
		return fmt.Errorf("save forgetting curves: %w", err)
	}
	return nil
}

func daysToDuration(days float64) time.Duration {
	return time.Duration(days * float64(day))
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}
