// Package velocity tracks how fast a learner actually learns and scales time
// estimates by skill difficulty, prerequisite readiness, time of day and
// session fatigue.
package velocity

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/learning/learner"
	"github.com/yungbote/neurobridge-mastery/internal/learning/skills"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

const (
	BlockerPrerequisiteGap = "prerequisite_gap"
	BlockerHighDifficulty  = "high_difficulty"
	BlockerTimeOfDay       = "suboptimal_time_of_day"
	BlockerSessionFatigue  = "session_fatigue"
	BlockerRecentStruggle  = "recent_struggle"
)

type Skills interface {
	Get(ctx context.Context, id string) (*skills.KnowledgeComponent, error)
}

type MasterySource interface {
	MasteryMany(ctx context.Context, userID string, skillIDs []string) (map[string]float64, error)
}

// DifficultySource reports a skill's intrinsic difficulty in [0, 1].
type DifficultySource interface {
	Difficulty(ctx context.Context, skillID string) (float64, error)
}

type Weights struct {
	Difficulty      float64
	CategorySuccess float64
	Prerequisites   float64
	TimeOfDay       float64
	Fatigue         float64
	RecentSuccess   float64
}

type Config struct {
	BaseMinutes float64
	Weights     Weights
	// HourAlpha is the EMA smoothing factor of per-hour velocity.
	HourAlpha  float64
	SessionGap time.Duration
	MaxHistory int

	PrerequisiteGap     float64
	HighDifficulty      float64
	SlowHour            float64
	FatigueMinutes      float64
	RecentStruggle      float64
	RecentWindow        time.Duration
	DefaultDifficulty   float64
	MinConfidence       float64
	ConfidenceIncrement float64
}

func DefaultConfig() Config {
	return Config{
		BaseMinutes: 15,
		Weights: Weights{
			Difficulty:      0.30,
			CategorySuccess: 0.25,
			Prerequisites:   0.25,
			TimeOfDay:       0.10,
			Fatigue:         0.05,
			RecentSuccess:   0.05,
		},
		HourAlpha:           0.3,
		SessionGap:          30 * time.Minute,
		MaxHistory:          200,
		PrerequisiteGap:     0.7,
		HighDifficulty:      0.7,
		SlowHour:            0.8,
		FatigueMinutes:      30,
		RecentStruggle:      0.5,
		RecentWindow:        24 * time.Hour,
		DefaultDifficulty:   0.5,
		MinConfidence:       0.5,
		ConfidenceIncrement: 0.1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseMinutes <= 0 {
		c.BaseMinutes = d.BaseMinutes
	}
	if c.Weights == (Weights{}) {
		c.Weights = d.Weights
	}
	if c.HourAlpha <= 0 || c.HourAlpha > 1 {
		c.HourAlpha = d.HourAlpha
	}
	if c.SessionGap <= 0 {
		c.SessionGap = d.SessionGap
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = d.MaxHistory
	}
	if c.PrerequisiteGap <= 0 {
		c.PrerequisiteGap = d.PrerequisiteGap
	}
	if c.HighDifficulty <= 0 {
		c.HighDifficulty = d.HighDifficulty
	}
	if c.SlowHour <= 0 {
		c.SlowHour = d.SlowHour
	}
	if c.FatigueMinutes <= 0 {
		c.FatigueMinutes = d.FatigueMinutes
	}
	if c.RecentStruggle <= 0 {
		c.RecentStruggle = d.RecentStruggle
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = d.RecentWindow
	}
	if c.DefaultDifficulty <= 0 {
		c.DefaultDifficulty = d.DefaultDifficulty
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = d.MinConfidence
	}
	if c.ConfidenceIncrement <= 0 {
		c.ConfidenceIncrement = d.ConfidenceIncrement
	}
	return c
}

// Factors are the multipliers of one estimate; each is 1 when neutral.
type Factors struct {
	Difficulty      float64 `json:"difficulty"`
	CategorySuccess float64 `json:"category_success"`
	Prerequisites   float64 `json:"prerequisites"`
	TimeOfDay       float64 `json:"time_of_day"`
	Fatigue         float64 `json:"fatigue"`
	RecentSuccess   float64 `json:"recent_success"`
}

type Estimate struct {
	SkillID         string  `json:"skill_id"`
	Minutes         float64 `json:"minutes"`
	Confidence      float64 `json:"confidence"`
	Multiplier      float64 `json:"multiplier"`
	OverallVelocity float64 `json:"overall_velocity"`
	Factors         Factors `json:"factors"`
}

type Blocker struct {
	Type     string   `json:"type"`
	Severity float64  `json:"severity"`
	Value    float64  `json:"value"`
	SkillIDs []string `json:"skill_ids,omitempty"`
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithDifficulty sets where intrinsic difficulty comes from. Without it every
// skill uses Config.DefaultDifficulty.
func WithDifficulty(src DifficultySource) Option {
	return func(t *Tracker) { t.difficulty = src }
}

type Tracker struct {
	store      kv.Store
	skills     Skills
	mastery    MasterySource
	difficulty DifficultySource
	log        *logger.Logger
	cfg        Config
	now        func() time.Time
}

func New(store kv.Store, reg Skills, mastery MasterySource, baseLog *logger.Logger, cfg Config, opts ...Option) *Tracker {
	t := &Tracker{
		store:   store,
		skills:  reg,
		mastery: mastery,
		log:     baseLog.With("component", "VelocityTracker"),
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func profileKey(userID string) string { return kv.Key("velocity", userID) }

func (t *Tracker) Profile(ctx context.Context, userID string) (*Profile, error) {
	userID = learner.ID(userID)
	p, err := kv.Load[*Profile](ctx, t.store, profileKey(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("load velocity profile: %w", err)
	}
	if p == nil {
		p = &Profile{}
	}
	p.UserID = userID
	return p, nil
}

// TrackVelocityProgress records one attempt that took actualMinutes.
func (t *Tracker) TrackVelocityProgress(ctx context.Context, userID, skillID string, actualMinutes float64, success bool) (*Profile, error) {
	if actualMinutes < 0 || math.IsNaN(actualMinutes) {
		actualMinutes = 0
	}
	kc, err := t.skills.Get(ctx, skillID)
	if err != nil {
		return nil, err
	}
	p, err := t.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := t.now().UTC()

	s := p.ensureSkill(kc.ID, kc.Category)
	s.Attempts++
	s.TotalMinutes += actualMinutes
	s.LastAttempt = now
	if success {
		s.Successes++
		if !s.Learned {
			s.Learned = true
			p.ConceptsLearned++
		}
	}
	p.TotalMinutes += actualMinutes

	sample := 0.0
	if success {
		sample = 60 / math.Max(actualMinutes, 1)
	}
	h := p.hour(now.Hour())
	if h.Samples == 0 {
		h.Velocity = sample
	} else {
		h.Velocity = t.cfg.HourAlpha*sample + (1-t.cfg.HourAlpha)*h.Velocity
	}
	h.Samples++

	if p.Session.Last.IsZero() || now.Sub(p.Session.Last) > t.cfg.SessionGap {
		p.Session = Session{Start: now}
	}
	p.Session.Minutes += actualMinutes
	p.Session.Last = now

	p.History = append(p.History, Record{SkillID: kc.ID, Minutes: actualMinutes, Success: success, Hour: now.Hour(), At: now})
	if len(p.History) > t.cfg.MaxHistory {
		p.History = append([]Record(nil), p.History[len(p.History)-t.cfg.MaxHistory:]...)
	}
	p.UpdatedAt = now

	if err := t.store.Set(ctx, profileKey(p.UserID), p); err != nil {
		return nil, fmt.Errorf("save velocity profile: %w", err)
	}
	t.log.Debug("velocity tracked", "user_id", p.UserID, "skill_id", kc.ID, "minutes", actualMinutes, "success", success)
	return p, nil
}

type signals struct {
	kc              *skills.KnowledgeComponent
	profile         *Profile
	difficulty      float64
	prereqMastery   map[string]float64
	prereqAvg       float64
	categoryRate    float64
	relativeHour    float64
	sessionMinutes  float64
	recentRate      float64
	hasRecent       bool
	overallVelocity float64
}

func (t *Tracker) gather(ctx context.Context, userID, skillID string) (*signals, error) {
	kc, err := t.skills.Get(ctx, skillID)
	if err != nil {
		return nil, err
	}
	p, err := t.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := t.now()
	sg := &signals{kc: kc, profile: p, difficulty: t.cfg.DefaultDifficulty, prereqAvg: 1}

	if t.difficulty != nil {
		d, err := t.difficulty.Difficulty(ctx, kc.ID)
		if err != nil {
			return nil, err
		}
		sg.difficulty = clamp(d, 0, 1)
	}
	if len(kc.Prerequisites) > 0 && t.mastery != nil {
		pm, err := t.mastery.MasteryMany(ctx, p.UserID, kc.Prerequisites)
		if err != nil {
			return nil, err
		}
		sg.prereqMastery = pm
		var sum float64
		for _, id := range kc.Prerequisites {
			sum += pm[id]
		}
		sg.prereqAvg = sum / float64(len(kc.Prerequisites))
	}
	sg.categoryRate = 0.5
	if r, ok := p.CategorySuccessRate(kc.Category); ok {
		sg.categoryRate = r
	}
	sg.relativeHour = p.RelativeVelocity(now.UTC().Hour())
	sg.sessionMinutes = p.SessionMinutes(now, t.cfg.SessionGap)
	sg.recentRate, sg.hasRecent = p.RecentSuccessRate(now, t.cfg.RecentWindow)
	if !sg.hasRecent {
		sg.recentRate = 0.5
	}
	sg.overallVelocity = 1
	if v, ok := p.OverallVelocity(); ok {
		sg.overallVelocity = v
	}
	return sg, nil
}

// FatigueFactor is max(0.5, 1 - sessionMinutes*0.01).
func FatigueFactor(sessionMinutes float64) float64 {
	return math.Max(0.5, 1-sessionMinutes*0.01)
}

// EstimateTimeToMastery blends six factors into a multiplier on the base
// estimate and divides by the learner's overall velocity.
func (t *Tracker) EstimateTimeToMastery(ctx context.Context, userID, skillID string) (Estimate, error) {
	sg, err := t.gather(ctx, userID, skillID)
	if err != nil {
		return Estimate{}, err
	}
	f := Factors{
		Difficulty:      0.5 + sg.difficulty,
		CategorySuccess: 1.5 - sg.categoryRate,
		Prerequisites:   1.5 - sg.prereqAvg,
		TimeOfDay:       clamp(1/math.Max(sg.relativeHour, 1e-6), 0.5, 2),
		Fatigue:         1 / FatigueFactor(sg.sessionMinutes),
		RecentSuccess:   1.5 - sg.recentRate,
	}
	w := t.cfg.Weights
	mult := w.Difficulty*f.Difficulty +
		w.CategorySuccess*f.CategorySuccess +
		w.Prerequisites*f.Prerequisites +
		w.TimeOfDay*f.TimeOfDay +
		w.Fatigue*f.Fatigue +
		w.RecentSuccess*f.RecentSuccess

	return Estimate{
		SkillID:         sg.kc.ID,
		Minutes:         t.cfg.BaseMinutes * mult / sg.overallVelocity,
		Confidence:      t.confidence(sg),
		Multiplier:      mult,
		OverallVelocity: sg.overallVelocity,
		Factors:         f,
	}, nil
}

func (t *Tracker) confidence(sg *signals) float64 {
	c := t.cfg.MinConfidence
	inc := t.cfg.ConfidenceIncrement
	for _, n := range []int{5, 10, 20} {
		if sg.profile.ConceptsLearned >= n {
			c += inc
		}
	}
	if s := sg.profile.skill(sg.kc.ID); s != nil && s.Attempts >= 3 {
		c += inc
	}
	if sg.profile.HoursWithData() >= 3 {
		c += inc
	}
	return math.Min(1, c)
}

// IdentifyVelocityBlockers lists what is slowing the learner down on a skill.
// Blocker kinds have a fixed rank: prerequisite gap, high difficulty, time of
// day, session fatigue, recent struggle. Severity scores how bad each one is
// but does not reorder kinds.
func (t *Tracker) IdentifyVelocityBlockers(ctx context.Context, userID, skillID string) ([]Blocker, error) {
	sg, err := t.gather(ctx, userID, skillID)
	if err != nil {
		return nil, err
	}
	out := []Blocker{}

	var gaps []string
	lowest := 1.0
	for _, id := range sg.kc.Prerequisites {
		if m := sg.prereqMastery[id]; m < t.cfg.PrerequisiteGap {
			gaps = append(gaps, id)
			lowest = math.Min(lowest, m)
		}
	}
	if len(gaps) > 0 {
		out = append(out, Blocker{Type: BlockerPrerequisiteGap, Severity: 1 - lowest, Value: lowest, SkillIDs: gaps})
	}
	if sg.difficulty > t.cfg.HighDifficulty {
		out = append(out, Blocker{Type: BlockerHighDifficulty, Severity: sg.difficulty, Value: sg.difficulty})
	}
	if sg.relativeHour < t.cfg.SlowHour {
		out = append(out, Blocker{Type: BlockerTimeOfDay, Severity: clamp(1-sg.relativeHour, 0, 1), Value: sg.relativeHour})
	}
	if sg.sessionMinutes > t.cfg.FatigueMinutes {
		out = append(out, Blocker{Type: BlockerSessionFatigue, Severity: math.Min(1, sg.sessionMinutes/60), Value: sg.sessionMinutes})
	}
	if sg.hasRecent && sg.recentRate < t.cfg.RecentStruggle {
		out = append(out, Blocker{Type: BlockerRecentStruggle, Severity: 1 - sg.recentRate, Value: sg.recentRate})
	}
	return out, nil
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}
