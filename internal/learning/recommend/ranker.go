// Package recommend orders skills into learning paths and turns a learner's
// current state into concrete next-step suggestions.
package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/yungbote/neurobridge-mastery/internal/learning/feedback"
	"github.com/yungbote/neurobridge-mastery/internal/learning/learner"
	"github.com/yungbote/neurobridge-mastery/internal/learning/memory"
	"github.com/yungbote/neurobridge-mastery/internal/learning/skills"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

type Skills interface {
	GetMany(ctx context.Context, ids []string) (map[string]*skills.KnowledgeComponent, error)
	All(ctx context.Context) ([]*skills.KnowledgeComponent, error)
	Dependents(ctx context.Context, id string) ([]string, error)
}

type MasterySource interface {
	MasteryMany(ctx context.Context, userID string, skillIDs []string) (map[string]float64, error)
}

type StruggleSource interface {
	StruggleStates(ctx context.Context, userID string) (map[string]feedback.StruggleState, error)
}

// ReviewSource is optional; Insights reports due reviews when one is set.
type ReviewSource interface {
	GetConceptsDueForReview(ctx context.Context, userID string) ([]memory.Due, error)
}

type Config struct {
	MasteryThreshold      float64
	PrerequisiteThreshold float64
	LowMastery            float64
	StruggleLevel         int
	RecencyBoost          float64
	StruggleWindow        time.Duration
	MaxSuggestions        int
}

func DefaultConfig() Config {
	return Config{
		MasteryThreshold:      0.95,
		PrerequisiteThreshold: 0.7,
		LowMastery:            0.3,
		StruggleLevel:         2,
		RecencyBoost:          1.5,
		StruggleWindow:        24 * time.Hour,
		MaxSuggestions:        3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MasteryThreshold <= 0 || c.MasteryThreshold > 1 {
		c.MasteryThreshold = d.MasteryThreshold
	}
	if c.PrerequisiteThreshold <= 0 || c.PrerequisiteThreshold > 1 {
		c.PrerequisiteThreshold = d.PrerequisiteThreshold
	}
	if c.LowMastery <= 0 || c.LowMastery > 1 {
		c.LowMastery = d.LowMastery
	}
	if c.StruggleLevel <= 0 {
		c.StruggleLevel = d.StruggleLevel
	}
	if c.RecencyBoost < 1 {
		c.RecencyBoost = d.RecencyBoost
	}
	if c.StruggleWindow <= 0 {
		c.StruggleWindow = d.StruggleWindow
	}
	if c.MaxSuggestions <= 0 {
		c.MaxSuggestions = d.MaxSuggestions
	}
	return c
}

type Option func(*Ranker)

func WithClock(now func() time.Time) Option {
	return func(r *Ranker) {
		if now != nil {
			r.now = now
		}
	}
}

func WithReviews(src ReviewSource) Option {
	return func(r *Ranker) { r.reviews = src }
}

type Ranker struct {
	skills   Skills
	mastery  MasterySource
	struggle StruggleSource
	reviews  ReviewSource
	log      *logger.Logger
	cfg      Config
	now      func() time.Time
}

func New(reg Skills, mastery MasterySource, struggle StruggleSource, baseLog *logger.Logger, cfg Config, opts ...Option) *Ranker {
	r := &Ranker{
		skills:   reg,
		mastery:  mastery,
		struggle: struggle,
		log:      baseLog.With("component", "RecommendationRanker"),
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PathItem is one ranked skill with the inputs of its score.
type PathItem struct {
	SkillID            string   `json:"skill_id"`
	Category           string   `json:"category"`
	Mastery            float64  `json:"mastery"`
	PrerequisiteScore  float64  `json:"prerequisite_score"`
	StruggleLevel      int      `json:"struggle_level"`
	RecentlyStruggled  bool     `json:"recently_struggled"`
	UnmetPrerequisites []string `json:"unmet_prerequisites,omitempty"`
	Mastered           bool     `json:"mastered"`
	Score              float64  `json:"score"`
}

type Flavor string

const (
	FlavorStruggleAndFoundations Flavor = "struggle_and_foundations"
	FlavorTargeted               Flavor = "targeted"
	FlavorFoundation             Flavor = "foundation"
	FlavorBalanced               Flavor = "balanced"
)

var flavorDescriptions = map[Flavor]string{
	FlavorStruggleAndFoundations: "Path targets struggle areas and missing foundations",
	FlavorTargeted:               "Targeted path focusing on the skills you are struggling with",
	FlavorFoundation:             "Foundation path filling in missing prerequisites first",
	FlavorBalanced:               "Balanced path across your remaining skills",
}

type Path struct {
	UserID      string     `json:"user_id"`
	Items       []PathItem `json:"items"`
	Flavor      Flavor     `json:"flavor"`
	Description string     `json:"description"`
	Total       int        `json:"total"`
	Mastered    int        `json:"mastered"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// state is everything the ranker reads for one learner in one pass.
type state struct {
	kcs      map[string]*skills.KnowledgeComponent
	mastery  map[string]float64
	struggle map[string]feedback.StruggleState
}

func (r *Ranker) load(ctx context.Context, userID string, ids []string) (*state, []string, error) {
	st := &state{}
	if len(ids) == 0 {
		all, err := r.skills.All(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("list skills: %w", err)
		}
		st.kcs = make(map[string]*skills.KnowledgeComponent, len(all))
		for _, kc := range all {
			st.kcs[kc.ID] = kc
			ids = append(ids, kc.ID)
		}
	} else {
		kcs, err := r.skills.GetMany(ctx, ids)
		if err != nil {
			return nil, nil, fmt.Errorf("load skills: %w", err)
		}
		st.kcs = kcs
		ids = ids[:0:0]
		for id := range kcs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}

	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
		for _, p := range st.kcs[id].Prerequisites {
			want[p] = true
		}
	}
	lookup := make([]string, 0, len(want))
	for id := range want {
		lookup = append(lookup, id)
	}
	sort.Strings(lookup)
	var err error
	if len(lookup) > 0 {
		if st.mastery, err = r.mastery.MasteryMany(ctx, userID, lookup); err != nil {
			return nil, nil, fmt.Errorf("load mastery: %w", err)
		}
	}
	if st.struggle, err = r.struggle.StruggleStates(ctx, userID); err != nil {
		return nil, nil, fmt.Errorf("load struggle states: %w", err)
	}
	return st, ids, nil
}

func (r *Ranker) item(st *state, id string, now time.Time) PathItem {
	kc := st.kcs[id]
	it := PathItem{SkillID: id, Mastery: st.mastery[id], PrerequisiteScore: 1}
	if kc != nil {
		it.Category = kc.Category
		if n := len(kc.Prerequisites); n > 0 {
			sum := 0.0
			for _, p := range kc.Prerequisites {
				m := st.mastery[p]
				sum += m
				if m < r.cfg.PrerequisiteThreshold {
					it.UnmetPrerequisites = append(it.UnmetPrerequisites, p)
				}
			}
			it.PrerequisiteScore = sum / float64(n)
		}
	}
	if s, ok := st.struggle[id]; ok {
		it.StruggleLevel = s.Level
		it.RecentlyStruggled = s.RecentlyStruggled(now, r.cfg.StruggleWindow)
	}
	it.Mastered = it.Mastery >= r.cfg.MasteryThreshold

	recency := 1.0
	if it.RecentlyStruggled {
		recency = r.cfg.RecencyBoost
	}
	struggleBoost := math.Min(1, float64(it.StruggleLevel)/3)
	it.Score = (1 - it.Mastery) * (1 + it.PrerequisiteScore) * (1 + struggleBoost) * recency
	return it
}

// GenerateLearningPath scores the given skills, or every known skill when
// none are given, and orders them by descending score.
func (r *Ranker) GenerateLearningPath(ctx context.Context, userID string, skillIDs []string) (Path, error) {
	userID = learner.ID(userID)
	st, ids, err := r.load(ctx, userID, skillIDs)
	if err != nil {
		return Path{}, err
	}
	now := r.now()
	p := Path{UserID: userID, Items: make([]PathItem, 0, len(ids)), GeneratedAt: now.UTC()}
	for _, id := range ids {
		it := r.item(st, id, now)
		if it.Mastered {
			p.Mastered++
		}
		p.Items = append(p.Items, it)
	}
	sort.SliceStable(p.Items, func(i, j int) bool {
		if p.Items[i].Score != p.Items[j].Score {
			return p.Items[i].Score > p.Items[j].Score
		}
		return p.Items[i].SkillID < p.Items[j].SkillID
	})
	p.Total = len(p.Items)
	p.Flavor = r.flavor(p.Items)
	p.Description = flavorDescriptions[p.Flavor]
	return p, nil
}

func (r *Ranker) flavor(items []PathItem) Flavor {
	top := items
	if len(top) > 3 {
		top = top[:3]
	}
	struggling, gaps := 0, 0
	for _, it := range top {
		if it.StruggleLevel >= r.cfg.StruggleLevel {
			struggling++
		}
		if len(it.UnmetPrerequisites) > 0 {
			gaps++
		}
	}
	switch {
	case struggling >= 2 && gaps >= 1:
		return FlavorStruggleAndFoundations
	case struggling >= 2:
		return FlavorTargeted
	case gaps >= 1:
		return FlavorFoundation
	}
	return FlavorBalanced
}

// GetNextConcepts returns up to limit unmastered skills in path order.
func (r *Ranker) GetNextConcepts(ctx context.Context, userID string, limit int) ([]PathItem, error) {
	p, err := r.GenerateLearningPath(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	out := make([]PathItem, 0)
	for _, it := range p.Items {
		if it.Mastered {
			continue
		}
		out = append(out, it)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
