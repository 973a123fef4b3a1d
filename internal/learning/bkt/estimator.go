// Package bkt is the mastery estimator: standard Bayesian Knowledge Tracing
// per (learner, skill), with exponential forgetting applied lazily on read.
package bkt

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/learning/learner"
	"github.com/yungbote/neurobridge-mastery/internal/learning/skills"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

const (
	ReasonLowestMastery = "lowest_mastery"
	ReasonPrerequisite  = "prerequisite"
)

// Skills is the part of the skill registry the estimator needs.
type Skills interface {
	Get(ctx context.Context, id string) (*skills.KnowledgeComponent, error)
	GetMany(ctx context.Context, ids []string) (map[string]*skills.KnowledgeComponent, error)
	All(ctx context.Context) ([]*skills.KnowledgeComponent, error)
	UpdateParamsMany(ctx context.Context, updates map[string]skills.Params) error
}

// Estimate is the persisted mastery state of one skill for one learner.
type Estimate struct {
	SkillID      string    `json:"skill_id"`
	Probability  float64   `json:"probability"`
	Observations int       `json:"observations"`
	Correct      int       `json:"correct"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Observation is one applied update. Before is the decayed prior the update
// started from.
type Observation struct {
	// Seq orders the shared observation log; re-estimation consumes each
	// sequence number once per skill.
	Seq     int64     `json:"seq,omitempty"`
	UserID  string    `json:"user_id"`
	SkillID string    `json:"skill_id"`
	Correct bool      `json:"correct"`
	Before  float64   `json:"before"`
	After   float64   `json:"after"`
	At      time.Time `json:"at"`
}

type Update struct {
	SkillID      string  `json:"skill_id"`
	Before       float64 `json:"before"`
	After        float64 `json:"after"`
	IsMastered   bool    `json:"is_mastered"`
	Observations int     `json:"observations"`
}

type Selection struct {
	SkillID string  `json:"skill_id"`
	Mastery float64 `json:"mastery"`
	Reason  string  `json:"reason"`
	// Target is the skill originally chosen; it differs from SkillID when a
	// prerequisite was returned instead.
	Target string `json:"target"`
}

type ReportEntry struct {
	SkillID      string    `json:"skill_id"`
	Mastery      float64   `json:"mastery"`
	Stored       float64   `json:"stored"`
	Observations int       `json:"observations"`
	Correct      int       `json:"correct"`
	IsMastered   bool      `json:"is_mastered"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Option func(*Estimator)

func WithClock(now func() time.Time) Option {
	return func(e *Estimator) {
		if now != nil {
			e.now = now
		}
	}
}

type Estimator struct {
	store  kv.Store
	skills Skills
	log    *logger.Logger
	cfg    Config
	now    func() time.Time
}

func New(store kv.Store, reg Skills, baseLog *logger.Logger, cfg Config, opts ...Option) *Estimator {
	e := &Estimator{
		store:  store,
		skills: reg,
		log:    baseLog.With("component", "MasteryEstimator"),
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Estimator) Config() Config { return e.cfg }

func masteryKey(userID string) string { return kv.Key("bkt", "mastery", userID) }
func historyKey(userID string) string { return kv.Key("bkt", "history", userID) }

const observationsKey = "bkt:observations"

// GetMastery returns the decayed mastery probability. Unknown skills are
// created with their category defaults and start at their prior.
func (e *Estimator) GetMastery(ctx context.Context, userID, skillID string) (float64, error) {
	m, err := e.MasteryMany(ctx, userID, []string{skillID})
	if err != nil {
		return 0, err
	}
	return m[strings.TrimSpace(skillID)], nil
}

// MasteryMany is GetMastery for several skills with a single read per
// aggregate. The result is keyed by trimmed skill id.
func (e *Estimator) MasteryMany(ctx context.Context, userID string, skillIDs []string) (map[string]float64, error) {
	if len(skillIDs) == 0 {
		return map[string]float64{}, nil
	}
	kcs, err := e.skills.GetMany(ctx, skillIDs)
	if err != nil {
		return nil, err
	}
	idx, err := e.loadEstimates(ctx, learner.ID(userID))
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make(map[string]float64, len(skillIDs))
	for _, id := range skillIDs {
		id = strings.TrimSpace(id)
		kc := kcs[id]
		if kc == nil {
			continue
		}
		out[id] = e.current(idx[id], kc, now)
	}
	return out, nil
}

// current applies forgetting to a stored estimate. Decay never raises a value
// that was already below the floor.
func (e *Estimator) current(est *Estimate, kc *skills.KnowledgeComponent, now time.Time) float64 {
	if est == nil {
		return clampRange(kc.Params.PMastery0, e.cfg.MinMastery, e.cfg.MaxMastery)
	}
	p := clampRange(est.Probability, e.cfg.MinMastery, e.cfg.MaxMastery)
	days := now.Sub(est.UpdatedAt).Hours() / 24
	if days <= 0 || e.cfg.DecayRate == 0 {
		return p
	}
	decayed := p * math.Exp(-e.cfg.DecayRate*days)
	return math.Max(decayed, math.Min(p, e.cfg.DecayFloor))
}

// UpdateMastery applies one observed response.
func (e *Estimator) UpdateMastery(ctx context.Context, userID, skillID string, correct bool) (Update, error) {
	userID = learner.ID(userID)
	kc, err := e.skills.Get(ctx, skillID)
	if err != nil {
		return Update{}, err
	}
	idx, err := e.loadEstimates(ctx, userID)
	if err != nil {
		return Update{}, err
	}
	now := e.now()
	before := e.current(idx[kc.ID], kc, now)
	after := e.step(before, correct, kc.Params)

	est := idx[kc.ID]
	if est == nil {
		est = &Estimate{SkillID: kc.ID}
		idx[kc.ID] = est
	}
	est.Probability = after
	est.Observations++
	if correct {
		est.Correct++
	}
	est.UpdatedAt = now.UTC()

	if err := e.saveEstimates(ctx, userID, idx); err != nil {
		return Update{}, err
	}
	obs := Observation{UserID: userID, SkillID: kc.ID, Correct: correct, Before: before, After: after, At: now.UTC()}
	if err := e.appendHistory(ctx, userID, obs); err != nil {
		return Update{}, err
	}

	up := Update{
		SkillID:      kc.ID,
		Before:       before,
		After:        after,
		IsMastered:   after >= e.cfg.MasteryThreshold,
		Observations: est.Observations,
	}
	e.log.Debug("mastery updated", "user_id", userID, "skill_id", kc.ID, "correct", correct, "before", before, "after", after)
	return up, nil
}

// step is the BKT recurrence: Bayesian posterior, then learning transit, then
// clamping. A wrong answer never leaves mastery above where it started.
func (e *Estimator) step(L float64, correct bool, p skills.Params) float64 {
	posterior := Posterior(L, correct, p.PGuess, p.PSlip)
	next := posterior + (1-posterior)*clamp01(p.PTransit)
	next = clampRange(next, e.cfg.MinMastery, e.cfg.MaxMastery)
	switch {
	case !correct && next > L:
		next = L
	case correct && next < L:
		next = L
	}
	return next
}

// Posterior is Bayes' rule for one correct or incorrect response.
func Posterior(pKnown float64, correct bool, pGuess float64, pSlip float64) float64 {
	pKnown = clamp01(pKnown)
	pGuess = clamp01(pGuess)
	pSlip = clamp01(pSlip)
	if correct {
		num := pKnown * (1.0 - pSlip)
		den := num + (1.0-pKnown)*pGuess
		if den > 0 {
			return clamp01(num / den)
		}
		return pKnown
	}
	num := pKnown * pSlip
	den := num + (1.0-pKnown)*(1.0-pGuess)
	if den > 0 {
		return clamp01(num / den)
	}
	return pKnown
}

// PredictCorrect is the probability of a correct next response.
func (e *Estimator) PredictCorrect(ctx context.Context, userID, skillID string) (float64, error) {
	kc, err := e.skills.Get(ctx, skillID)
	if err != nil {
		return 0, err
	}
	L, err := e.GetMastery(ctx, userID, kc.ID)
	if err != nil {
		return 0, err
	}
	return L*(1-kc.Params.PSlip) + (1-L)*kc.Params.PGuess, nil
}

func (e *Estimator) IsMastered(ctx context.Context, userID, skillID string) (bool, error) {
	L, err := e.GetMastery(ctx, userID, skillID)
	if err != nil {
		return false, err
	}
	return L >= e.cfg.MasteryThreshold, nil
}

// SelectNextKC picks the lowest-mastery unmastered skill among candidates (all
// known skills when candidates is empty). If it has unmastered prerequisites
// the weakest of those is returned instead. Prerequisites are checked one
// level deep. ok is false when everything is mastered.
func (e *Estimator) SelectNextKC(ctx context.Context, userID string, candidates []string) (Selection, bool, error) {
	if len(candidates) == 0 {
		all, err := e.skills.All(ctx)
		if err != nil {
			return Selection{}, false, err
		}
		for _, kc := range all {
			candidates = append(candidates, kc.ID)
		}
	}
	if len(candidates) == 0 {
		return Selection{}, false, nil
	}
	mastery, err := e.MasteryMany(ctx, userID, candidates)
	if err != nil {
		return Selection{}, false, err
	}
	target, ok := lowestBelow(candidates, mastery, e.cfg.MasteryThreshold)
	if !ok {
		return Selection{}, false, nil
	}
	sel := Selection{SkillID: target, Mastery: mastery[target], Reason: ReasonLowestMastery, Target: target}

	kc, err := e.skills.Get(ctx, target)
	if err != nil {
		return Selection{}, false, err
	}
	if len(kc.Prerequisites) == 0 {
		return sel, true, nil
	}
	pm, err := e.MasteryMany(ctx, userID, kc.Prerequisites)
	if err != nil {
		return Selection{}, false, err
	}
	if pre, ok := lowestBelow(kc.Prerequisites, pm, e.cfg.MasteryThreshold); ok {
		sel.SkillID = pre
		sel.Mastery = pm[pre]
		sel.Reason = ReasonPrerequisite
	}
	return sel, true, nil
}

func lowestBelow(ids []string, mastery map[string]float64, threshold float64) (string, bool) {
	best := ""
	bestM := math.Inf(1)
	for _, id := range ids {
		m, ok := mastery[id]
		if !ok || m >= threshold {
			continue
		}
		if m < bestM {
			best, bestM = id, m
		}
	}
	return best, best != ""
}

// MasteryReport lists every skill the learner has evidence for, with decay
// applied, ordered by id.
func (e *Estimator) MasteryReport(ctx context.Context, userID string) ([]ReportEntry, error) {
	idx, err := e.loadEstimates(ctx, learner.ID(userID))
	if err != nil {
		return nil, err
	}
	if len(idx) == 0 {
		return []ReportEntry{}, nil
	}
	ids := make([]string, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	kcs, err := e.skills.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([]ReportEntry, 0, len(ids))
	for _, id := range ids {
		est := idx[id]
		m := e.current(est, kcs[id], now)
		out = append(out, ReportEntry{
			SkillID:      id,
			Mastery:      m,
			Stored:       est.Probability,
			Observations: est.Observations,
			Correct:      est.Correct,
			IsMastered:   m >= e.cfg.MasteryThreshold,
			UpdatedAt:    est.UpdatedAt,
		})
	}
	return out, nil
}

// History returns the learner's most recent updates, oldest first.
func (e *Estimator) History(ctx context.Context, userID string) ([]Observation, error) {
	list, err := kv.Load[[]Observation](ctx, e.store, historyKey(learner.ID(userID)), nil)
	if err != nil {
		return nil, fmt.Errorf("load mastery history: %w", err)
	}
	return list, nil
}

func (e *Estimator) loadEstimates(ctx context.Context, userID string) (map[string]*Estimate, error) {
	list, err := kv.Load[[]*Estimate](ctx, e.store, masteryKey(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("load mastery: %w", err)
	}
	idx := make(map[string]*Estimate, len(list))
	for _, est := range list {
		if est == nil || est.SkillID == "" {
			continue
		}
		idx[est.SkillID] = est
	}
	return idx, nil
}

func (e *Estimator) saveEstimates(ctx context.Context, userID string, idx map[string]*Estimate) error {
	list := make([]*Estimate, 0, len(idx))
	for _, est := range idx {
		list = append(list, est)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].SkillID < list[j].SkillID })
	if err := e.store.Set(ctx, masteryKey(userID), list); err != nil {
		return fmt.Errorf("save mastery: %w", err)
	}
	return nil
}

func (e *Estimator) appendHistory(ctx context.Context, userID string, obs Observation) error {
	all, err := e.loadObservations(ctx)
	if err != nil {
		return err
	}
	if n := len(all); n > 0 {
		obs.Seq = all[n-1].Seq + 1
	} else {
		obs.Seq = 1
	}

	hist, err := e.History(ctx, userID)
	if err != nil {
		return err
	}
	hist = appendBounded(hist, obs, e.cfg.MaxUserHistory)
	if err := e.store.Set(ctx, historyKey(userID), hist); err != nil {
		return fmt.Errorf("save mastery history: %w", err)
	}

	all = appendBounded(all, obs, e.cfg.MaxObservations)
	if err := e.store.Set(ctx, observationsKey, all); err != nil {
		return fmt.Errorf("save observations: %w", err)
	}
	return nil
}

// loadObservations reads the shared log and numbers records written without
// a sequence after their predecessor.
func (e *Estimator) loadObservations(ctx context.Context) ([]Observation, error) {
	all, err := kv.Load[[]Observation](ctx, e.store, observationsKey, nil)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	var prev int64
	for i := range all {
		if all[i].Seq <= prev {
			all[i].Seq = prev + 1
		}
		prev = all[i].Seq
	}
	return all, nil
}

func appendBounded[T any](list []T, item T, max int) []T {
	list = append(list, item)
	if max > 0 && len(list) > max {
		list = append([]T(nil), list[len(list)-max:]...)
	}
	return list
}
