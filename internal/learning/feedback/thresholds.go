package feedback

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
)

const (
	thresholdsKey = "feedback:thresholds"

	ReasonInsufficientData = "insufficient_data"
	ReasonAdjusted         = "adjusted"
)

// Tier is the interaction count and time at which a struggle tier triggers.
type Tier struct {
	ExplainClicks float64 `json:"explain_clicks"`
	TestAttempts  float64 `json:"test_attempts"`
	TimeSeconds   float64 `json:"time_seconds"`
}

// reached reports whether any signal meets the tier. Zero fields never
// trigger.
func (t Tier) reached(s Signals) bool {
	meets := func(v, limit float64) bool { return limit > 0 && v >= limit }
	return meets(float64(s.ExplainClicks), t.ExplainClicks) ||
		meets(float64(s.TestAttempts), t.TestAttempts) ||
		meets(s.TimeSeconds, t.TimeSeconds)
}

type Thresholds struct {
	Gentle     Tier `json:"gentle"`
	Active     Tier `json:"active"`
	Supportive Tier `json:"supportive"`
}

// StruggleThresholds are the thresholds of one skill. Skills without an entry
// use the configured global default.
type StruggleThresholds struct {
	SkillID string `json:"skill_id"`
	Thresholds
	Samples   int       `json:"samples"`
	UpdatedAt time.Time `json:"updated_at"`
	Default   bool      `json:"default,omitempty"`
}

type ThresholdResult struct {
	Adjusted   bool               `json:"adjusted"`
	Reason     string             `json:"reason"`
	Samples    int                `json:"samples"`
	Successes  int                `json:"successes"`
	Thresholds StruggleThresholds `json:"thresholds"`
}

// Signals are the interaction counts observed during an attempt.
type Signals struct {
	ExplainClicks int     `json:"explain_clicks"`
	TestAttempts  int     `json:"test_attempts"`
	TimeSeconds   float64 `json:"time_seconds"`
}

func (l *Loop) loadThresholds(ctx context.Context) (map[string]*StruggleThresholds, error) {
	list, err := kv.Load[[]*StruggleThresholds](ctx, l.store, thresholdsKey, nil)
	if err != nil {
		return nil, fmt.Errorf("load struggle thresholds: %w", err)
	}
	idx := make(map[string]*StruggleThresholds, len(list))
	for _, t := range list {
		if t == nil || t.SkillID == "" {
			continue
		}
		if t.Thresholds == (Thresholds{}) {
			t.Thresholds = l.cfg.DefaultThresholds
		}
		idx[t.SkillID] = t
	}
	return idx, nil
}

func (l *Loop) saveThresholds(ctx context.Context, idx map[string]*StruggleThresholds) error {
	list := make([]*StruggleThresholds, 0, len(idx))
	for _, t := range idx {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].SkillID < list[j].SkillID })
	if err := l.store.Set(ctx, thresholdsKey, list); err != nil {
		return fmt.Errorf("save struggle thresholds: %w", err)
	}
	return nil
}

// GetThresholds returns the skill's thresholds or the global default.
func (l *Loop) GetThresholds(ctx context.Context, skillID string) (StruggleThresholds, error) {
	idx, err := l.loadThresholds(ctx)
	if err != nil {
		return StruggleThresholds{}, err
	}
	if t, ok := idx[skillID]; ok {
		return *t, nil
	}
	return StruggleThresholds{SkillID: skillID, Thresholds: l.cfg.DefaultThresholds, Default: true}, nil
}

// ClassifyStruggle maps observed signals to a struggle level 0-3 using the
// skill's current thresholds.
func (l *Loop) ClassifyStruggle(ctx context.Context, skillID string, s Signals) (int, error) {
	t, err := l.GetThresholds(ctx, skillID)
	if err != nil {
		return 0, err
	}
	switch {
	case t.Supportive.reached(s):
		return 3, nil
	case t.Active.reached(s):
		return 2, nil
	case t.Gentle.reached(s):
		return 1, nil
	}
	return 0, nil
}

// adjustThresholds recalibrates the skill's thresholds from its successful
// outcomes once enough samples exist. Nothing is written otherwise.
func (l *Loop) adjustThresholds(ctx context.Context, skillID string, history []HistoryEntry) (ThresholdResult, error) {
	var samples, successes int
	var clicks, attempts, secs float64
	for _, e := range history {
		if e.SkillID != skillID {
			continue
		}
		samples++
		if !e.Passed() {
			continue
		}
		successes++
		clicks += float64(e.ExplainClicks)
		attempts += float64(e.TestAttempts)
		secs += e.TimeSeconds
	}

	cur, err := l.GetThresholds(ctx, skillID)
	if err != nil {
		return ThresholdResult{}, err
	}
	res := ThresholdResult{Samples: samples, Successes: successes, Thresholds: cur}
	if samples < l.cfg.MinThresholdSamples || successes < l.cfg.MinThresholdSuccesses {
		res.Reason = ReasonInsufficientData
		return res, nil
	}

	n := float64(successes)
	mean := Tier{ExplainClicks: clicks / n, TestAttempts: attempts / n, TimeSeconds: secs / n}
	rate := l.cfg.AdjustmentRate
	toward := func(from, to float64) float64 { return from + (to-from)*rate }
	scale := func(t Tier, k float64) Tier {
		return Tier{ExplainClicks: t.ExplainClicks * k, TestAttempts: t.TestAttempts * k, TimeSeconds: t.TimeSeconds * k}
	}

	next := StruggleThresholds{
		SkillID: skillID,
		Thresholds: Thresholds{
			Gentle: Tier{
				ExplainClicks: toward(cur.Gentle.ExplainClicks, mean.ExplainClicks),
				TestAttempts:  toward(cur.Gentle.TestAttempts, mean.TestAttempts),
				TimeSeconds:   toward(cur.Gentle.TimeSeconds, mean.TimeSeconds),
			},
			Active:     scale(mean, l.cfg.ActiveMultiplier),
			Supportive: scale(mean, l.cfg.SupportiveMultiplier),
		},
		Samples:   samples,
		UpdatedAt: l.now().UTC(),
	}

	idx, err := l.loadThresholds(ctx)
	if err != nil {
		return ThresholdResult{}, err
	}
	idx[skillID] = &next
	if err := l.saveThresholds(ctx, idx); err != nil {
		return ThresholdResult{}, err
	}
	res.Adjusted = true
	res.Reason = ReasonAdjusted
	res.Thresholds = next
	return res, nil
}
