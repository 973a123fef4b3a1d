package feedback

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

const interventionsKey = "feedback:interventions"

// InterventionRecorder receives the result of every outcome that carried an
// intervention style.
type InterventionRecorder interface {
	RecordIntervention(ctx context.Context, style, misconception string, success bool) error
}

type InterventionStats struct {
	Style         string    `json:"style"`
	Misconception string    `json:"misconception,omitempty"`
	Uses          int       `json:"uses"`
	Successes     int       `json:"successes"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s InterventionStats) SuccessRate() float64 {
	if s.Uses == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Uses)
}

type interventionDoc struct {
	Styles []*InterventionStats `json:"styles"`
	Pairs  []*InterventionStats `json:"pairs"`
}

// EffectivenessTracker keeps per-style and per-(misconception, style) success
// counts.
type EffectivenessTracker struct {
	store   kv.Store
	log     *logger.Logger
	now     func() time.Time
	minUses int
}

func NewEffectivenessTracker(store kv.Store, baseLog *logger.Logger, minUses int) *EffectivenessTracker {
	if minUses <= 0 {
		minUses = DefaultConfig().MinInterventionUses
	}
	return &EffectivenessTracker{
		store:   store,
		log:     baseLog.With("component", "InterventionTracker"),
		now:     time.Now,
		minUses: minUses,
	}
}

func (t *EffectivenessTracker) load(ctx context.Context) (interventionDoc, error) {
	doc, err := kv.Load(ctx, t.store, interventionsKey, interventionDoc{})
	if err != nil {
		return interventionDoc{}, fmt.Errorf("load intervention stats: %w", err)
	}
	return doc, nil
}

func (t *EffectivenessTracker) RecordIntervention(ctx context.Context, style, misconception string, success bool) error {
	if style == "" {
		return nil
	}
	doc, err := t.load(ctx)
	if err != nil {
		return err
	}
	now := t.now().UTC()
	bump := func(list []*InterventionStats, misc string) []*InterventionStats {
		for _, s := range list {
			if s.Style == style && s.Misconception == misc {
				s.Uses++
				if success {
					s.Successes++
				}
				s.UpdatedAt = now
				return list
			}
		}
		s := &InterventionStats{Style: style, Misconception: misc, Uses: 1, UpdatedAt: now}
		if success {
			s.Successes = 1
		}
		return append(list, s)
	}
	doc.Styles = bump(doc.Styles, "")
	if misconception != "" {
		doc.Pairs = bump(doc.Pairs, misconception)
	}
	sortStats(doc.Styles)
	sortStats(doc.Pairs)
	if err := t.store.Set(ctx, interventionsKey, doc); err != nil {
		return fmt.Errorf("save intervention stats: %w", err)
	}
	return nil
}

// Stats returns the per-style totals and the per-misconception breakdown.
func (t *EffectivenessTracker) Stats(ctx context.Context) ([]InterventionStats, []InterventionStats, error) {
	doc, err := t.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	return derefStats(doc.Styles), derefStats(doc.Pairs), nil
}

// BestIntervention picks the style with the highest success rate for a
// misconception, considering only styles used at least minUses times. With
// no misconception the per-style totals are used.
func (t *EffectivenessTracker) BestIntervention(ctx context.Context, misconception string) (InterventionStats, bool, error) {
	doc, err := t.load(ctx)
	if err != nil {
		return InterventionStats{}, false, err
	}
	pool := doc.Styles
	if misconception != "" {
		pool = doc.Pairs
	}
	var best *InterventionStats
	for _, s := range pool {
		if s.Misconception != misconception || s.Uses < t.minUses {
			continue
		}
		if best == nil || s.SuccessRate() > best.SuccessRate() {
			best = s
		}
	}
	if best == nil {
		return InterventionStats{}, false, nil
	}
	return *best, true, nil
}

func sortStats(list []*InterventionStats) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Misconception != list[j].Misconception {
			return list[i].Misconception < list[j].Misconception
		}
		return list[i].Style < list[j].Style
	})
}

func derefStats(list []*InterventionStats) []InterventionStats {
	out := make([]InterventionStats, 0, len(list))
	for _, s := range list {
		out = append(out, *s)
	}
	return out
}
