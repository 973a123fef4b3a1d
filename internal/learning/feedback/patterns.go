package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
)

const pendingKey = "feedback:pending"

var ErrUnknownImprovement = errors.New("feedback: unknown improvement")

type ImprovementType string

const (
	RepeatedMisconception   ImprovementType = "repeated_misconception"
	DifficultConcept        ImprovementType = "difficult_concept"
	IneffectiveIntervention ImprovementType = "ineffective_intervention"
)

type ImprovementStatus string

const (
	StatusPending  ImprovementStatus = "pending"
	StatusReviewed ImprovementStatus = "reviewed"
)

// Improvement is a content issue surfaced for human review.
type Improvement struct {
	ID            uuid.UUID         `json:"id"`
	Type          ImprovementType   `json:"type"`
	Subject       string            `json:"subject"`
	SkillID       string            `json:"skill_id,omitempty"`
	Misconception string            `json:"misconception,omitempty"`
	Intervention  string            `json:"intervention,omitempty"`
	SuccessRate   float64           `json:"success_rate"`
	Samples       int               `json:"samples"`
	DetectedAt    time.Time         `json:"detected_at"`
	Status        ImprovementStatus `json:"status"`
	ResolvedAt    *time.Time        `json:"resolved_at,omitempty"`
}

func (l *Loop) loadImprovements(ctx context.Context) ([]Improvement, error) {
	list, err := kv.Load[[]Improvement](ctx, l.store, pendingKey, nil)
	if err != nil {
		return nil, fmt.Errorf("load improvements: %w", err)
	}
	return list, nil
}

// PendingImprovements returns the unreviewed items, oldest first.
func (l *Loop) PendingImprovements(ctx context.Context) ([]Improvement, error) {
	list, err := l.loadImprovements(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Improvement, 0, len(list))
	for _, it := range list {
		if it.Status == StatusPending {
			out = append(out, it)
		}
	}
	return out, nil
}

// ResolveImprovement marks an item reviewed. A resolved pattern that recurs is
// queued again as a new item.
func (l *Loop) ResolveImprovement(ctx context.Context, id uuid.UUID) (Improvement, error) {
	list, err := l.loadImprovements(ctx)
	if err != nil {
		return Improvement{}, err
	}
	for i := range list {
		if list[i].ID != id {
			continue
		}
		if list[i].Status != StatusReviewed {
			at := l.now().UTC()
			list[i].Status = StatusReviewed
			list[i].ResolvedAt = &at
			if err := l.store.Set(ctx, pendingKey, list); err != nil {
				return Improvement{}, fmt.Errorf("save improvements: %w", err)
			}
		}
		return list[i], nil
	}
	return Improvement{}, fmt.Errorf("%w: %s", ErrUnknownImprovement, id)
}

type tally struct {
	n, ok int
}

func (t tally) rate() float64 {
	if t.n == 0 {
		return 0
	}
	return float64(t.ok) / float64(t.n)
}

// detectPatterns scans the history for the patterns touched by ev and queues
// any that are not already pending.
func (l *Loop) detectPatterns(ctx context.Context, ev OutcomeEvent, history []HistoryEntry, diff DifficultyRating) ([]Improvement, error) {
	var misc, pair tally
	for _, e := range history {
		if ev.Misconception == "" || e.Misconception != ev.Misconception {
			continue
		}
		misc.n++
		if e.Passed() {
			misc.ok++
		}
		if ev.Intervention != "" && e.Intervention == ev.Intervention {
			pair.n++
			if e.Passed() {
				pair.ok++
			}
		}
	}

	now := l.now().UTC()
	var found []Improvement
	if misc.n >= l.cfg.MinPatternSamples && misc.rate() < l.cfg.MisconceptionSuccessRate {
		found = append(found, Improvement{
			Type:          RepeatedMisconception,
			Subject:       ev.Misconception,
			SkillID:       ev.SkillID,
			Misconception: ev.Misconception,
			SuccessRate:   misc.rate(),
			Samples:       misc.n,
		})
	}
	if diff.Attempts >= l.cfg.DifficultConceptAttempts && diff.Rating > l.cfg.DifficultConceptRating {
		found = append(found, Improvement{
			Type:        DifficultConcept,
			Subject:     ev.SkillID,
			SkillID:     ev.SkillID,
			SuccessRate: diff.SuccessRate(),
			Samples:     diff.Attempts,
		})
	}
	if pair.n >= l.cfg.MinPatternSamples && pair.rate() < l.cfg.IneffectiveSuccessRate {
		found = append(found, Improvement{
			Type:          IneffectiveIntervention,
			Subject:       ev.Misconception + "/" + ev.Intervention,
			SkillID:       ev.SkillID,
			Misconception: ev.Misconception,
			Intervention:  ev.Intervention,
			SuccessRate:   pair.rate(),
			Samples:       pair.n,
		})
	}
	if len(found) == 0 {
		return nil, nil
	}

	list, err := l.loadImprovements(ctx)
	if err != nil {
		return nil, err
	}
	pending := map[string]bool{}
	for _, it := range list {
		if it.Status == StatusPending {
			pending[string(it.Type)+"|"+it.Subject] = true
		}
	}
	var queued []Improvement
	for _, it := range found {
		k := string(it.Type) + "|" + it.Subject
		if pending[k] {
			continue
		}
		pending[k] = true
		it.ID = uuid.New()
		it.DetectedAt = now
		it.Status = StatusPending
		queued = append(queued, it)
		l.log.Info("improvement queued", "type", it.Type, "subject", it.Subject, "success_rate", it.SuccessRate, "samples", it.Samples)
	}
	if len(queued) == 0 {
		return nil, nil
	}
	list = append(list, queued...)
	if err := l.store.Set(ctx, pendingKey, list); err != nil {
		return nil, fmt.Errorf("save improvements: %w", err)
	}
	return queued, nil
}
