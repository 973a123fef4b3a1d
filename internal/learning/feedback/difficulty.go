package feedback

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
)

const difficultyKey = "feedback:difficulty"

// DifficultyRating is maintained incrementally from every outcome of a skill.
type DifficultyRating struct {
	SkillID              string    `json:"skill_id"`
	Rating               float64   `json:"rating"`
	Attempts             int       `json:"attempts"`
	Successes            int       `json:"successes"`
	AvgTimeToSuccess     float64   `json:"avg_time_to_success"`
	AvgAttemptsToSuccess float64   `json:"avg_attempts_to_success"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (d DifficultyRating) SuccessRate() float64 {
	if d.Attempts == 0 {
		return 0
	}
	return float64(d.Successes) / float64(d.Attempts)
}

func (l *Loop) loadDifficulty(ctx context.Context) (map[string]*DifficultyRating, error) {
	list, err := kv.Load[[]*DifficultyRating](ctx, l.store, difficultyKey, nil)
	if err != nil {
		return nil, fmt.Errorf("load difficulty ratings: %w", err)
	}
	idx := make(map[string]*DifficultyRating, len(list))
	for _, d := range list {
		if d != nil && d.SkillID != "" {
			idx[d.SkillID] = d
		}
	}
	return idx, nil
}

func (l *Loop) saveDifficulty(ctx context.Context, idx map[string]*DifficultyRating) error {
	list := make([]*DifficultyRating, 0, len(idx))
	for _, d := range idx {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].SkillID < list[j].SkillID })
	if err := l.store.Set(ctx, difficultyKey, list); err != nil {
		return fmt.Errorf("save difficulty ratings: %w", err)
	}
	return nil
}

// Difficulty returns the skill's 0-1 rating, or the default for a skill with
// no outcomes yet.
func (l *Loop) Difficulty(ctx context.Context, skillID string) (float64, error) {
	d, err := l.DifficultyRating(ctx, skillID)
	if err != nil {
		return 0, err
	}
	return d.Rating, nil
}

func (l *Loop) DifficultyRating(ctx context.Context, skillID string) (DifficultyRating, error) {
	idx, err := l.loadDifficulty(ctx)
	if err != nil {
		return DifficultyRating{}, err
	}
	if d, ok := idx[skillID]; ok {
		return *d, nil
	}
	return DifficultyRating{SkillID: skillID, Rating: l.cfg.DefaultRating}, nil
}

// DifficultyRatings lists every rated skill, hardest first.
func (l *Loop) DifficultyRatings(ctx context.Context) ([]DifficultyRating, error) {
	idx, err := l.loadDifficulty(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DifficultyRating, 0, len(idx))
	for _, d := range idx {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].SkillID < out[j].SkillID
	})
	return out, nil
}

// updateDifficulty folds one outcome into the skill's running averages and
// recomputes the rating as
// 0.5*(1-successRate) + 0.25*min(1, avgTime/norm) + 0.25*min(1, avgAttempts/norm).
func (l *Loop) updateDifficulty(ctx context.Context, ev OutcomeEvent) (DifficultyRating, error) {
	idx, err := l.loadDifficulty(ctx)
	if err != nil {
		return DifficultyRating{}, err
	}
	d, ok := idx[ev.SkillID]
	if !ok {
		d = &DifficultyRating{SkillID: ev.SkillID}
		idx[ev.SkillID] = d
	}
	d.Attempts++
	if ev.Passed() {
		d.Successes++
		n := float64(d.Successes)
		d.AvgTimeToSuccess += (ev.TimeSeconds - d.AvgTimeToSuccess) / n
		d.AvgAttemptsToSuccess += (float64(ev.TestAttempts) - d.AvgAttemptsToSuccess) / n
	}
	timeFactor := math.Min(1, d.AvgTimeToSuccess/l.cfg.TimeNormSeconds)
	attemptFactor := math.Min(1, d.AvgAttemptsToSuccess/l.cfg.AttemptNorm)
	d.Rating = 0.5*(1-d.SuccessRate()) + 0.25*timeFactor + 0.25*attemptFactor
	d.UpdatedAt = l.now().UTC()

	if err := l.saveDifficulty(ctx, idx); err != nil {
		return DifficultyRating{}, err
	}
	return *d, nil
}
