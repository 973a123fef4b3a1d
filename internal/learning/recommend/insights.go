package recommend

import (
	"context"
	"fmt"
	"sort"

	"github.com/yungbote/neurobridge-mastery/internal/learning/learner"
	"github.com/yungbote/neurobridge-mastery/internal/learning/memory"
)

type FocusArea struct {
	Category    string  `json:"category"`
	MeanMastery float64 `json:"mean_mastery"`
	Skills      int     `json:"skills"`
}

type Insights struct {
	UserID     string       `json:"user_id"`
	Flavor     Flavor       `json:"flavor"`
	NextSteps  []PathItem   `json:"next_steps"`
	Blockers   []PathItem   `json:"blockers"`
	FocusAreas []FocusArea  `json:"focus_areas"`
	ReviewsDue []memory.Due `json:"reviews_due,omitempty"`
	Progress   float64      `json:"progress"`
}

// Insights summarises the learner's path: the next unmastered steps, the
// skills blocked by struggle or missing prerequisites, and categories ordered
// weakest first.
func (r *Ranker) Insights(ctx context.Context, userID string) (Insights, error) {
	userID = learner.ID(userID)
	p, err := r.GenerateLearningPath(ctx, userID, nil)
	if err != nil {
		return Insights{}, err
	}
	in := Insights{
		UserID:     userID,
		Flavor:     p.Flavor,
		NextSteps:  make([]PathItem, 0, r.cfg.MaxSuggestions),
		Blockers:   make([]PathItem, 0),
		FocusAreas: make([]FocusArea, 0),
	}
	if p.Total > 0 {
		in.Progress = float64(p.Mastered) / float64(p.Total)
	}

	type agg struct {
		sum float64
		n   int
	}
	cats := map[string]*agg{}
	for _, it := range p.Items {
		if !it.Mastered && len(in.NextSteps) < r.cfg.MaxSuggestions {
			in.NextSteps = append(in.NextSteps, it)
		}
		if !it.Mastered && (it.StruggleLevel >= r.cfg.StruggleLevel || len(it.UnmetPrerequisites) > 0) {
			in.Blockers = append(in.Blockers, it)
		}
		a := cats[it.Category]
		if a == nil {
			a = &agg{}
			cats[it.Category] = a
		}
		a.sum += it.Mastery
		a.n++
	}
	for c, a := range cats {
		in.FocusAreas = append(in.FocusAreas, FocusArea{Category: c, MeanMastery: a.sum / float64(a.n), Skills: a.n})
	}
	sort.Slice(in.FocusAreas, func(i, j int) bool {
		if in.FocusAreas[i].MeanMastery != in.FocusAreas[j].MeanMastery {
			return in.FocusAreas[i].MeanMastery < in.FocusAreas[j].MeanMastery
		}
		return in.FocusAreas[i].Category < in.FocusAreas[j].Category
	})

	if r.reviews != nil {
		due, err := r.reviews.GetConceptsDueForReview(ctx, userID)
		if err != nil {
			return Insights{}, fmt.Errorf("load due reviews: %w", err)
		}
		in.ReviewsDue = due
	}
	return in, nil
}
