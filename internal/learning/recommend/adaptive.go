package recommend

import (
	"context"
	"fmt"
	"sort"

	"github.com/yungbote/neurobridge-mastery/internal/learning/learner"
	"github.com/yungbote/neurobridge-mastery/internal/learning/skills"
)

type Strategy string

const (
	StrategyStruggle   Strategy = "struggle"
	StrategyFoundation Strategy = "foundation"
	StrategyProgress   Strategy = "progress"
)

const (
	SuggestReviewPrerequisite   = "review_prerequisite"
	SuggestBreakDown            = "break_down"
	SuggestAlternative          = "alternative"
	SuggestCompletePrerequisite = "complete_prerequisite"
	SuggestPractice             = "practice"
	SuggestRelated              = "related"
	SuggestAdvance              = "advance"
	SuggestNextSkill            = "next_skill"
)

type Suggestion struct {
	Type    string  `json:"type"`
	SkillID string  `json:"skill_id"`
	Mastery float64 `json:"mastery"`
	Message string  `json:"message"`
}

type Recommendations struct {
	SkillID       string       `json:"skill_id"`
	Strategy      Strategy     `json:"strategy"`
	Mastery       float64      `json:"mastery"`
	StruggleLevel int          `json:"struggle_level"`
	Suggestions   []Suggestion `json:"suggestions"`
}

// GetAdaptiveRecommendations picks one of three strategies from the skill's
// current state: struggling learners get prerequisite review and smaller
// steps, low mastery gets foundation work, and everyone else is pointed at
// the skills that build on this one.
func (r *Ranker) GetAdaptiveRecommendations(ctx context.Context, userID, skillID string) (Recommendations, error) {
	userID = learner.ID(userID)
	st, _, err := r.load(ctx, userID, []string{skillID})
	if err != nil {
		return Recommendations{}, err
	}
	now := r.now()
	cur := r.item(st, skillID, now)
	rec := Recommendations{SkillID: cur.SkillID, Mastery: cur.Mastery, StruggleLevel: cur.StruggleLevel}

	switch {
	case cur.StruggleLevel >= r.cfg.StruggleLevel:
		rec.Strategy = StrategyStruggle
		for _, p := range cur.UnmetPrerequisites {
			rec.add(SuggestReviewPrerequisite, p, st.mastery[p], "Review %s before continuing", p)
		}
		rec.add(SuggestBreakDown, cur.SkillID, cur.Mastery, "Work through %s in smaller steps", cur.SkillID)
		alts, err := r.siblings(ctx, userID, cur)
		if err != nil {
			return Recommendations{}, err
		}
		for _, a := range alts {
			rec.add(SuggestAlternative, a.SkillID, a.Mastery, "Try %s and come back later", a.SkillID)
		}
	case cur.Mastery < r.cfg.LowMastery:
		rec.Strategy = StrategyFoundation
		for _, p := range cur.UnmetPrerequisites {
			rec.add(SuggestCompletePrerequisite, p, st.mastery[p], "Complete %s first", p)
		}
		rec.add(SuggestPractice, cur.SkillID, cur.Mastery, "Practice the basics of %s", cur.SkillID)
		rel, err := r.siblings(ctx, userID, cur)
		if err != nil {
			return Recommendations{}, err
		}
		for _, a := range rel {
			rec.add(SuggestRelated, a.SkillID, a.Mastery, "Related skill: %s", a.SkillID)
		}
	default:
		rec.Strategy = StrategyProgress
		if cur.Mastered {
			rec.add(SuggestAdvance, cur.SkillID, cur.Mastery, "%s is mastered, move on", cur.SkillID)
		} else {
			rec.add(SuggestPractice, cur.SkillID, cur.Mastery, "Keep practicing %s to reach mastery", cur.SkillID)
		}
		deps, err := r.skills.Dependents(ctx, cur.SkillID)
		if err != nil {
			return Recommendations{}, fmt.Errorf("load dependents: %w", err)
		}
		if len(deps) > 0 {
			dm, err := r.mastery.MasteryMany(ctx, userID, deps)
			if err != nil {
				return Recommendations{}, fmt.Errorf("load mastery: %w", err)
			}
			sort.SliceStable(deps, func(i, j int) bool {
				if dm[deps[i]] != dm[deps[j]] {
					return dm[deps[i]] < dm[deps[j]]
				}
				return deps[i] < deps[j]
			})
			for i, d := range deps {
				if i >= r.cfg.MaxSuggestions {
					break
				}
				rec.add(SuggestNextSkill, d, dm[d], "Next up: %s", d)
			}
		}
	}
	return rec, nil
}

func (rec *Recommendations) add(kind, skillID string, mastery float64, format string, args ...any) {
	rec.Suggestions = append(rec.Suggestions, Suggestion{
		Type:    kind,
		SkillID: skillID,
		Mastery: mastery,
		Message: fmt.Sprintf(format, args...),
	})
}

// siblings returns unmastered skills of the same category whose
// prerequisites are met, lowest struggle first. Prerequisites of cur are
// not siblings.
func (r *Ranker) siblings(ctx context.Context, userID string, cur PathItem) ([]PathItem, error) {
	all, err := r.skills.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	var self *skills.KnowledgeComponent
	for _, kc := range all {
		if kc.ID == cur.SkillID {
			self = kc
		}
	}
	var ids []string
	for _, kc := range all {
		if self != nil && self.HasPrerequisite(kc.ID) {
			continue
		}
		if kc.ID != cur.SkillID && kc.Category == cur.Category {
			ids = append(ids, kc.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	st, ids, err := r.load(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	now := r.now()
	var out []PathItem
	for _, id := range ids {
		it := r.item(st, id, now)
		if it.Mastered || len(it.UnmetPrerequisites) > 0 {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StruggleLevel != out[j].StruggleLevel {
			return out[i].StruggleLevel < out[j].StruggleLevel
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > r.cfg.MaxSuggestions-1 {
		out = out[:r.cfg.MaxSuggestions-1]
	}
	return out, nil
}
