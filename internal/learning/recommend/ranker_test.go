package recommend

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/learning/feedback"
	"github.com/yungbote/neurobridge-mastery/internal/learning/memory"
	"github.com/yungbote/neurobridge-mastery/internal/learning/skills"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

func assertFloat(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s: got %.12f, want %.12f", name, got, want)
	}
}

type masteryMap map[string]float64

func (m masteryMap) MasteryMany(ctx context.Context, userID string, ids []string) (map[string]float64, error) {
	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		v, ok := m[id]
		if !ok {
			v = 0.1
		}
		out[id] = v
	}
	return out, nil
}

type struggleMap map[string]feedback.StruggleState

func (s struggleMap) StruggleStates(ctx context.Context, userID string) (map[string]feedback.StruggleState, error) {
	return s, nil
}

type dueList []memory.Due

func (d dueList) GetConceptsDueForReview(ctx context.Context, userID string) ([]memory.Due, error) {
	return d, nil
}

var now = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

func newRanker(t *testing.T, m masteryMap, s struggleMap, kcs ...skills.KnowledgeComponent) (*Ranker, *skills.Registry) {
	t.Helper()
	reg := skills.NewRegistry(kv.NewMemoryStore(), nil, logger.NewNop())
	for _, kc := range kcs {
		if _, err := reg.Register(context.Background(), kc); err != nil {
			t.Fatalf("Register %s: %v", kc.ID, err)
		}
	}
	if s == nil {
		s = struggleMap{}
	}
	r := New(reg, m, s, logger.NewNop(), DefaultConfig(), WithClock(func() time.Time { return now }))
	return r, reg
}

func webSkills() []skills.KnowledgeComponent {
	return []skills.KnowledgeComponent{
		{ID: "html-basics"},
		{ID: "css-selectors", Prerequisites: []string{"html-basics"}},
		{ID: "css-flexbox", Prerequisites: []string{"css-selectors"}},
		{ID: "css-grid", Prerequisites: []string{"css-selectors"}},
		{ID: "js-dom", Prerequisites: []string{"html-basics", "css-selectors"}},
	}
}

func TestLearningPathScore(t *testing.T) {
	m := masteryMap{"html-basics": 0.96, "css-selectors": 0.5, "css-flexbox": 0.2, "css-grid": 0.4, "js-dom": 0.3}
	s := struggleMap{
		"css-grid": {SkillID: "css-grid", Level: 3, LastStruggleAt: now.Add(-2 * time.Hour)},
		"js-dom":   {SkillID: "js-dom", Level: 1, LastStruggleAt: now.Add(-48 * time.Hour)},
	}
	r, _ := newRanker(t, m, s, webSkills()...)

	p, err := r.GenerateLearningPath(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("GenerateLearningPath: %v", err)
	}
	if p.Total != 5 || p.Mastered != 1 || p.UserID != "default" {
		t.Fatalf("path = %+v", p)
	}
	byID := map[string]PathItem{}
	for _, it := range p.Items {
		byID[it.SkillID] = it
	}
	// (1-0.4) * (1+0.5) * (1+1) * 1.5
	assertFloat(t, "css-grid", byID["css-grid"].Score, 2.7)
	// (1-0.2) * (1+0.5) * 1 * 1
	assertFloat(t, "css-flexbox", byID["css-flexbox"].Score, 1.2)
	// (1-0.3) * (1+0.73) * (1+1/3) * 1
	assertFloat(t, "js-dom", byID["js-dom"].Score, 0.7*1.73*(4.0/3))
	// no prerequisites counts as fully prepared
	assertFloat(t, "html-basics", byID["html-basics"].Score, 0.04*2)

	want := []string{"css-grid", "js-dom", "css-flexbox", "css-selectors", "html-basics"}
	for i, id := range want {
		if p.Items[i].SkillID != id {
			t.Fatalf("position %d = %s, want %s (%+v)", i, p.Items[i].SkillID, id, p.Items)
		}
	}
	if got := byID["js-dom"].UnmetPrerequisites; len(got) != 1 || got[0] != "css-selectors" {
		t.Fatalf("js-dom unmet = %v", got)
	}
	if p.Flavor != FlavorFoundation {
		t.Fatalf("flavor = %s", p.Flavor)
	}
}

func TestPathFlavor(t *testing.T) {
	r := &Ranker{cfg: DefaultConfig()}
	cases := []struct {
		name  string
		items []PathItem
		want  Flavor
	}{
		{"balanced", []PathItem{{}, {}, {}}, FlavorBalanced},
		{"targeted", []PathItem{{StruggleLevel: 2}, {StruggleLevel: 3}, {}}, FlavorTargeted},
		{"foundation", []PathItem{{StruggleLevel: 2}, {UnmetPrerequisites: []string{"a"}}}, FlavorFoundation},
		{"both", []PathItem{{StruggleLevel: 2}, {StruggleLevel: 2, UnmetPrerequisites: []string{"a"}}}, FlavorStruggleAndFoundations},
		{"only top three count", []PathItem{{}, {}, {}, {StruggleLevel: 3}, {StruggleLevel: 3}}, FlavorBalanced},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.flavor(tc.items); got != tc.want {
				t.Fatalf("flavor = %s, want %s", got, tc.want)
			}
			if flavorDescriptions[tc.want] == "" {
				t.Fatalf("missing description for %s", tc.want)
			}
		})
	}
}

func TestGetNextConceptsSkipsMastered(t *testing.T) {
	m := masteryMap{"html-basics": 0.99, "css-selectors": 0.97, "css-flexbox": 0.5, "css-grid": 0.6, "js-dom": 0.96}
	r, _ := newRanker(t, m, nil, webSkills()...)
	next, err := r.GetNextConcepts(context.Background(), "u1", 1)
	if err != nil {
		t.Fatalf("GetNextConcepts: %v", err)
	}
	if len(next) != 1 || next[0].SkillID != "css-flexbox" {
		t.Fatalf("next = %+v", next)
	}
	all, _ := r.GetNextConcepts(context.Background(), "u1", 0)
	if len(all) != 2 {
		t.Fatalf("unmastered = %+v", all)
	}
}

func TestAdaptiveStruggleStrategy(t *testing.T) {
	m := masteryMap{"html-basics": 0.9, "css-selectors": 0.4, "css-flexbox": 0.5, "css-grid": 0.2, "css-animations": 0.3}
	s := struggleMap{"css-flexbox": {SkillID: "css-flexbox", Level: 2, LastStruggleAt: now}}
	kcs := append(webSkills(), skills.KnowledgeComponent{ID: "css-animations"})
	r, _ := newRanker(t, m, s, kcs...)

	rec, err := r.GetAdaptiveRecommendations(context.Background(), "u1", "css-flexbox")
	if err != nil {
		t.Fatalf("GetAdaptiveRecommendations: %v", err)
	}
	if rec.Strategy != StrategyStruggle {
		t.Fatalf("strategy = %s", rec.Strategy)
	}
	wantTypes := []string{SuggestReviewPrerequisite, SuggestBreakDown, SuggestAlternative}
	if len(rec.Suggestions) != len(wantTypes) {
		t.Fatalf("suggestions = %+v", rec.Suggestions)
	}
	for i, typ := range wantTypes {
		if rec.Suggestions[i].Type != typ {
			t.Fatalf("suggestion %d = %+v, want %s", i, rec.Suggestions[i], typ)
		}
	}
	if rec.Suggestions[0].SkillID != "css-selectors" || rec.Suggestions[2].SkillID != "css-animations" {
		t.Fatalf("suggestions = %+v", rec.Suggestions)
	}
}

func TestAdaptiveFoundationStrategy(t *testing.T) {
	m := masteryMap{"html-basics": 0.2, "css-selectors": 0.1}
	r, _ := newRanker(t, m, nil, webSkills()...)
	rec, err := r.GetAdaptiveRecommendations(context.Background(), "u1", "css-selectors")
	if err != nil {
		t.Fatalf("GetAdaptiveRecommendations: %v", err)
	}
	if rec.Strategy != StrategyFoundation {
		t.Fatalf("strategy = %s", rec.Strategy)
	}
	if rec.Suggestions[0].Type != SuggestCompletePrerequisite || rec.Suggestions[0].SkillID != "html-basics" {
		t.Fatalf("first = %+v", rec.Suggestions[0])
	}
	if rec.Suggestions[1].Type != SuggestPractice {
		t.Fatalf("second = %+v", rec.Suggestions[1])
	}
}

func TestAdaptiveProgressStrategyOrdersDependents(t *testing.T) {
	m := masteryMap{"html-basics": 0.9, "css-selectors": 0.96, "css-flexbox": 0.6, "css-grid": 0.2, "js-dom": 0.4}
	r, _ := newRanker(t, m, nil, webSkills()...)
	rec, err := r.GetAdaptiveRecommendations(context.Background(), "u1", "css-selectors")
	if err != nil {
		t.Fatalf("GetAdaptiveRecommendations: %v", err)
	}
	if rec.Strategy != StrategyProgress {
		t.Fatalf("strategy = %s", rec.Strategy)
	}
	want := []struct{ typ, id string }{
		{SuggestAdvance, "css-selectors"},
		{SuggestNextSkill, "css-grid"},
		{SuggestNextSkill, "js-dom"},
		{SuggestNextSkill, "css-flexbox"},
	}
	if len(rec.Suggestions) != len(want) {
		t.Fatalf("suggestions = %+v", rec.Suggestions)
	}
	for i, w := range want {
		if rec.Suggestions[i].Type != w.typ || rec.Suggestions[i].SkillID != w.id {
			t.Fatalf("suggestion %d = %+v, want %s %s", i, rec.Suggestions[i], w.typ, w.id)
		}
	}
}

func TestInsights(t *testing.T) {
	m := masteryMap{"html-basics": 0.97, "css-selectors": 0.5, "css-flexbox": 0.2, "css-grid": 0.4, "js-dom": 0.9}
	s := struggleMap{"css-grid": {SkillID: "css-grid", Level: 2, LastStruggleAt: now}}
	r, _ := newRanker(t, m, s, webSkills()...)
	r.reviews = dueList{{SkillID: "html-basics", Retrievability: 0.8}}

	in, err := r.Insights(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if len(in.NextSteps) != 3 || in.NextSteps[0].SkillID != "css-grid" {
		t.Fatalf("next steps = %+v", in.NextSteps)
	}
	blocked := map[string]bool{}
	for _, b := range in.Blockers {
		blocked[b.SkillID] = true
	}
	if !blocked["css-grid"] || !blocked["css-flexbox"] || !blocked["js-dom"] || blocked["html-basics"] {
		t.Fatalf("blockers = %+v", in.Blockers)
	}
	if len(in.FocusAreas) != 3 || in.FocusAreas[0].Category != "css" || in.FocusAreas[2].Category != "html" {
		t.Fatalf("focus areas = %+v", in.FocusAreas)
	}
	assertFloat(t, "css mean", in.FocusAreas[0].MeanMastery, (0.5+0.2+0.4)/3)
	assertFloat(t, "progress", in.Progress, 0.2)
	if len(in.ReviewsDue) != 1 {
		t.Fatalf("reviews due = %+v", in.ReviewsDue)
	}
}
