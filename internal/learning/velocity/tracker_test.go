package velocity

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/learning/skills"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

type fixedDifficulty map[string]float64

func (f fixedDifficulty) Difficulty(_ context.Context, id string) (float64, error) {
	if d, ok := f[id]; ok {
		return d, nil
	}
	return 0.5, nil
}

type fixedMastery map[string]float64

func (f fixedMastery) MasteryMany(_ context.Context, _ string, ids []string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, id := range ids {
		out[id] = f[id]
	}
	return out, nil
}

func assertFloat(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s: got %.10f, want %.10f", name, got, want)
	}
}

type fixture struct {
	reg     *skills.Registry
	tracker *Tracker
	now     time.Time
}

func newFixture(t *testing.T, mastery MasterySource, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2025, 7, 1, 14, 0, 0, 0, time.UTC)}
	store := kv.NewMemoryStore()
	clock := func() time.Time { return f.now }
	f.reg = skills.NewRegistry(store, nil, logger.NewNop(), skills.WithClock(clock))
	opts = append(opts, WithClock(clock))
	f.tracker = New(store, f.reg, mastery, logger.NewNop(), DefaultConfig(), opts...)
	return f
}

func TestEstimateForNewLearner(t *testing.T) {
	f := newFixture(t, fixedMastery{})
	est, err := f.tracker.EstimateTimeToMastery(context.Background(), "u", "css-grid")
	if err != nil {
		t.Fatalf("EstimateTimeToMastery: %v", err)
	}
	// every factor is neutral except prerequisites, which are trivially met
	wantMult := 0.30*1 + 0.25*1 + 0.25*0.5 + 0.10*1 + 0.05*1 + 0.05*1
	assertFloat(t, "multiplier", est.Multiplier, wantMult)
	assertFloat(t, "minutes", est.Minutes, 15*wantMult)
	assertFloat(t, "confidence", est.Confidence, 0.5)
	assertFloat(t, "overall velocity", est.OverallVelocity, 1)
}

func TestTrackingScalesByOverallVelocity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixedMastery{})

	p, err := f.tracker.TrackVelocityProgress(ctx, "u", "html-forms", 30, true)
	if err != nil {
		t.Fatalf("TrackVelocityProgress: %v", err)
	}
	if p.ConceptsLearned != 1 || p.TotalMinutes != 30 {
		t.Fatalf("unexpected profile: %+v", p)
	}
	v, ok := p.OverallVelocity()
	if !ok {
		t.Fatalf("overall velocity should be defined")
	}
	assertFloat(t, "velocity", v, 2)

	// a second success on the same skill is not a new concept
	p, err = f.tracker.TrackVelocityProgress(ctx, "u", "html-forms", 10, true)
	if err != nil {
		t.Fatalf("TrackVelocityProgress: %v", err)
	}
	if p.ConceptsLearned != 1 {
		t.Fatalf("concepts learned=%d want 1", p.ConceptsLearned)
	}

	est, err := f.tracker.EstimateTimeToMastery(ctx, "u", "html-tables")
	if err != nil {
		t.Fatalf("EstimateTimeToMastery: %v", err)
	}
	assertFloat(t, "velocity", est.OverallVelocity, 1/(40.0/60))
	assertFloat(t, "minutes", est.Minutes, 15*est.Multiplier/est.OverallVelocity)
}

func TestConfidenceGrowsWithData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixedMastery{})
	start := f.now
	for i := 0; i < 5; i++ {
		f.now = start.Add(time.Duration(i) * time.Hour)
		if _, err := f.tracker.TrackVelocityProgress(ctx, "u", fmt.Sprintf("css-topic-%d", i), 10, true); err != nil {
			t.Fatalf("TrackVelocityProgress: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := f.tracker.TrackVelocityProgress(ctx, "u", "css-target", 10, i == 2); err != nil {
			t.Fatalf("TrackVelocityProgress: %v", err)
		}
	}
	est, err := f.tracker.EstimateTimeToMastery(ctx, "u", "css-target")
	if err != nil {
		t.Fatalf("EstimateTimeToMastery: %v", err)
	}
	// 6 concepts (+0.1), 3 attempts on the skill (+0.1), 5 hours of data (+0.1)
	assertFloat(t, "confidence", est.Confidence, 0.8)
}

func TestBlockersFollowFixedRank(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixedMastery{"css-box-model": 0.2}, WithDifficulty(fixedDifficulty{"css-grid": 0.9}))
	if _, err := f.reg.Register(ctx, skills.KnowledgeComponent{ID: "css-grid", Prerequisites: []string{"css-box-model"}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for i := 0; i < 2; i++ {
		f.now = f.now.Add(5 * time.Minute)
		if _, err := f.tracker.TrackVelocityProgress(ctx, "u", "css-grid", 25, false); err != nil {
			t.Fatalf("TrackVelocityProgress: %v", err)
		}
	}

	blockers, err := f.tracker.IdentifyVelocityBlockers(ctx, "u", "css-grid")
	if err != nil {
		t.Fatalf("IdentifyVelocityBlockers: %v", err)
	}
	want := []string{BlockerPrerequisiteGap, BlockerHighDifficulty, BlockerSessionFatigue, BlockerRecentStruggle}
	if len(blockers) != len(want) {
		t.Fatalf("blockers=%+v", blockers)
	}
	for i, b := range blockers {
		if b.Type != want[i] {
			t.Fatalf("blocker %d type=%s want %s (%+v)", i, b.Type, want[i], blockers)
		}
	}
	if blockers[0].SkillIDs[0] != "css-box-model" {
		t.Fatalf("gap skills=%v", blockers[0].SkillIDs)
	}
	// the gap ranks first even though recent struggle scores higher
	if blockers[3].Severity <= blockers[0].Severity {
		t.Fatalf("severities=%+v", blockers)
	}
}

func TestSessionResetsAfterGap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixedMastery{})
	if _, err := f.tracker.TrackVelocityProgress(ctx, "u", "s", 40, true); err != nil {
		t.Fatalf("TrackVelocityProgress: %v", err)
	}
	f.now = f.now.Add(31 * time.Minute)
	p, err := f.tracker.TrackVelocityProgress(ctx, "u", "s", 5, true)
	if err != nil {
		t.Fatalf("TrackVelocityProgress: %v", err)
	}
	assertFloat(t, "session minutes", p.Session.Minutes, 5)

	f.now = f.now.Add(2 * time.Hour)
	blockers, err := f.tracker.IdentifyVelocityBlockers(ctx, "u", "s")
	if err != nil {
		t.Fatalf("IdentifyVelocityBlockers: %v", err)
	}
	for _, b := range blockers {
		if b.Type == BlockerSessionFatigue {
			t.Fatalf("idle session should not be fatiguing: %+v", b)
		}
	}
}

func TestSlowHourOfDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixedMastery{})
	morning := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	night := time.Date(2025, 7, 1, 23, 0, 0, 0, time.UTC)

	f.now = morning
	if _, err := f.tracker.TrackVelocityProgress(ctx, "u", "a", 5, true); err != nil {
		t.Fatalf("TrackVelocityProgress: %v", err)
	}
	f.now = night
	if _, err := f.tracker.TrackVelocityProgress(ctx, "u", "b", 60, true); err != nil {
		t.Fatalf("TrackVelocityProgress: %v", err)
	}

	f.now = night.Add(24*time.Hour + 10*time.Minute)
	est, err := f.tracker.EstimateTimeToMastery(ctx, "u", "c")
	if err != nil {
		t.Fatalf("EstimateTimeToMastery: %v", err)
	}
	// night velocity 1/h vs mean 6.5/h
	assertFloat(t, "time of day factor", est.Factors.TimeOfDay, 2)

	blockers, err := f.tracker.IdentifyVelocityBlockers(ctx, "u", "c")
	if err != nil {
		t.Fatalf("IdentifyVelocityBlockers: %v", err)
	}
	if len(blockers) != 1 || blockers[0].Type != BlockerTimeOfDay {
		t.Fatalf("blockers=%+v", blockers)
	}
}

func TestFatigueFactor(t *testing.T) {
	assertFloat(t, "fresh", FatigueFactor(0), 1)
	assertFloat(t, "20 min", FatigueFactor(20), 0.8)
	assertFloat(t, "floor", FatigueFactor(120), 0.5)
}
