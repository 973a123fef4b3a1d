package feedback

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/learning/bkt"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

func assertFloat(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s: got %.12f, want %.12f", name, got, want)
	}
}

type fakeMastery struct {
	calls []bool
}

func (f *fakeMastery) UpdateMastery(ctx context.Context, userID, skillID string, correct bool) (bkt.Update, error) {
	f.calls = append(f.calls, correct)
	return bkt.Update{SkillID: skillID, Before: 0.1, After: 0.2}, nil
}

type fixture struct {
	store   *kv.MemoryStore
	mastery *fakeMastery
	loop    *Loop
	now     time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		store:   kv.NewMemoryStore(),
		mastery: &fakeMastery{},
		now:     time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC),
	}
	f.loop = New(f.store, f.mastery, logger.NewNop(), cfg, WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) process(t *testing.T, ev OutcomeEvent) Result {
	t.Helper()
	f.now = f.now.Add(time.Minute)
	res, err := f.loop.ProcessOutcome(context.Background(), ev)
	if err != nil {
		t.Fatalf("ProcessOutcome: %v", err)
	}
	return res
}

func TestThresholdsMoveTowardSuccessfulMean(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	outcome := func(i int) OutcomeEvent {
		if i%2 == 0 {
			return OutcomeEvent{SkillID: "html-nesting", Outcome: OutcomePassed, ExplainClicks: 3, TimeSeconds: 90}
		}
		return OutcomeEvent{SkillID: "html-nesting", Outcome: OutcomeFailed, ExplainClicks: 8, TimeSeconds: 400, TestAttempts: 3}
	}
	for i := 0; i < 11; i++ {
		f.process(t, outcome(i))
	}
	prev, err := f.loop.GetThresholds(ctx, "html-nesting")
	if err != nil {
		t.Fatalf("GetThresholds: %v", err)
	}
	if prev.Default {
		t.Fatalf("expected thresholds adjusted after 11 outcomes")
	}

	res := f.process(t, outcome(11))
	if !res.Thresholds.Adjusted || res.Thresholds.Reason != ReasonAdjusted {
		t.Fatalf("result = %+v", res.Thresholds)
	}
	if res.Thresholds.Samples != 12 || res.Thresholds.Successes != 6 {
		t.Fatalf("samples=%d successes=%d", res.Thresholds.Samples, res.Thresholds.Successes)
	}
	got := res.Thresholds.Thresholds
	assertFloat(t, "gentle.explain_clicks", got.Gentle.ExplainClicks, prev.Gentle.ExplainClicks+(3-prev.Gentle.ExplainClicks)*0.1)
	assertFloat(t, "gentle.time_seconds", got.Gentle.TimeSeconds, prev.Gentle.TimeSeconds+(90-prev.Gentle.TimeSeconds)*0.1)
	assertFloat(t, "active.explain_clicks", got.Active.ExplainClicks, 4.5)
	assertFloat(t, "supportive.time_seconds", got.Supportive.TimeSeconds, 180)
	assertFloat(t, "active.test_attempts", got.Active.TestAttempts, 1.5)
}

func TestFirstAdjustmentStartsFromDefaults(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	var res Result
	for i := 0; i < 10; i++ {
		out := OutcomeFailed
		if i < 5 {
			out = OutcomePassed
		}
		res = f.process(t, OutcomeEvent{SkillID: "html-nesting", Outcome: out, ExplainClicks: 3})
	}
	if !res.Thresholds.Adjusted {
		t.Fatalf("expected adjustment at 10 samples, got %+v", res.Thresholds)
	}
	assertFloat(t, "gentle.explain_clicks", res.Thresholds.Thresholds.Gentle.ExplainClicks, 2.1)
}

func TestThresholdsNotAdjustedWithInsufficientData(t *testing.T) {
	cases := []struct {
		name      string
		outcomes  int
		successes int
	}{
		{"too few samples", 9, 9},
		{"too few successes", 12, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, DefaultConfig())
			var res Result
			for i := 0; i < tc.outcomes; i++ {
				out := OutcomeFailed
				if i < tc.successes {
					out = OutcomePassed
				}
				res = f.process(t, OutcomeEvent{SkillID: "css-grid", Outcome: out, ExplainClicks: 1})
			}
			if res.Thresholds.Adjusted || res.Thresholds.Reason != ReasonInsufficientData {
				t.Fatalf("result = %+v", res.Thresholds)
			}
			if keys := f.store.Keys(thresholdsKey); len(keys) != 0 {
				t.Fatalf("thresholds written: %v", keys)
			}
			th, err := f.loop.GetThresholds(context.Background(), "css-grid")
			if err != nil {
				t.Fatalf("GetThresholds: %v", err)
			}
			if !th.Default || th.Thresholds != DefaultConfig().DefaultThresholds {
				t.Fatalf("thresholds = %+v", th)
			}
		})
	}
}

func TestDifficultyRating(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	d, err := f.loop.Difficulty(ctx, "js-closures")
	if err != nil {
		t.Fatalf("Difficulty: %v", err)
	}
	assertFloat(t, "default", d, 0.5)

	f.process(t, OutcomeEvent{SkillID: "js-closures", Outcome: OutcomePassed, TimeSeconds: 150, TestAttempts: 2})
	res := f.process(t, OutcomeEvent{SkillID: "js-closures", Outcome: OutcomeFailed, TimeSeconds: 900, TestAttempts: 6})

	// 0.5*(1-0.5) + 0.25*(150/300) + 0.25*(2/5)
	assertFloat(t, "rating", res.Difficulty.Rating, 0.475)
	if res.Difficulty.Attempts != 2 || res.Difficulty.Successes != 1 {
		t.Fatalf("difficulty = %+v", res.Difficulty)
	}
	d, err = f.loop.Difficulty(ctx, "js-closures")
	if err != nil {
		t.Fatalf("Difficulty: %v", err)
	}
	assertFloat(t, "persisted", d, 0.475)
}

func TestMasteryForwarding(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	res := f.process(t, OutcomeEvent{SkillID: "css-flexbox", Outcome: OutcomePassed})
	if res.Mastery == nil || res.Mastery.After != 0.2 {
		t.Fatalf("mastery = %+v", res.Mastery)
	}
	res = f.process(t, OutcomeEvent{SkillID: "css-flexbox", Outcome: OutcomeAbandoned})
	if res.Mastery != nil {
		t.Fatalf("abandoned outcome updated mastery")
	}
	f.process(t, OutcomeEvent{SkillID: "css-flexbox", Outcome: "FAILED"})
	if len(f.mastery.calls) != 2 || !f.mastery.calls[0] || f.mastery.calls[1] {
		t.Fatalf("mastery calls = %v", f.mastery.calls)
	}
}

func TestInvalidOutcome(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	for _, ev := range []OutcomeEvent{
		{SkillID: "", Outcome: OutcomePassed},
		{SkillID: "css-grid", Outcome: "maybe"},
	} {
		if _, err := f.loop.ProcessOutcome(context.Background(), ev); !errors.Is(err, ErrInvalidOutcome) {
			t.Fatalf("ProcessOutcome(%+v) err = %v", ev, err)
		}
	}
	if len(f.mastery.calls) != 0 {
		t.Fatalf("invalid outcome reached mastery")
	}
}

func TestPatternDetection(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	ev := OutcomeEvent{SkillID: "html-nesting", Outcome: OutcomeFailed, Misconception: "closing-order", Intervention: "visual"}

	for i := 0; i < 4; i++ {
		if res := f.process(t, ev); len(res.Patterns) != 0 {
			t.Fatalf("outcome %d flagged %+v", i, res.Patterns)
		}
	}
	res := f.process(t, ev)
	if len(res.Patterns) != 2 {
		t.Fatalf("patterns = %+v", res.Patterns)
	}
	if res.Patterns[0].Type != RepeatedMisconception || res.Patterns[0].Subject != "closing-order" {
		t.Fatalf("first pattern = %+v", res.Patterns[0])
	}
	if res.Patterns[1].Type != IneffectiveIntervention || res.Patterns[1].Subject != "closing-order/visual" {
		t.Fatalf("second pattern = %+v", res.Patterns[1])
	}

	if res := f.process(t, ev); len(res.Patterns) != 0 {
		t.Fatalf("pending pattern queued twice: %+v", res.Patterns)
	}
	pending, err := f.loop.PendingImprovements(ctx)
	if err != nil {
		t.Fatalf("PendingImprovements: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d", len(pending))
	}

	resolved, err := f.loop.ResolveImprovement(ctx, pending[0].ID)
	if err != nil {
		t.Fatalf("ResolveImprovement: %v", err)
	}
	if resolved.Status != StatusReviewed || resolved.ResolvedAt == nil {
		t.Fatalf("resolved = %+v", resolved)
	}
	pending, _ = f.loop.PendingImprovements(ctx)
	if len(pending) != 1 {
		t.Fatalf("pending after resolve = %d", len(pending))
	}
	if res := f.process(t, ev); len(res.Patterns) != 1 || res.Patterns[0].Type != RepeatedMisconception {
		t.Fatalf("recurring pattern = %+v", res.Patterns)
	}
}

func TestDifficultConceptFlagged(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.process(t, OutcomeEvent{SkillID: "algo-dp", Outcome: OutcomePassed, TimeSeconds: 600, TestAttempts: 5})
	var res Result
	for i := 0; i < 9; i++ {
		res = f.process(t, OutcomeEvent{SkillID: "algo-dp", Outcome: OutcomeFailed})
		if i < 8 && len(res.Patterns) != 0 {
			t.Fatalf("flagged after %d attempts", i+2)
		}
	}
	if len(res.Patterns) != 1 || res.Patterns[0].Type != DifficultConcept || res.Patterns[0].Samples != 10 {
		t.Fatalf("patterns = %+v", res.Patterns)
	}
	assertFloat(t, "rating", res.Difficulty.Rating, 0.95)
}

func TestClassifyStruggle(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	cases := []struct {
		name string
		s    Signals
		want int
	}{
		{"quiet", Signals{ExplainClicks: 1, TestAttempts: 1, TimeSeconds: 60}, 0},
		{"gentle clicks", Signals{ExplainClicks: 2}, 1},
		{"active attempts", Signals{TestAttempts: 4}, 2},
		{"supportive time", Signals{TimeSeconds: 700}, 3},
		{"highest tier wins", Signals{ExplainClicks: 2, TestAttempts: 6}, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.loop.ClassifyStruggle(context.Background(), "css-grid", tc.s)
			if err != nil {
				t.Fatalf("ClassifyStruggle: %v", err)
			}
			if got != tc.want {
				t.Fatalf("level = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestHistoryTrimming(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHistoryEntries = 3
	f := newFixture(t, cfg)
	ctx := context.Background()

	old := f.now.Add(-100 * 24 * time.Hour)
	f.process(t, OutcomeEvent{SkillID: "css-grid", Outcome: OutcomePassed, At: old})
	h, _ := f.loop.History(ctx, HistoryFilter{})
	if len(h) != 0 {
		t.Fatalf("expired entry kept: %+v", h)
	}
	for i := 0; i < 5; i++ {
		f.process(t, OutcomeEvent{SkillID: "css-grid", Outcome: OutcomePassed, TimeSeconds: float64(i)})
	}
	h, err := f.loop.History(ctx, HistoryFilter{SkillID: "css-grid"})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h) != 3 || h[0].TimeSeconds != 4 || h[2].TimeSeconds != 2 {
		t.Fatalf("history = %+v", h)
	}

	f.now = f.now.Add(91 * 24 * time.Hour)
	removed, err := f.loop.TrimHistory(ctx)
	if err != nil {
		t.Fatalf("TrimHistory: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d", removed)
	}
}

func TestStruggleStates(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	f.process(t, OutcomeEvent{SkillID: "js-async", UserID: "u1", Outcome: OutcomeFailed, StruggleLevel: 2})
	struggledAt := f.now
	f.process(t, OutcomeEvent{SkillID: "js-async", UserID: "u1", Outcome: OutcomePassed, StruggleLevel: 0})
	f.process(t, OutcomeEvent{SkillID: "css-grid", UserID: "u1", Outcome: OutcomePassed, StruggleLevel: 9})
	f.process(t, OutcomeEvent{SkillID: "js-async", UserID: "u2", Outcome: OutcomeFailed, StruggleLevel: 3})

	states, err := f.loop.StruggleStates(ctx, "u1")
	if err != nil {
		t.Fatalf("StruggleStates: %v", err)
	}
	js := states["js-async"]
	if js.Level != 0 || js.Attempts != 2 || js.Failures != 1 || !js.LastStruggleAt.Equal(struggledAt) {
		t.Fatalf("js-async = %+v", js)
	}
	if !js.RecentlyStruggled(f.now, f.loop.StruggleWindow()) {
		t.Fatalf("expected recent struggle")
	}
	if states["css-grid"].Level != 3 {
		t.Fatalf("css-grid level = %d", states["css-grid"].Level)
	}
	if js.RecentlyStruggled(f.now.Add(25*time.Hour), f.loop.StruggleWindow()) {
		t.Fatalf("struggle outside window counted")
	}
}

func TestBestIntervention(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	record := func(style string, ok bool) {
		out := OutcomeFailed
		if ok {
			out = OutcomePassed
		}
		f.process(t, OutcomeEvent{SkillID: "js-scope", Outcome: out, Misconception: "hoisting", Intervention: style})
	}
	for _, ok := range []bool{true, false, true} {
		record("worked-example", ok)
	}
	for _, ok := range []bool{true, true} {
		record("analogy", ok)
	}
	best, ok, err := f.loop.Interventions().BestIntervention(ctx, "hoisting")
	if err != nil || !ok {
		t.Fatalf("BestIntervention: ok=%v err=%v", ok, err)
	}
	if best.Style != "worked-example" || best.Uses != 3 {
		t.Fatalf("best = %+v", best)
	}

	record("analogy", true)
	best, _, _ = f.loop.Interventions().BestIntervention(ctx, "hoisting")
	if best.Style != "analogy" {
		t.Fatalf("best after 3 analogy uses = %+v", best)
	}
	if _, ok, _ := f.loop.Interventions().BestIntervention(ctx, "off-by-one"); ok {
		t.Fatalf("unknown misconception returned a style")
	}
}
