package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/learning/feedback"
	"github.com/yungbote/neurobridge-mastery/internal/learning/memory"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

func newEngine(t *testing.T) (*Engine, *time.Time) {
	t.Helper()
	now := time.Date(2025, 8, 4, 9, 30, 0, 0, time.UTC)
	clock := &now
	e := New(kv.NewMemoryStore(), nil, logger.NewNop(), DefaultConfig(), WithClock(func() time.Time { return *clock }))
	return e, clock
}

func TestRecordOutcomeUpdatesEveryModel(t *testing.T) {
	e, now := newEngine(t)
	ctx := context.Background()

	res, err := e.RecordOutcome(ctx, Outcome{
		OutcomeEvent: feedback.OutcomeEvent{SkillID: "css-flexbox", UserID: "u1", Outcome: feedback.OutcomePassed, TimeSeconds: 600},
		Rating:       memory.Good,
	})
	if err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if res.Feedback.Mastery == nil || res.Feedback.Mastery.After <= res.Feedback.Mastery.Before {
		t.Fatalf("mastery = %+v", res.Feedback.Mastery)
	}
	if res.Memory == nil || math.Abs(res.Memory.Stability-1.5) > 1e-9 {
		t.Fatalf("memory = %+v", res.Memory)
	}
	wantNext := now.Add(time.Duration(1.5 * 9 * (1/0.9 - 1) * 24 * float64(time.Hour)))
	if d := res.Memory.NextReview.Sub(wantNext); d > time.Millisecond || d < -time.Millisecond {
		t.Fatalf("next review = %v, want %v", res.Memory.NextReview, wantNext)
	}
	if res.Velocity == nil || res.Velocity.Attempts != 1 || res.Velocity.TotalMinutes != 10 {
		t.Fatalf("velocity = %+v", res.Velocity)
	}

	m, err := e.Mastery.GetMastery(ctx, "u1", "css-flexbox")
	if err != nil {
		t.Fatalf("GetMastery: %v", err)
	}
	if math.Abs(m-res.Feedback.Mastery.After) > 1e-9 {
		t.Fatalf("stored mastery = %f, want %f", m, res.Feedback.Mastery.After)
	}
	h, _ := e.Feedback.History(ctx, feedback.HistoryFilter{UserID: "u1"})
	if len(h) != 1 {
		t.Fatalf("history = %+v", h)
	}
}

func TestRecordOutcomeAbandoned(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	res, err := e.RecordOutcome(ctx, Outcome{OutcomeEvent: feedback.OutcomeEvent{
		SkillID: "js-async", Outcome: feedback.OutcomeAbandoned, TimeSeconds: 120,
	}})
	if err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if res.Feedback.Mastery != nil || res.Memory != nil {
		t.Fatalf("abandoned attempt changed mastery or memory: %+v", res)
	}
	if res.Velocity == nil || res.Velocity.Successes != 0 {
		t.Fatalf("velocity = %+v", res.Velocity)
	}
	if _, ok, _ := e.Memory.CurrentRetrievability(ctx, "", "js-async"); ok {
		t.Fatalf("abandoned attempt created a review")
	}
}

func TestRecordOutcomeWithoutDurationSkipsVelocity(t *testing.T) {
	e, _ := newEngine(t)
	res, err := e.RecordOutcome(context.Background(), Outcome{OutcomeEvent: feedback.OutcomeEvent{
		SkillID: "html-forms", Outcome: feedback.OutcomeFailed,
	}})
	if err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if res.Velocity != nil {
		t.Fatalf("velocity tracked without duration")
	}
	if res.Memory == nil || res.Memory.Lapses != 1 {
		t.Fatalf("memory = %+v", res.Memory)
	}
}

func TestRecordOutcomeRejectsInput(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	_, err := e.RecordOutcome(ctx, Outcome{OutcomeEvent: feedback.OutcomeEvent{SkillID: "css-grid", Outcome: feedback.OutcomePassed}, Rating: 7})
	if !errors.Is(err, memory.ErrInvalidRating) {
		t.Fatalf("err = %v", err)
	}
	_, err = e.RecordOutcome(ctx, Outcome{OutcomeEvent: feedback.OutcomeEvent{Outcome: feedback.OutcomePassed}})
	if !errors.Is(err, feedback.ErrInvalidOutcome) {
		t.Fatalf("err = %v", err)
	}
}

func TestDeriveRating(t *testing.T) {
	cases := []struct {
		name string
		ev   feedback.OutcomeEvent
		want memory.Rating
	}{
		{"failed", feedback.OutcomeEvent{Outcome: feedback.OutcomeFailed}, memory.Again},
		{"clean first try", feedback.OutcomeEvent{Outcome: feedback.OutcomePassed, TestAttempts: 1}, memory.Easy},
		{"needed a hint", feedback.OutcomeEvent{Outcome: feedback.OutcomePassed, TestAttempts: 1, ExplainClicks: 1}, memory.Good},
		{"mild struggle", feedback.OutcomeEvent{Outcome: feedback.OutcomePassed, TestAttempts: 2, StruggleLevel: 1}, memory.Good},
		{"many attempts", feedback.OutcomeEvent{Outcome: feedback.OutcomePassed, TestAttempts: 3}, memory.Hard},
		{"heavy struggle", feedback.OutcomeEvent{Outcome: feedback.OutcomePassed, TestAttempts: 1, StruggleLevel: 2}, memory.Hard},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveRating(tc.ev); got != tc.want {
				t.Fatalf("DeriveRating = %s, want %s", got, tc.want)
			}
		})
	}
}
