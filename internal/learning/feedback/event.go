package feedback

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-mastery/internal/learning/learner"
)

var ErrInvalidOutcome = errors.New("feedback: invalid outcome")

type Outcome string

const (
	OutcomePassed    Outcome = "passed"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomePassed, OutcomeFailed, OutcomeAbandoned:
		return true
	}
	return false
}

// OutcomeEvent is one concluded attempt. Only SkillID and Outcome are
// required; Normalize fills the rest:
//
//	UserID          learner.DefaultUserID
//	Misconception   "" (none observed)
//	Intervention    "" (no intervention shown)
//	TimeSeconds     0
//	StruggleLevel   0, clamped to 0..3
//	ExplainClicks   0
//	TestAttempts    1
//	At              now
type OutcomeEvent struct {
	SkillID       string    `json:"skill_id"`
	UserID        string    `json:"user_id,omitempty"`
	Outcome       Outcome   `json:"outcome"`
	Misconception string    `json:"misconception,omitempty"`
	Intervention  string    `json:"intervention,omitempty"`
	TimeSeconds   float64   `json:"time_seconds,omitempty"`
	StruggleLevel int       `json:"struggle_level,omitempty"`
	ExplainClicks int       `json:"explain_clicks,omitempty"`
	TestAttempts  int       `json:"test_attempts,omitempty"`
	At            time.Time `json:"at,omitempty"`
}

func (e *OutcomeEvent) Normalize(now time.Time) error {
	e.SkillID = strings.TrimSpace(e.SkillID)
	if e.SkillID == "" {
		return fmt.Errorf("%w: missing skill_id", ErrInvalidOutcome)
	}
	e.Outcome = Outcome(strings.ToLower(strings.TrimSpace(string(e.Outcome))))
	if !e.Outcome.Valid() {
		return fmt.Errorf("%w: outcome %q", ErrInvalidOutcome, e.Outcome)
	}
	e.UserID = learner.ID(e.UserID)
	e.Misconception = strings.TrimSpace(e.Misconception)
	e.Intervention = strings.TrimSpace(e.Intervention)
	if e.TimeSeconds < 0 || math.IsNaN(e.TimeSeconds) || math.IsInf(e.TimeSeconds, 0) {
		e.TimeSeconds = 0
	}
	if e.StruggleLevel < 0 {
		e.StruggleLevel = 0
	}
	if e.StruggleLevel > 3 {
		e.StruggleLevel = 3
	}
	if e.ExplainClicks < 0 {
		e.ExplainClicks = 0
	}
	if e.TestAttempts <= 0 {
		e.TestAttempts = 1
	}
	if e.At.IsZero() {
		e.At = now
	}
	e.At = e.At.UTC()
	return nil
}

func (e OutcomeEvent) Passed() bool { return e.Outcome == OutcomePassed }

// HistoryEntry is the append-only record of one processed outcome.
type HistoryEntry struct {
	ID uuid.UUID `json:"id"`
	OutcomeEvent
}
