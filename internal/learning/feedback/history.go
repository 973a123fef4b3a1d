package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/learning/learner"
)

const historyKey = "feedback:history"

func (l *Loop) loadHistory(ctx context.Context) ([]HistoryEntry, error) {
	list, err := kv.Load[[]HistoryEntry](ctx, l.store, historyKey, nil)
	if err != nil {
		return nil, fmt.Errorf("load feedback history: %w", err)
	}
	return list, nil
}

func (l *Loop) saveHistory(ctx context.Context, list []HistoryEntry) error {
	if err := l.store.Set(ctx, historyKey, list); err != nil {
		return fmt.Errorf("save feedback history: %w", err)
	}
	return nil
}

// trim drops entries older than MaxHistoryAge, then the oldest entries beyond
// MaxHistoryEntries. Entries are kept in append order.
func (l *Loop) trim(list []HistoryEntry, now time.Time) []HistoryEntry {
	cutoff := now.Add(-l.cfg.MaxHistoryAge)
	kept := list[:0:0]
	for _, e := range list {
		if e.At.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) > l.cfg.MaxHistoryEntries {
		kept = kept[len(kept)-l.cfg.MaxHistoryEntries:]
	}
	return kept
}

// TrimHistory applies the retention limits without appending anything and
// reports how many entries were removed.
func (l *Loop) TrimHistory(ctx context.Context) (int, error) {
	list, err := l.loadHistory(ctx)
	if err != nil {
		return 0, err
	}
	kept := l.trim(list, l.now())
	removed := len(list) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := l.saveHistory(ctx, kept); err != nil {
		return 0, err
	}
	l.log.Info("feedback history trimmed", "removed", removed, "kept", len(kept))
	return removed, nil
}

type HistoryFilter struct {
	SkillID string
	UserID  string
	Limit   int
}

// History returns matching entries, newest first.
func (l *Loop) History(ctx context.Context, f HistoryFilter) ([]HistoryEntry, error) {
	list, err := l.loadHistory(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0)
	for i := len(list) - 1; i >= 0; i-- {
		e := list[i]
		if f.SkillID != "" && e.SkillID != f.SkillID {
			continue
		}
		if f.UserID != "" && e.UserID != learner.ID(f.UserID) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// StruggleState summarises a learner's recent difficulty with one skill.
type StruggleState struct {
	SkillID        string    `json:"skill_id"`
	Level          int       `json:"level"`
	LastStruggleAt time.Time `json:"last_struggle_at,omitempty"`
	Attempts       int       `json:"attempts"`
	Failures       int       `json:"failures"`
}

// RecentlyStruggled reports a struggle within window of now.
func (s StruggleState) RecentlyStruggled(now time.Time, window time.Duration) bool {
	return !s.LastStruggleAt.IsZero() && now.Sub(s.LastStruggleAt) <= window
}

// StruggleStates derives per-skill struggle state for a learner from the
// history: Level is the level reported by the most recent outcome, and a
// struggle is any outcome with a nonzero level or a failure.
func (l *Loop) StruggleStates(ctx context.Context, userID string) (map[string]StruggleState, error) {
	list, err := l.loadHistory(ctx)
	if err != nil {
		return nil, err
	}
	userID = learner.ID(userID)
	out := map[string]StruggleState{}
	for _, e := range list {
		if e.UserID != userID {
			continue
		}
		st := out[e.SkillID]
		st.SkillID = e.SkillID
		st.Level = e.StruggleLevel
		st.Attempts++
		if e.Outcome == OutcomeFailed {
			st.Failures++
		}
		if e.StruggleLevel > 0 || e.Outcome == OutcomeFailed {
			if e.At.After(st.LastStruggleAt) {
				st.LastStruggleAt = e.At
			}
		}
		out[e.SkillID] = st
	}
	return out, nil
}

func (l *Loop) StruggleWindow() time.Duration { return l.cfg.StruggleWindow }
