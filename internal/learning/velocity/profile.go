package velocity

import (
	"math"
	"sort"
	"time"
)

// Profile is the persisted learning-speed record of one learner.
type Profile struct {
	UserID          string       `json:"user_id"`
	ConceptsLearned int          `json:"concepts_learned"`
	TotalMinutes    float64      `json:"total_minutes"`
	Skills          []SkillStats `json:"skills,omitempty"`
	Hours           []HourStats  `json:"hours,omitempty"`
	Session         Session      `json:"session"`
	History         []Record     `json:"history,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type SkillStats struct {
	SkillID      string    `json:"skill_id"`
	Category     string    `json:"category"`
	Attempts     int       `json:"attempts"`
	Successes    int       `json:"successes"`
	TotalMinutes float64   `json:"total_minutes"`
	Learned      bool      `json:"learned"`
	LastAttempt  time.Time `json:"last_attempt"`
}

func (s SkillStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// HourStats is an exponential moving average of velocity (concepts/hour) for
// one hour of the day.
type HourStats struct {
	Hour     int     `json:"hour"`
	Velocity float64 `json:"velocity"`
	Samples  int     `json:"samples"`
}

type Session struct {
	Start   time.Time `json:"start"`
	Last    time.Time `json:"last"`
	Minutes float64   `json:"minutes"`
}

type Record struct {
	SkillID string    `json:"skill_id"`
	Minutes float64   `json:"minutes"`
	Success bool      `json:"success"`
	Hour    int       `json:"hour"`
	At      time.Time `json:"at"`
}

// OverallVelocity is concepts learned per hour, and false until both concepts
// and minutes are nonzero.
func (p *Profile) OverallVelocity() (float64, bool) {
	if p.ConceptsLearned == 0 || p.TotalMinutes <= 0 {
		return 0, false
	}
	return float64(p.ConceptsLearned) / (p.TotalMinutes / 60), true
}

func (p *Profile) skill(id string) *SkillStats {
	for i := range p.Skills {
		if p.Skills[i].SkillID == id {
			return &p.Skills[i]
		}
	}
	return nil
}

func (p *Profile) ensureSkill(id, category string) *SkillStats {
	if s := p.skill(id); s != nil {
		if s.Category == "" {
			s.Category = category
		}
		return s
	}
	p.Skills = append(p.Skills, SkillStats{SkillID: id, Category: category})
	sort.Slice(p.Skills, func(i, j int) bool { return p.Skills[i].SkillID < p.Skills[j].SkillID })
	return p.skill(id)
}

func (p *Profile) hour(h int) *HourStats {
	for i := range p.Hours {
		if p.Hours[i].Hour == h {
			return &p.Hours[i]
		}
	}
	p.Hours = append(p.Hours, HourStats{Hour: h})
	sort.Slice(p.Hours, func(i, j int) bool { return p.Hours[i].Hour < p.Hours[j].Hour })
	for i := range p.Hours {
		if p.Hours[i].Hour == h {
			return &p.Hours[i]
		}
	}
	return nil
}

// HoursWithData counts the hours of the day that have at least one sample.
func (p *Profile) HoursWithData() int {
	n := 0
	for _, h := range p.Hours {
		if h.Samples > 0 {
			n++
		}
	}
	return n
}

// RelativeVelocity compares the velocity at hour h with the mean over all
// sampled hours. It is 1 when there is nothing to compare.
func (p *Profile) RelativeVelocity(h int) float64 {
	var sum float64
	var n int
	var at *HourStats
	for i := range p.Hours {
		hs := &p.Hours[i]
		if hs.Samples == 0 {
			continue
		}
		sum += hs.Velocity
		n++
		if hs.Hour == h {
			at = hs
		}
	}
	if at == nil || n == 0 || sum <= 0 {
		return 1
	}
	return at.Velocity / (sum / float64(n))
}

// CategorySuccessRate is the success rate over all attempts on skills of the
// given category, and false without attempts.
func (p *Profile) CategorySuccessRate(category string) (float64, bool) {
	var attempts, successes int
	for _, s := range p.Skills {
		if s.Category != category {
			continue
		}
		attempts += s.Attempts
		successes += s.Successes
	}
	if attempts == 0 {
		return 0, false
	}
	return float64(successes) / float64(attempts), true
}

// RecentSuccessRate is the success rate over records newer than window.
func (p *Profile) RecentSuccessRate(now time.Time, window time.Duration) (float64, bool) {
	var n, ok int
	cutoff := now.Add(-window)
	for _, r := range p.History {
		if r.At.Before(cutoff) {
			continue
		}
		n++
		if r.Success {
			ok++
		}
	}
	if n == 0 {
		return 0, false
	}
	return float64(ok) / float64(n), true
}

// SessionMinutes is the length of the current session, zero once the session
// has gone idle for longer than gap.
func (p *Profile) SessionMinutes(now time.Time, gap time.Duration) float64 {
	if p.Session.Last.IsZero() || now.Sub(p.Session.Last) > gap {
		return 0
	}
	return math.Max(0, p.Session.Minutes)
}
