// Package skills owns knowledge components: their BKT parameters, category
// and prerequisite list. Skills are created lazily on first reference with
// the defaults of their category and are never deleted.
package skills

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

var (
	ErrCyclicPrerequisites = errors.New("skills: prerequisite cycle")
	ErrUnknownSkill        = errors.New("skills: unknown skill")
	ErrEmptySkillID        = errors.New("skills: empty skill id")
)

const CategoryDefault = "default"

// Params are the four BKT parameters of a skill.
type Params struct {
	PMastery0 float64 `json:"p_mastery0" yaml:"p_mastery0"`
	PTransit  float64 `json:"p_transit" yaml:"p_transit"`
	PSlip     float64 `json:"p_slip" yaml:"p_slip"`
	PGuess    float64 `json:"p_guess" yaml:"p_guess"`
}

type KnowledgeComponent struct {
	ID            string    `json:"id"`
	Category      string    `json:"category"`
	Params        Params    `json:"params"`
	Prerequisites []string  `json:"prerequisites,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (kc *KnowledgeComponent) HasPrerequisite(id string) bool {
	for _, p := range kc.Prerequisites {
		if p == id {
			return true
		}
	}
	return false
}

// DefaultCategoryParams are used for skills whose parameters were never
// provided or were provided out of range.
var DefaultCategoryParams = map[string]Params{
	CategoryDefault: {PMastery0: 0.10, PTransit: 0.15, PSlip: 0.10, PGuess: 0.20},
	"html":          {PMastery0: 0.20, PTransit: 0.20, PSlip: 0.10, PGuess: 0.25},
	"css":           {PMastery0: 0.15, PTransit: 0.15, PSlip: 0.10, PGuess: 0.20},
	"javascript":    {PMastery0: 0.10, PTransit: 0.12, PSlip: 0.10, PGuess: 0.15},
	"algorithms":    {PMastery0: 0.05, PTransit: 0.08, PSlip: 0.08, PGuess: 0.10},
	"conceptual":    {PMastery0: 0.10, PTransit: 0.10, PSlip: 0.05, PGuess: 0.25},
}

// invalidFields lists the parameters outside their allowed ranges:
// slip and guess in [0, 0.5], prior and transit in [0, 1].
func (p Params) invalidFields() []string {
	var out []string
	if !inRange(p.PMastery0, 0, 1) {
		out = append(out, "p_mastery0")
	}
	if !inRange(p.PTransit, 0, 1) {
		out = append(out, "p_transit")
	}
	if !inRange(p.PSlip, 0, 0.5) {
		out = append(out, "p_slip")
	}
	if !inRange(p.PGuess, 0, 0.5) {
		out = append(out, "p_guess")
	}
	return out
}

func (p Params) Validate() error {
	if bad := p.invalidFields(); len(bad) > 0 {
		return fmt.Errorf("skills: parameters out of range: %s", strings.Join(bad, ","))
	}
	return nil
}

func (p Params) IsZero() bool {
	return p == Params{}
}

// withDefaults replaces every out-of-range field with the matching default.
func (p Params) withDefaults(def Params) (Params, []string) {
	bad := p.invalidFields()
	for _, f := range bad {
		switch f {
		case "p_mastery0":
			p.PMastery0 = def.PMastery0
		case "p_transit":
			p.PTransit = def.PTransit
		case "p_slip":
			p.PSlip = def.PSlip
		case "p_guess":
			p.PGuess = def.PGuess
		}
	}
	return p, bad
}

func inRange(x, lo, hi float64) bool {
	return !math.IsNaN(x) && x >= lo && x <= hi
}

// InferCategory maps a skill id such as "css-flexbox" to its category by
// prefix, falling back to CategoryDefault.
func InferCategory(id string, known map[string]Params) string {
	id = strings.ToLower(strings.TrimSpace(id))
	cut := strings.IndexAny(id, "-_./:")
	prefix := id
	if cut > 0 {
		prefix = id[:cut]
	}
	if _, ok := known[prefix]; ok {
		return prefix
	}
	return CategoryDefault
}

func normalizeIDs(ids []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// reaches reports whether target is reachable from any of from by following
// prerequisite edges in graph.
func reaches(graph map[string][]string, from []string, target string) bool {
	visited := map[string]bool{}
	stack := append([]string(nil), from...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == target {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, graph[n]...)
	}
	return false
}

func sortedIDs[T any](m map[string]T) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
