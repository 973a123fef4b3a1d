package skills

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Descriptor is what a prerequisite-graph provider knows about a skill.
// Params is nil when the provider has no explicit parameters.
type Descriptor struct {
	Category      string
	Prerequisites []string
	Params        *Params
}

// Provider supplies category and prerequisites for a skill the first time it
// is referenced.
type Provider interface {
	Describe(ctx context.Context, skillID string) (Descriptor, bool, error)
}

// ChainProvider asks each provider in order and returns the first hit.
type ChainProvider []Provider

func (c ChainProvider) Describe(ctx context.Context, skillID string) (Descriptor, bool, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		d, ok, err := p.Describe(ctx, skillID)
		if err != nil {
			return Descriptor{}, false, err
		}
		if ok {
			return d, true, nil
		}
	}
	return Descriptor{}, false, nil
}

type CatalogSkill struct {
	ID            string   `yaml:"id"`
	Category      string   `yaml:"category"`
	Prerequisites []string `yaml:"prerequisites"`
	Params        *Params  `yaml:"params"`
}

// Catalog is a static skill graph loaded from YAML:
//
//	categories:
//	  css: {p_mastery0: 0.15, p_transit: 0.15, p_slip: 0.1, p_guess: 0.2}
//	skills:
//	  - id: css-flexbox
//	    category: css
//	    prerequisites: [css-box-model]
type Catalog struct {
	Categories map[string]Params `yaml:"categories"`
	Skills     []CatalogSkill    `yaml:"skills"`

	index map[string]CatalogSkill
}

func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skill catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse skill catalog: %w", err)
	}
	c.index = make(map[string]CatalogSkill, len(c.Skills))
	graph := make(map[string][]string, len(c.Skills))
	for i := range c.Skills {
		s := &c.Skills[i]
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			return nil, fmt.Errorf("parse skill catalog: entry %d: %w", i, ErrEmptySkillID)
		}
		s.Prerequisites = normalizeIDs(s.Prerequisites)
		c.index[s.ID] = *s
		graph[s.ID] = s.Prerequisites
	}
	for _, id := range sortedIDs(graph) {
		if reaches(graph, graph[id], id) {
			return nil, fmt.Errorf("parse skill catalog: %s: %w", id, ErrCyclicPrerequisites)
		}
	}
	return &c, nil
}

// CategoryDefaults merges the catalog's categories over DefaultCategoryParams.
func (c *Catalog) CategoryDefaults() map[string]Params {
	out := make(map[string]Params, len(DefaultCategoryParams)+len(c.Categories))
	for k, v := range DefaultCategoryParams {
		out[k] = v
	}
	for k, v := range c.Categories {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func (c *Catalog) Describe(_ context.Context, skillID string) (Descriptor, bool, error) {
	if c == nil {
		return Descriptor{}, false, nil
	}
	s, ok := c.index[strings.TrimSpace(skillID)]
	if !ok {
		return Descriptor{}, false, nil
	}
	return Descriptor{
		Category:      s.Category,
		Prerequisites: append([]string(nil), s.Prerequisites...),
		Params:        s.Params,
	}, true, nil
}
