package skills

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

const registryKey = "skills:registry"

type Option func(*Registry)

// WithCategoryDefaults overrides the per-category default parameters.
func WithCategoryDefaults(m map[string]Params) Option {
	return func(r *Registry) {
		if len(m) == 0 {
			return
		}
		r.categories = make(map[string]Params, len(m)+1)
		r.categories[CategoryDefault] = DefaultCategoryParams[CategoryDefault]
		for k, v := range m {
			r.categories[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// Registry persists every known skill under a single key. Reads always go to
// the store; the registry keeps no cache of its own.
type Registry struct {
	store      kv.Store
	provider   Provider
	log        *logger.Logger
	categories map[string]Params
	now        func() time.Time
}

func NewRegistry(store kv.Store, provider Provider, baseLog *logger.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:      store,
		provider:   provider,
		log:        baseLog.With("component", "SkillRegistry"),
		categories: DefaultCategoryParams,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CategoryDefaults returns the default parameters for category, falling back
// to the default category.
func (r *Registry) CategoryDefaults(category string) Params {
	if p, ok := r.categories[strings.ToLower(strings.TrimSpace(category))]; ok {
		return p
	}
	return r.categories[CategoryDefault]
}

// Get returns the skill, creating it from the provider and category defaults
// on first reference.
func (r *Registry) Get(ctx context.Context, id string) (*KnowledgeComponent, error) {
	out, err := r.GetMany(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	return out[strings.TrimSpace(id)], nil
}

// GetMany is Get for several skills with a single read and at most one write.
func (r *Registry) GetMany(ctx context.Context, ids []string) (map[string]*KnowledgeComponent, error) {
	ids = normalizeIDs(ids)
	if len(ids) == 0 {
		return nil, ErrEmptySkillID
	}
	idx, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*KnowledgeComponent, len(ids))
	dirty := false
	for _, id := range ids {
		if kc, ok := idx[id]; ok {
			out[id] = kc
			continue
		}
		kc, err := r.create(ctx, idx, id)
		if err != nil {
			return nil, err
		}
		idx[id] = kc
		out[id] = kc
		dirty = true
	}
	if dirty {
		if err := r.save(ctx, idx); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Lookup returns the skill without creating it.
func (r *Registry) Lookup(ctx context.Context, id string) (*KnowledgeComponent, bool, error) {
	idx, err := r.load(ctx)
	if err != nil {
		return nil, false, err
	}
	kc, ok := idx[strings.TrimSpace(id)]
	return kc, ok, nil
}

// All lists every known skill ordered by id.
func (r *Registry) All(ctx context.Context) ([]*KnowledgeComponent, error) {
	idx, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*KnowledgeComponent, 0, len(idx))
	for _, id := range sortedIDs(idx) {
		out = append(out, idx[id])
	}
	return out, nil
}

// Register creates or replaces a skill. Out-of-range parameters are replaced
// by category defaults and logged; a prerequisite list that would close a
// cycle is rejected.
func (r *Registry) Register(ctx context.Context, kc KnowledgeComponent) (*KnowledgeComponent, error) {
	kc.ID = strings.TrimSpace(kc.ID)
	if kc.ID == "" {
		return nil, ErrEmptySkillID
	}
	idx, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	next := r.build(kc.ID, kc.Category, kc.Prerequisites, &kc.Params)
	if err := checkAcyclic(idx, next); err != nil {
		return nil, err
	}
	if prev, ok := idx[kc.ID]; ok {
		next.CreatedAt = prev.CreatedAt
	}
	idx[kc.ID] = next
	if err := r.save(ctx, idx); err != nil {
		return nil, err
	}
	return next, nil
}

// UpdateParams replaces the parameters of an existing skill.
func (r *Registry) UpdateParams(ctx context.Context, id string, p Params) error {
	return r.UpdateParamsMany(ctx, map[string]Params{id: p})
}

func (r *Registry) UpdateParamsMany(ctx context.Context, updates map[string]Params) error {
	if len(updates) == 0 {
		return nil
	}
	idx, err := r.load(ctx)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	for id, p := range updates {
		kc, ok := idx[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSkill, id)
		}
		fixed, bad := p.withDefaults(kc.Params)
		if len(bad) > 0 {
			r.log.Warn("rejected out-of-range parameters", "skill_id", id, "fields", bad)
		}
		kc.Params = fixed
		kc.UpdatedAt = now
	}
	return r.save(ctx, idx)
}

// Prerequisites returns the direct prerequisites of a skill, creating it if
// needed.
func (r *Registry) Prerequisites(ctx context.Context, id string) ([]string, error) {
	kc, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), kc.Prerequisites...), nil
}

// Dependents returns the known skills that list id as a direct prerequisite.
func (r *Registry) Dependents(ctx context.Context, id string) ([]string, error) {
	idx, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	var out []string
	for _, sid := range sortedIDs(idx) {
		if idx[sid].HasPrerequisite(id) {
			out = append(out, sid)
		}
	}
	return out, nil
}

func (r *Registry) create(ctx context.Context, idx map[string]*KnowledgeComponent, id string) (*KnowledgeComponent, error) {
	var d Descriptor
	if r.provider != nil {
		found, ok, err := r.provider.Describe(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("describe skill %s: %w", id, err)
		}
		if ok {
			d = found
		}
	}
	kc := r.build(id, d.Category, d.Prerequisites, d.Params)
	if err := checkAcyclic(idx, kc); err != nil {
		r.log.Warn("dropping cyclic prerequisites", "skill_id", id, "prerequisites", kc.Prerequisites)
		kc.Prerequisites = nil
	}
	r.log.Debug("created skill", "skill_id", id, "category", kc.Category)
	return kc, nil
}

func (r *Registry) build(id, category string, prereqs []string, p *Params) *KnowledgeComponent {
	category = strings.ToLower(strings.TrimSpace(category))
	if _, ok := r.categories[category]; !ok {
		category = InferCategory(id, r.categories)
	}
	def := r.CategoryDefaults(category)
	params := def
	if p != nil && !p.IsZero() {
		var bad []string
		params, bad = p.withDefaults(def)
		if len(bad) > 0 {
			r.log.Warn("replaced out-of-range parameters with category defaults", "skill_id", id, "fields", bad)
		}
	}
	var clean []string
	for _, pid := range normalizeIDs(prereqs) {
		if pid != id {
			clean = append(clean, pid)
		}
	}
	now := r.now().UTC()
	return &KnowledgeComponent{
		ID:            id,
		Category:      category,
		Params:        params,
		Prerequisites: clean,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func checkAcyclic(idx map[string]*KnowledgeComponent, kc *KnowledgeComponent) error {
	graph := make(map[string][]string, len(idx)+1)
	for id, c := range idx {
		graph[id] = c.Prerequisites
	}
	graph[kc.ID] = kc.Prerequisites
	if reaches(graph, kc.Prerequisites, kc.ID) {
		return fmt.Errorf("%w: %s", ErrCyclicPrerequisites, kc.ID)
	}
	return nil
}

func (r *Registry) load(ctx context.Context) (map[string]*KnowledgeComponent, error) {
	list, err := kv.Load[[]*KnowledgeComponent](ctx, r.store, registryKey, nil)
	if err != nil {
		return nil, fmt.Errorf("load skills: %w", err)
	}
	idx := make(map[string]*KnowledgeComponent, len(list))
	for _, kc := range list {
		if kc == nil || kc.ID == "" {
			continue
		}
		if kc.Category == "" {
			kc.Category = InferCategory(kc.ID, r.categories)
		}
		if kc.Params.IsZero() {
			kc.Params = r.CategoryDefaults(kc.Category)
		}
		idx[kc.ID] = kc
	}
	return idx, nil
}

func (r *Registry) save(ctx context.Context, idx map[string]*KnowledgeComponent) error {
	list := make([]*KnowledgeComponent, 0, len(idx))
	for _, kc := range idx {
		list = append(list, kc)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if err := r.store.Set(ctx, registryKey, list); err != nil {
		return fmt.Errorf("save skills: %w", err)
	}
	return nil
}
