package industry

import (
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/ratio-cli/internal/catalog"
	"github.com/sells-group/ratio-cli/internal/model"
)

// Model is the active component and ratio set for one category.
type Model struct {
	Category    string   `json:"category"`
	DisplayName string   `json:"display_name"`
	Components  []string `json:"components"`
	Ratios      []string `json:"ratios"`
	Skipped     []string `json:"skipped,omitempty"`
}

// ComponentSet returns the active components as a set.
func (m Model) ComponentSet() map[string]bool {
	set := make(map[string]bool, len(m.Components))
	for _, c := range m.Components {
		set[c] = true
	}
	return set
}

// Registry resolves categories to models. It performs lookups only.
type Registry struct {
	cat *catalog.Catalog
}

// NewRegistry creates a Registry.
func NewRegistry(cat *catalog.Catalog) *Registry {
	return &Registry{cat: cat}
}

// ModelFor returns the model of category. Unknown categories fall back to
// the default category.
func (r *Registry) ModelFor(category string) Model {
	ind, ok := r.cat.Industry(category)
	if !ok {
		zap.L().Warn("industry: unknown category, using default",
			zap.String("category", category),
			zap.String("default", r.cat.DefaultIndustry()),
		)
		ind, _ = r.cat.Industry(r.cat.DefaultIndustry())
	}

	m := Model{Category: ind.Category, DisplayName: ind.DisplayName}
	m.Components = r.cat.BaseComponents()
	for _, c := range ind.ExtraComponents {
		if !slices.Contains(m.Components, c) {
			m.Components = append(m.Components, c)
		}
	}
	for _, id := range r.cat.StandardRatios() {
		if slices.Contains(ind.SkipRatios, id) {
			m.Skipped = append(m.Skipped, id)
			continue
		}
		m.Ratios = append(m.Ratios, id)
	}
	for _, id := range ind.ExtraRatios {
		if !slices.Contains(m.Ratios, id) {
			m.Ratios = append(m.Ratios, id)
		}
	}
	return m
}

// ComponentStates reports, for every active component, whether it matched,
// had candidates that never qualified, or had no candidates at all.
func (r *Registry) ComponentStates(m Model, candidates, assigned map[string]int) []model.ComponentState {
	out := make([]model.ComponentState, 0, len(m.Components))
	for _, id := range m.Components {
		st := model.ComponentState{
			Identity:   id,
			Candidates: candidates[id],
			Assigned:   assigned[id],
		}
		if comp, ok := r.cat.Component(id); ok {
			st.Label = comp.Label
		}
		switch {
		case st.Assigned > 0:
			st.Status = model.ComponentMatched
		case st.Candidates > 0:
			st.Status = model.ComponentUnmatched
		default:
			st.Status = model.ComponentNotApplicable
		}
		out = append(out, st)
	}
	return out
}
