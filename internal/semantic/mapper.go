// Package semantic resolves positioned structural nodes to canonical,
// company-independent identities using priority-ordered mapping rules.
package semantic

import (
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/ratio-cli/internal/hierarchy"
	"github.com/sells-group/ratio-cli/internal/model"
)

// DimensionPenalty lowers the score of a match on a dimensional breakdown,
// which rarely represents the statement total an identity stands for.
const DimensionPenalty = 30

// Rule maps a raw concept to a semantic identity when its condition holds.
type Rule struct {
	ID          string
	Concept     string
	Condition   Condition
	Identity    string
	Label       string
	Category    string
	Subcategory string
	Priority    int
	Active      bool
}

type indexedRule struct {
	Rule
	order int
}

// Mapper assigns semantic identities. It is safe for concurrent use.
type Mapper struct {
	byConcept map[string][]indexedRule
	threshold float64
}

// NewMapper indexes active rules by concept, sorted by ascending priority
// with declaration order breaking ties.
func NewMapper(rules []Rule, threshold float64) *Mapper {
	m := &Mapper{byConcept: make(map[string][]indexedRule), threshold: threshold}
	for i, r := range rules {
		if !r.Active {
			continue
		}
		key := model.LocalName(r.Concept)
		m.byConcept[key] = append(m.byConcept[key], indexedRule{Rule: r, order: i})
	}
	for _, rs := range m.byConcept {
		sort.SliceStable(rs, func(a, b int) bool {
			if rs[a].Priority != rs[b].Priority {
				return rs[a].Priority < rs[b].Priority
			}
			return rs[a].order < rs[b].order
		})
	}
	return m
}

// Result is the outcome of mapping one forest.
type Result struct {
	// Assignments is parallel to the forest's nodes; nil means unassigned.
	Assignments []*model.SemanticAssignment
	// Labels is the display label of every node.
	Labels      []string
	Ambiguities []model.MappingAmbiguity
	// Candidates counts, per identity, the nodes whose raw concept some
	// active rule for that identity names.
	Candidates map[string]int
	// Assigned counts, per identity, the nodes that were assigned to it.
	Assigned map[string]int
}

// Map resolves every node of f. Rules whose identity is not in active are
// ignored; a nil active set allows every identity. Map does not modify f.
func (m *Mapper) Map(f *hierarchy.Forest, active map[string]bool) *Result {
	res := &Result{
		Assignments: make([]*model.SemanticAssignment, f.Len()),
		Labels:      make([]string, f.Len()),
		Candidates:  make(map[string]int),
		Assigned:    make(map[string]int),
	}
	log := zap.L().With(zap.String("filing_id", f.FilingID))

	for i := 0; i < f.Len(); i++ {
		node := f.Node(i)
		rules := m.byConcept[node.LocalName]

		counted := make(map[string]bool)
		var winner *indexedRule
		var score float64
		var tied []string
		for k := range rules {
			r := &rules[k]
			if active != nil && !active[r.Identity] {
				continue
			}
			if !counted[r.Identity] {
				counted[r.Identity] = true
				res.Candidates[r.Identity]++
			}
			if winner != nil {
				if r.Priority == winner.Priority && m.eligible(f, i, r) {
					tied = append(tied, r.ID)
				}
				continue
			}
			if s, ok := m.score(f, i, r); ok {
				winner, score = r, s
			}
		}

		if winner == nil {
			res.Labels[i] = HumanLabel(node)
			continue
		}
		res.Assignments[i] = &model.SemanticAssignment{
			Identity:    winner.Identity,
			Label:       winner.Label,
			Category:    winner.Category,
			Subcategory: winner.Subcategory,
			RuleID:      winner.ID,
			Score:       score,
		}
		res.Assigned[winner.Identity]++
		res.Labels[i] = winner.Label
		if res.Labels[i] == "" {
			res.Labels[i] = HumanLabel(node)
		}
		if len(tied) > 0 {
			amb := model.MappingAmbiguity{
				PositionalID: node.PositionalID,
				Concept:      node.Concept,
				Priority:     winner.Priority,
				RuleIDs:      append([]string{winner.ID}, tied...),
				Chosen:       winner.ID,
			}
			res.Ambiguities = append(res.Ambiguities, amb)
			log.Warn("semantic: ambiguous rules at same priority",
				zap.String("positional_id", node.PositionalID),
				zap.Strings("rules", amb.RuleIDs),
				zap.String("chosen", winner.ID),
			)
		}
	}
	return res
}

func (m *Mapper) score(f *hierarchy.Forest, i int, r *indexedRule) (float64, bool) {
	if !r.Condition.Holds(f, i) {
		return 0, false
	}
	s := r.Condition.Weight()
	if f.Node(i).HasDimensions() {
		s -= DimensionPenalty
	}
	return s, s >= m.threshold
}

func (m *Mapper) eligible(f *hierarchy.Forest, i int, r *indexedRule) bool {
	_, ok := m.score(f, i, r)
	return ok
}

// HumanLabel derives a display label for a node no rule identifies: the
// upstream label when present, otherwise the split local concept name.
func HumanLabel(node *model.StructuralConcept) string {
	if node.Label != "" {
		return node.Label
	}
	// Casers keep state, so each call gets its own.
	return cases.Title(language.English, cases.NoLower).String(strings.Join(splitWords(node.LocalName), " "))
}

// splitWords breaks CamelCase and snake_case names into words, keeping
// acronyms such as EBITDA together.
func splitWords(name string) []string {
	var words []string
	runes := []rune(name)
	start := 0
	flush := func(end int) {
		if end > start {
			words = append(words, string(runes[start:end]))
		}
	}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '_' || r == '-' || r == ' ' {
			flush(i)
			start = i + 1
			continue
		}
		if i == start || !unicode.IsUpper(r) {
			continue
		}
		prev := runes[i-1]
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
			flush(i)
			start = i
		}
	}
	flush(len(runes))
	return words
}
