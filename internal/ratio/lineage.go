package ratio

import (
	"fmt"

	"github.com/sells-group/ratio-cli/internal/catalog"
	"github.com/sells-group/ratio-cli/internal/hierarchy"
	"github.com/sells-group/ratio-cli/internal/model"
)

// Mismatch is a lineage entry that no longer reproduces from the forest.
type Mismatch struct {
	RatioID      string `json:"ratio_id"`
	Input        string `json:"input"`
	PositionalID string `json:"positional_id,omitempty"`
	Detail       string `json:"detail"`
}

// VerifyLineage re-resolves every structural node referenced by the
// results' lineage and reports entries whose value, concept or derivation
// does not reproduce exactly.
func VerifyLineage(cat *catalog.Catalog, f *hierarchy.Forest, results []model.RatioResult) []Mismatch {
	var out []Mismatch
	for _, r := range results {
		for _, le := range r.Lineage {
			if le.Defaulted {
				continue
			}
			for _, d := range verifyResolved(cat, f, le.Resolved) {
				out = append(out, Mismatch{
					RatioID:      r.RatioID,
					Input:        le.Input,
					PositionalID: d.id,
					Detail:       d.detail,
				})
			}
		}
	}
	return out
}

type problem struct {
	id     string
	detail string
}

func verifyResolved(cat *catalog.Catalog, f *hierarchy.Forest, rv model.ResolvedValue) []problem {
	if rv.Source == model.SourceDerived {
		return verifyDerived(cat, f, rv)
	}
	if _, err := hierarchy.ParsePositionalID(rv.PositionalID); err != nil {
		return []problem{{id: rv.PositionalID, detail: err.Error()}}
	}
	n, ok := f.Lookup(rv.PositionalID)
	switch {
	case !ok:
		return []problem{{id: rv.PositionalID, detail: "positional id not found"}}
	case n.Concept != rv.Concept:
		return []problem{{id: rv.PositionalID, detail: fmt.Sprintf("concept %s, lineage says %s", n.Concept, rv.Concept)}}
	case n.Value == nil:
		return []problem{{id: rv.PositionalID, detail: "node has no value"}}
	case *n.Value != rv.Value:
		return []problem{{id: rv.PositionalID, detail: fmt.Sprintf("value %g, lineage says %g", *n.Value, rv.Value)}}
	}
	return nil
}

func verifyDerived(cat *catalog.Catalog, f *hierarchy.Forest, rv model.ResolvedValue) []problem {
	var probs []problem
	values := make(map[string]float64, len(rv.Components))
	for _, c := range rv.Components {
		probs = append(probs, verifyResolved(cat, f, c)...)
		values[c.Identity] = c.Value
	}
	var der *catalog.Derivation
	for _, d := range cat.Derivations(rv.Identity) {
		if d.ID == rv.Via {
			der = d
		}
	}
	if der == nil {
		return append(probs, problem{detail: fmt.Sprintf("derivation %s not configured for %s", rv.Via, rv.Identity)})
	}
	v, err := der.Expr.Eval(values)
	if err != nil {
		return append(probs, problem{detail: fmt.Sprintf("derivation %s: %v", der.ID, err)})
	}
	if v != rv.Value {
		probs = append(probs, problem{detail: fmt.Sprintf("derivation %s gives %g, lineage says %g", der.ID, v, rv.Value)})
	}
	return probs
}
