// Package accessor resolves semantic identities to authoritative values for
// one filing, with deterministic disambiguation and fallback strategies.
package accessor

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/ratio-cli/internal/catalog"
	"github.com/sells-group/ratio-cli/internal/hierarchy"
	"github.com/sells-group/ratio-cli/internal/model"
)

// MaxConfidence is the confidence of a verified, directly mapped value.
const MaxConfidence = 100

// Penalties are the confidence deductions per resolution weakness.
type Penalties struct {
	Unverified float64
	Synonym    float64
	Derivation float64
}

// DefaultPenalties returns the standard deductions.
func DefaultPenalties() Penalties {
	return Penalties{Unverified: 30, Synonym: 10, Derivation: 15}
}

// Query selects one semantic identity. An empty PeriodEnd accepts any
// period and lets recency decide.
type Query struct {
	Identity        string
	PeriodEnd       string
	RequireVerified bool
}

type checkKey struct {
	concept string
	context string
}

// Accessor is the read side of one filing's resolved concepts. It is not
// safe for concurrent use; each filing owns its own Accessor.
type Accessor struct {
	forest     *hierarchy.Forest
	cat        *catalog.Catalog
	pen        Penalties
	byIdentity map[string][]int
	verified   map[checkKey]bool
	log        *zap.Logger
}

// New indexes the assigned nodes of f. assignments is parallel to f.Nodes.
func New(f *hierarchy.Forest, assignments []*model.SemanticAssignment, report model.VerificationReport, cat *catalog.Catalog, pen Penalties) *Accessor {
	a := &Accessor{
		forest:     f,
		cat:        cat,
		pen:        pen,
		byIdentity: make(map[string][]int),
		verified:   make(map[checkKey]bool),
		log:        zap.L().With(zap.String("filing_id", f.FilingID)),
	}
	for i, as := range assignments {
		if as != nil {
			a.byIdentity[as.Identity] = append(a.byIdentity[as.Identity], i)
		}
	}
	// A fact counts as verified when it was checked and every check on it
	// passed.
	for _, c := range report.Checks {
		k := checkKey{concept: model.LocalName(c.Concept), context: hierarchy.NormalizeContextRef(c.ContextRef)}
		prev, seen := a.verified[k]
		a.verified[k] = c.Passed && (!seen || prev)
	}
	return a
}

// Verified reports whether the verification subsystem confirmed the node.
func (a *Accessor) Verified(n *model.StructuralConcept) bool {
	return a.verified[checkKey{concept: n.LocalName, context: hierarchy.NormalizeContextRef(n.ContextRef)}]
}

// Candidates returns the node indexes assigned to identity that carry a
// usable value for q, in tie-break order.
func (a *Accessor) Candidates(q Query) []int {
	var out []int
	for _, i := range a.byIdentity[q.Identity] {
		n := a.forest.Node(i)
		if n.Value == nil || n.HasDimensions() {
			continue
		}
		if q.PeriodEnd != "" && n.Period.End != q.PeriodEnd {
			continue
		}
		if q.RequireVerified && !a.Verified(n) {
			continue
		}
		out = append(out, i)
	}
	sort.SliceStable(out, func(x, y int) bool {
		nx, ny := a.forest.Node(out[x]), a.forest.Node(out[y])
		vx, vy := a.Verified(nx), a.Verified(ny)
		if vx != vy {
			return vx
		}
		if nx.Period.End != ny.Period.End {
			return nx.Period.End > ny.Period.End
		}
		return nx.PositionalID < ny.PositionalID
	})
	return out
}

// Get resolves q. The second result is false when no strategy produced a
// value.
func (a *Accessor) Get(q Query) (model.ResolvedValue, bool) {
	return a.get(q, map[string]bool{})
}

func (a *Accessor) get(q Query, visiting map[string]bool) (model.ResolvedValue, bool) {
	if visiting[q.Identity] {
		return model.ResolvedValue{}, false
	}
	visiting[q.Identity] = true
	defer delete(visiting, q.Identity)

	if rv, ok := a.primary(q); ok {
		return rv, true
	}

	for _, syn := range a.cat.Synonyms(q.Identity) {
		rv, ok := a.primary(Query{Identity: syn, PeriodEnd: q.PeriodEnd, RequireVerified: q.RequireVerified})
		if !ok {
			continue
		}
		rv.Identity = q.Identity
		rv.Source = model.SourceSynonym
		rv.Via = syn
		rv.Confidence = clamp(rv.Confidence - a.pen.Synonym)
		a.log.Debug("accessor: resolved through synonym",
			zap.String("identity", q.Identity),
			zap.String("synonym", syn),
		)
		return rv, true
	}

	for _, d := range a.cat.Derivations(q.Identity) {
		if rv, ok := a.derive(q, d, visiting); ok {
			return rv, true
		}
	}
	return model.ResolvedValue{}, false
}

func (a *Accessor) primary(q Query) (model.ResolvedValue, bool) {
	cands := a.Candidates(q)
	if len(cands) == 0 {
		return model.ResolvedValue{}, false
	}
	n := a.forest.Node(cands[0])
	verified := a.Verified(n)
	conf := float64(MaxConfidence)
	if !verified {
		conf -= a.pen.Unverified
	}
	return model.ResolvedValue{
		Identity:     q.Identity,
		PositionalID: n.PositionalID,
		Concept:      n.Concept,
		ContextRef:   n.ContextRef,
		PeriodEnd:    n.Period.End,
		Value:        *n.Value,
		Verified:     verified,
		Confidence:   clamp(conf),
		Source:       model.SourcePrimary,
	}, true
}

func (a *Accessor) derive(q Query, d *catalog.Derivation, visiting map[string]bool) (model.ResolvedValue, bool) {
	vars := d.Expr.Vars()
	values := make(map[string]float64, len(vars))
	comps := make([]model.ResolvedValue, 0, len(vars))
	conf := float64(MaxConfidence)
	verified := true
	periodEnd := ""
	for _, v := range vars {
		rv, ok := a.get(Query{Identity: v, PeriodEnd: q.PeriodEnd, RequireVerified: q.RequireVerified}, visiting)
		if !ok {
			return model.ResolvedValue{}, false
		}
		values[v] = rv.Value
		comps = append(comps, rv)
		conf = min(conf, rv.Confidence)
		verified = verified && rv.Verified
		periodEnd = max(periodEnd, rv.PeriodEnd)
	}
	val, err := d.Expr.Eval(values)
	if err != nil {
		return model.ResolvedValue{}, false
	}
	a.log.Debug("accessor: resolved through derivation",
		zap.String("identity", q.Identity),
		zap.String("derivation", d.ID),
	)
	return model.ResolvedValue{
		Identity:   q.Identity,
		PeriodEnd:  periodEnd,
		Value:      val,
		Verified:   verified,
		Confidence: clamp(conf - a.pen.Derivation),
		Source:     model.SourceDerived,
		Via:        d.ID,
		Components: comps,
	}, true
}

func clamp(v float64) float64 {
	return max(0, min(MaxConfidence, v))
}
