package semantic

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ratio-cli/internal/hierarchy"
	"github.com/sells-group/ratio-cli/internal/model"
)

// Condition kinds as they appear in rule configuration.
const (
	KindUnconditional = "unconditional"
	KindParentIs      = "parent_is"
	KindStatementIs   = "statement_is"
	KindAncestorIs    = "ancestor_is"
	KindDimensionless = "dimensionless"
)

// Condition is a structural predicate evaluated against a positioned node.
// The set of implementations is closed to this package.
type Condition interface {
	// Holds reports whether the condition is true for node i of f.
	Holds(f *hierarchy.Forest, i int) bool
	// Kind is the configuration name of the condition.
	Kind() string
	// Weight is the base match score when the condition holds; more
	// specific conditions weigh more.
	Weight() float64

	sealed()
}

// Unconditional always holds.
type Unconditional struct{}

// ParentIs holds when the node's direct parent has the given local name.
type ParentIs struct{ Concept string }

// StatementIs holds when the node sits on the given statement.
type StatementIs struct{ Code model.StatementCode }

// AncestorIs holds when any ancestor has the given local name.
type AncestorIs struct{ Concept string }

// Dimensionless holds when the node carries no dimensional breakdown.
type Dimensionless struct{}

func (Unconditional) Holds(*hierarchy.Forest, int) bool { return true }
func (Unconditional) Kind() string { return KindUnconditional }
func (Unconditional) Weight() float64 { return 60 }
func (Unconditional) sealed() {}

func (c ParentIs) Holds(f *hierarchy.Forest, i int) bool {
	p, ok := f.Parent(i)
	return ok && p.LocalName == c.Concept
}
func (ParentIs) Kind() string { return KindParentIs }
func (ParentIs) Weight() float64 { return 100 }
func (ParentIs) sealed() {}

func (c StatementIs) Holds(f *hierarchy.Forest, i int) bool {
	return f.Node(i).Statement == c.Code
}
func (StatementIs) Kind() string { return KindStatementIs }
func (StatementIs) Weight() float64 { return 80 }
func (StatementIs) sealed() {}

func (c AncestorIs) Holds(f *hierarchy.Forest, i int) bool {
	found := false
	f.Ancestors(i, func(a *model.StructuralConcept) bool {
		found = a.LocalName == c.Concept
		return !found
	})
	return found
}
func (AncestorIs) Kind() string { return KindAncestorIs }
func (AncestorIs) Weight() float64 { return 90 }
func (AncestorIs) sealed() {}

func (Dimensionless) Holds(f *hierarchy.Forest, i int) bool { return !f.Node(i).HasDimensions() }
func (Dimensionless) Kind() string { return KindDimensionless }
func (Dimensionless) Weight() float64 { return 70 }
func (Dimensionless) sealed() {}

// NewCondition builds a condition from its configured kind and value.
// Unknown kinds are an error.
func NewCondition(kind, value string) (Condition, error) {
	value = strings.TrimSpace(value)
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindUnconditional:
		return Unconditional{}, nil
	case KindParentIs:
		if value == "" {
			return nil, eris.New("semantic: parent_is needs a concept")
		}
		return ParentIs{Concept: model.LocalName(value)}, nil
	case KindAncestorIs:
		if value == "" {
			return nil, eris.New("semantic: ancestor_is needs a concept")
		}
		return AncestorIs{Concept: model.LocalName(value)}, nil
	case KindStatementIs:
		code, ok := model.ParseStatementCode(value)
		if !ok {
			return nil, eris.Errorf("semantic: unknown statement %q", value)
		}
		return StatementIs{Code: code}, nil
	case KindDimensionless:
		return Dimensionless{}, nil
	default:
		return nil, eris.Errorf("semantic: unknown condition type %q", kind)
	}
}
