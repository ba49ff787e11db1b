package model

// StructuralConcept is one positioned node of a statement in a filing.
// Parent and Children index into the owning forest's node slice.
type StructuralConcept struct {
	FilingID           string            `json:"filing_id"`
	PositionalID       string            `json:"positional_id"`
	SourceID           string            `json:"source_id"`
	Statement          StatementCode     `json:"statement"`
	Concept            string            `json:"concept"`
	LocalName          string            `json:"local_name"`
	ContextRef         string            `json:"context_ref"`
	Depth              int               `json:"depth"`
	SiblingIndex       int               `json:"sibling_index"`
	ParentPositionalID string            `json:"parent_positional_id,omitempty"`
	Value              *float64          `json:"value"`
	Period             Period            `json:"period"`
	Dimensions         map[string]string `json:"dimensions,omitempty"`
	Abstract           bool              `json:"abstract,omitempty"`
	Label              string            `json:"label,omitempty"`

	Parent   int   `json:"-"`
	Children []int `json:"-"`
}

// HasDimensions reports whether the node is a dimensional breakdown.
func (c *StructuralConcept) HasDimensions() bool {
	return len(c.Dimensions) > 0
}

// SemanticAssignment is the canonical identity a mapping rule gave a node.
type SemanticAssignment struct {
	Identity    string  `json:"identity"`
	Label       string  `json:"label"`
	Category    string  `json:"category,omitempty"`
	Subcategory string  `json:"subcategory,omitempty"`
	RuleID      string  `json:"rule_id"`
	Score       float64 `json:"score"`
}

// MappedConcept pairs a structural node with its semantic resolution.
// DisplayLabel is always set; Semantic is nil for unassigned nodes.
type MappedConcept struct {
	StructuralConcept
	Semantic     *SemanticAssignment `json:"semantic,omitempty"`
	DisplayLabel string              `json:"display_label"`
}

// ResolutionSource records which accessor strategy produced a value.
type ResolutionSource string

// Resolution sources.
const (
	SourcePrimary ResolutionSource = "primary"
	SourceSynonym ResolutionSource = "synonym"
	SourceDerived ResolutionSource = "derived"
)

// ResolvedValue is the authoritative value of one semantic identity for a
// filing and period.
type ResolvedValue struct {
	Identity     string           `json:"identity"`
	PositionalID string           `json:"positional_id,omitempty"`
	Concept      string           `json:"concept,omitempty"`
	ContextRef   string           `json:"context_ref,omitempty"`
	PeriodEnd    string           `json:"period_end,omitempty"`
	Value        float64          `json:"value"`
	Verified     bool             `json:"verified"`
	Confidence   float64          `json:"confidence"`
	Source       ResolutionSource `json:"source"`
	Via          string           `json:"via,omitempty"`
	Components   []ResolvedValue  `json:"components,omitempty"`
}

// ComponentStatus distinguishes absent components from unresolved ones.
type ComponentStatus string

// Component statuses.
const (
	ComponentMatched       ComponentStatus = "matched"
	ComponentUnmatched     ComponentStatus = "unmatched"
	ComponentNotApplicable ComponentStatus = "not_applicable"
)

// ComponentState is the display status of one active component.
type ComponentState struct {
	Identity   string          `json:"identity"`
	Label      string          `json:"label"`
	Status     ComponentStatus `json:"status"`
	Candidates int             `json:"candidates"`
	Assigned   int             `json:"assigned"`
}
