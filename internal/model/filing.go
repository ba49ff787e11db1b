package model

import "time"

// Check kinds reported by the verification subsystem.
const (
	CheckCalculation = "calculation"
	CheckFact        = "fact"
)

// FactCheck is one verification outcome for a concept in a context.
type FactCheck struct {
	ID         string  `json:"id,omitempty"`
	Kind       string  `json:"kind"`
	Concept    string  `json:"concept"`
	ContextRef string  `json:"context_ref"`
	Passed     bool    `json:"passed"`
	Expected   float64 `json:"expected"`
	Actual     float64 `json:"actual"`
	Difference float64 `json:"difference"`
	Message    string  `json:"message,omitempty"`
}

// VerificationReport is the filing-level verification summary.
type VerificationReport struct {
	Score  float64     `json:"score"`
	Checks []FactCheck `json:"checks"`
}

// FilingInput is everything the engine consumes for one filing.
type FilingInput struct {
	FilingID     string             `json:"filing_id"`
	Company      string             `json:"company,omitempty"`
	CIK          string             `json:"cik,omitempty"`
	FormType     string             `json:"form_type,omitempty"`
	PeriodEnd    string             `json:"period_end,omitempty"`
	Statements   []Statement        `json:"statements"`
	Verification VerificationReport `json:"verification"`
}

// IndustryClassification is the advisory industry detection outcome.
type IndustryClassification struct {
	Category    string              `json:"category"`
	DisplayName string              `json:"display_name"`
	Score       int                 `json:"score"`
	Signals     map[string][]string `json:"signals,omitempty"`
}

// StructuralIssue is a recovered inconsistency in upstream structure.
type StructuralIssue struct {
	Kind      string        `json:"kind"`
	Statement StatementCode `json:"statement"`
	SourceID  string        `json:"source_id,omitempty"`
	Detail    string        `json:"detail"`
}

// MappingAmbiguity flags a node matched by several rules at one priority.
type MappingAmbiguity struct {
	PositionalID string   `json:"positional_id"`
	Concept      string   `json:"concept"`
	Priority     int      `json:"priority"`
	RuleIDs      []string `json:"rule_ids"`
	Chosen       string   `json:"chosen"`
}

// FilingResult is the full output of processing one filing.
type FilingResult struct {
	RunID             string                 `json:"run_id"`
	FilingID          string                 `json:"filing_id"`
	Company           string                 `json:"company,omitempty"`
	VerificationScore float64                `json:"verification_score"`
	Industry          IndustryClassification `json:"industry"`
	Concepts          []MappedConcept        `json:"concepts"`
	Components        []ComponentState       `json:"components"`
	Ratios            []RatioResult          `json:"ratios"`
	Issues            []StructuralIssue      `json:"issues,omitempty"`
	Ambiguities       []MappingAmbiguity     `json:"ambiguities,omitempty"`
	ProcessedAt       time.Time              `json:"processed_at"`
}

// Ratio returns the result for id, if present.
func (r *FilingResult) Ratio(id string) (RatioResult, bool) {
	for _, rr := range r.Ratios {
		if rr.RatioID == id {
			return rr, true
		}
	}
	return RatioResult{}, false
}

// Component returns the component state for identity, if present.
func (r *FilingResult) Component(identity string) (ComponentState, bool) {
	for _, c := range r.Components {
		if c.Identity == identity {
			return c, true
		}
	}
	return ComponentState{}, false
}
