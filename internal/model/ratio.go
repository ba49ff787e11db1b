package model

import "math"

// RatioStatus is the outcome of one ratio evaluation.
type RatioStatus string

// Ratio statuses.
const (
	RatioComputed    RatioStatus = "computed"
	RatioMissingData RatioStatus = "missing_data"
	RatioUndefined   RatioStatus = "undefined"
	RatioPassthrough RatioStatus = "passthrough"
)

// Validation is the range or check outcome attached to a ratio.
type Validation string

// Validation outcomes.
const (
	ValidationNotChecked  Validation = "not_checked"
	ValidationInRange     Validation = "in_range"
	ValidationOutlier     Validation = "outlier"
	ValidationCheckPassed Validation = "check_passed"
	ValidationCheckFailed Validation = "check_failed"
)

// Verdict is the industry-band interpretation of a tier 4 ratio.
type Verdict string

// Verdicts.
const (
	VerdictBelow  Verdict = "below"
	VerdictWithin Verdict = "within"
	VerdictAbove  Verdict = "above"
)

// Bound is an inclusive numeric interval; nil ends are open.
type Bound struct {
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// Contains reports whether v lies inside the bound.
func (b Bound) Contains(v float64) bool {
	if b.Min != nil && v < *b.Min {
		return false
	}
	if b.Max != nil && v > *b.Max {
		return false
	}
	return true
}

// Classify places v below, within, or above the bound.
func (b Bound) Classify(v float64) Verdict {
	switch {
	case b.Min != nil && v < *b.Min:
		return VerdictBelow
	case b.Max != nil && v > *b.Max:
		return VerdictAbove
	default:
		return VerdictWithin
	}
}

// LineageEntry records the value used for one ratio input.
type LineageEntry struct {
	Input     string        `json:"input"`
	Optional  bool          `json:"optional,omitempty"`
	Defaulted bool          `json:"defaulted,omitempty"`
	Resolved  ResolvedValue `json:"resolved"`
}

// CrossCheck records the outcome of an alternative formula.
type CrossCheck struct {
	Formula      string   `json:"formula"`
	Value        *float64 `json:"value,omitempty"`
	Evaluated    bool     `json:"evaluated"`
	Agrees       bool     `json:"agrees"`
	RelativeDiff float64  `json:"relative_diff"`
	Reason       string   `json:"reason,omitempty"`
}

// RatioResult is the computed outcome of one ratio for one filing.
type RatioResult struct {
	FilingID      string         `json:"filing_id"`
	RatioID       string         `json:"ratio_id"`
	Name          string         `json:"name"`
	Tier          int            `json:"tier"`
	Category      string         `json:"category,omitempty"`
	Subcategory   string         `json:"subcategory,omitempty"`
	Unit          string         `json:"unit,omitempty"`
	Formula       string         `json:"formula,omitempty"`
	Status        RatioStatus    `json:"status"`
	Value         *float64       `json:"value,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	MissingInputs []string       `json:"missing_inputs,omitempty"`
	Lineage       []LineageEntry `json:"lineage,omitempty"`
	Validation    Validation     `json:"validation"`
	Range         *Bound         `json:"range,omitempty"`
	CrossCheck    *CrossCheck    `json:"cross_check,omitempty"`
	Band          *Bound         `json:"band,omitempty"`
	Verdict       Verdict        `json:"verdict,omitempty"`
	Completeness  float64        `json:"completeness"`
	Confidence    float64        `json:"confidence"`
}

// Rounded returns the value rounded half away from zero to the given places.
func (r RatioResult) Rounded(places int) (float64, bool) {
	if r.Value == nil {
		return 0, false
	}
	return Round(*r.Value, places), true
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
