// Package industry classifies filings by concept fingerprints and selects
// the component and ratio sets that apply to each category.
package industry

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/ratio-cli/internal/catalog"
	"github.com/sells-group/ratio-cli/internal/model"
)

// Match is the fingerprint evaluation of one category.
type Match struct {
	Category  string   `json:"category"`
	Strong    []string `json:"strong,omitempty"`
	Moderate  []string `json:"moderate,omitempty"`
	Negative  []string `json:"negative,omitempty"`
	Score     int      `json:"score"`
	Qualified bool     `json:"qualified"`
}

// Detection is the advisory classification of a filing.
type Detection struct {
	Category string  `json:"category"`
	Score    int     `json:"score"`
	Matches  []Match `json:"matches"`
}

// Signals returns the matched signal names per category.
func (d Detection) Signals() map[string][]string {
	out := make(map[string][]string)
	for _, m := range d.Matches {
		sig := append(append([]string(nil), m.Strong...), m.Moderate...)
		if len(sig) > 0 {
			out[m.Category] = sig
		}
	}
	return out
}

// Detector classifies filings against the catalog's industry fingerprints.
type Detector struct {
	cat *catalog.Catalog
}

// NewDetector creates a Detector.
func NewDetector(cat *catalog.Catalog) *Detector {
	return &Detector{cat: cat}
}

// Detect classifies a filing from its distinct local concept names. Strong
// signals weigh 2, moderate 1, and each general-industry signal named exactly
// subtracts 1. The highest-scoring qualifying category wins; ties go to the
// category with the lower priority number. With no qualifier the default
// category is returned.
func (d *Detector) Detect(names []string) Detection {
	negatives := exact(names, d.cat.NegativeSignals())

	det := Detection{Category: d.cat.DefaultIndustry()}
	best := -1
	for _, ind := range d.cat.Industries() {
		if !ind.Detectable() {
			continue
		}
		m := Match{
			Category: ind.Category,
			Strong:   present(names, ind.StrongSignals),
			Moderate: present(names, ind.ModerateSignals),
			Negative: negatives,
		}
		strong, total := len(m.Strong), len(m.Strong)+len(m.Moderate)
		m.Score = max(0, 2*strong+len(m.Moderate)-len(negatives))
		m.Qualified = (ind.MinStrong > 0 && strong >= ind.MinStrong) ||
			(ind.MinTotal > 0 && total >= ind.MinTotal)
		det.Matches = append(det.Matches, m)

		if m.Qualified && m.Score > best {
			best = m.Score
			det.Category = ind.Category
			det.Score = m.Score
		}
	}

	zap.L().Debug("industry: detected",
		zap.String("category", det.Category),
		zap.Int("score", det.Score),
		zap.Int("negative_signals", len(negatives)),
	)
	return det
}

// Classification converts a detection into the published form.
func (d *Detector) Classification(det Detection) model.IndustryClassification {
	out := model.IndustryClassification{
		Category: det.Category,
		Score:    det.Score,
		Signals:  det.Signals(),
	}
	if ind, ok := d.cat.Industry(det.Category); ok {
		out.DisplayName = ind.DisplayName
	}
	return out
}

// present returns the signals contained in at least one name.
func present(names, signals []string) []string {
	var hits []string
	for _, s := range signals {
		for _, n := range names {
			if strings.Contains(n, s) {
				hits = append(hits, s)
				break
			}
		}
	}
	return hits
}

// exact returns the signals that equal one of the names.
func exact(names, signals []string) []string {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	var hits []string
	for _, s := range signals {
		if set[s] {
			hits = append(hits, s)
		}
	}
	return hits
}
