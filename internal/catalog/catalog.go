// Package catalog loads the static mapping rules, ratio definitions and
// industry models. A Catalog is validated once at load and is read-only
// afterwards; share it by pointer across filings.
package catalog

import (
	"bytes"
	_ "embed"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/ratio-cli/internal/formula"
	"github.com/sells-group/ratio-cli/internal/model"
	"github.com/sells-group/ratio-cli/internal/semantic"
)

//go:embed default.yaml
var defaultYAML []byte

// Component is a semantic identity ratio formulas can reference.
type Component struct {
	ID       string `yaml:"id"`
	Label    string `yaml:"label"`
	Category string `yaml:"category"`
	// Extra components are only active for industries that list them.
	Extra bool `yaml:"extra"`
}

// ConditionSpec is the configured form of a rule condition.
type ConditionSpec struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// RuleSpec is the configured form of a semantic mapping rule.
type RuleSpec struct {
	ID          string        `yaml:"id"`
	Concept     string        `yaml:"concept"`
	Condition   ConditionSpec `yaml:"condition"`
	Identity    string        `yaml:"identity"`
	Label       string        `yaml:"label"`
	Category    string        `yaml:"category"`
	Subcategory string        `yaml:"subcategory"`
	Priority    int           `yaml:"priority"`
	Active      *bool         `yaml:"active"`
}

// Derivation expresses an identity as a sum or difference of others.
type Derivation struct {
	ID       string `yaml:"id"`
	Identity string `yaml:"identity"`
	Formula  string `yaml:"formula"`

	Expr *formula.Expr `yaml:"-"`
}

// Alternative is an independently derived formula used to cross-check a ratio.
type Alternative struct {
	Formula string   `yaml:"formula"`
	Inputs  []string `yaml:"inputs"`

	Expr *formula.Expr `yaml:"-"`
}

// Ratio is one ratio definition.
type Ratio struct {
	ID             string                 `yaml:"id"`
	Name           string                 `yaml:"name"`
	Tier           int                    `yaml:"tier"`
	Category       string                 `yaml:"category"`
	Subcategory    string                 `yaml:"subcategory"`
	Unit           string                 `yaml:"unit"`
	Formula        string                 `yaml:"formula"`
	Inputs         []string               `yaml:"inputs"`
	OptionalInputs []string               `yaml:"optional_inputs"`
	Range          *model.Bound           `yaml:"range"`
	Alternative    *Alternative           `yaml:"alternative"`
	Bands          map[string]model.Bound `yaml:"bands"`

	Expr *formula.Expr `yaml:"-"`
}

// Industry is an industry model: its fingerprint signals and how it
// changes the active component and ratio sets.
type Industry struct {
	Category        string   `yaml:"category"`
	DisplayName     string   `yaml:"display_name"`
	Priority        int      `yaml:"priority"`
	MinStrong       int      `yaml:"min_strong"`
	MinTotal        int      `yaml:"min_total"`
	StrongSignals   []string `yaml:"strong_signals"`
	ModerateSignals []string `yaml:"moderate_signals"`
	SkipRatios      []string `yaml:"skip_ratios"`
	ExtraComponents []string `yaml:"extra_components"`
	ExtraRatios     []string `yaml:"extra_ratios"`
}

// Detectable reports whether the industry has a fingerprint.
func (i *Industry) Detectable() bool {
	return len(i.StrongSignals)+len(i.ModerateSignals) > 0
}

type document struct {
	DefaultIndustry string              `yaml:"default_industry"`
	Components      []Component         `yaml:"components"`
	Rules           []RuleSpec          `yaml:"rules"`
	Synonyms        map[string][]string `yaml:"synonyms"`
	Derivations     []Derivation        `yaml:"derivations"`
	Ratios          []Ratio             `yaml:"ratios"`
	Industries      []Industry          `yaml:"industries"`
	NegativeSignals []string            `yaml:"negative_signals"`
}

// Catalog is the validated, immutable static configuration.
type Catalog struct {
	doc   document
	rules []semantic.Rule

	components  map[string]*Component
	ratios      map[string]*Ratio
	industries  map[string]*Industry
	derivations map[string][]*Derivation
	standard    []string
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultYAML)
}

// Load reads a catalog file, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog. Unknown keys are rejected.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "catalog: decode")
	}
	c := &Catalog{doc: doc}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// DefaultIndustry is the category used when no fingerprint qualifies.
func (c *Catalog) DefaultIndustry() string { return c.doc.DefaultIndustry }

// Components returns every component in declaration order.
func (c *Catalog) Components() []Component { return c.doc.Components }

// Component looks up a component by identity.
func (c *Catalog) Component(id string) (*Component, bool) {
	comp, ok := c.components[id]
	return comp, ok
}

// BaseComponents returns the identities active for every industry.
func (c *Catalog) BaseComponents() []string {
	var ids []string
	for _, comp := range c.doc.Components {
		if !comp.Extra {
			ids = append(ids, comp.ID)
		}
	}
	return ids
}

// Rules returns the compiled mapping rules in declaration order.
func (c *Catalog) Rules() []semantic.Rule { return c.rules }

// Synonyms returns the ranked synonym identities for id.
func (c *Catalog) Synonyms(id string) []string { return c.doc.Synonyms[id] }

// Derivations returns the derivation rules producing id.
func (c *Catalog) Derivations(id string) []*Derivation { return c.derivations[id] }

// Ratio looks up a ratio definition.
func (c *Catalog) Ratio(id string) (*Ratio, bool) {
	r, ok := c.ratios[id]
	return r, ok
}

// Ratios returns every ratio definition in declaration order.
func (c *Catalog) Ratios() []Ratio { return c.doc.Ratios }

// StandardRatios returns the tier 2 and tier 3 ratio ids in declaration order.
func (c *Catalog) StandardRatios() []string { return c.standard }

// Industry looks up an industry model.
func (c *Catalog) Industry(category string) (*Industry, bool) {
	ind, ok := c.industries[category]
	return ind, ok
}

// Industries returns every industry sorted by tie-break priority.
func (c *Catalog) Industries() []*Industry {
	out := make([]*Industry, 0, len(c.industries))
	for _, ind := range c.industries {
		out = append(out, ind)
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Priority != out[b].Priority {
			return out[a].Priority < out[b].Priority
		}
		return out[a].Category < out[b].Category
	})
	return out
}

// NegativeSignals returns the concept fragments typical of general
// industrial filers.
func (c *Catalog) NegativeSignals() []string { return c.doc.NegativeSignals }
