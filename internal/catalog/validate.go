package catalog

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ratio-cli/internal/formula"
	"github.com/sells-group/ratio-cli/internal/semantic"
)

// validate checks the whole document, compiles rules and formulas, and
// builds the lookup indexes. Every problem is reported, not just the first.
func (c *Catalog) validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	c.components = make(map[string]*Component, len(c.doc.Components))
	for i := range c.doc.Components {
		comp := &c.doc.Components[i]
		switch {
		case comp.ID == "":
			add("component %d: missing id", i)
		case c.components[comp.ID] != nil:
			add("component %s: duplicate id", comp.ID)
		default:
			c.components[comp.ID] = comp
		}
	}
	known := func(id string) bool { return c.components[id] != nil }

	ruleIDs := make(map[string]bool, len(c.doc.Rules))
	c.rules = make([]semantic.Rule, 0, len(c.doc.Rules))
	for i, rs := range c.doc.Rules {
		name := rs.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i)
			add("rule %s: missing id", name)
		} else if ruleIDs[name] {
			add("rule %s: duplicate id", name)
		}
		ruleIDs[name] = true
		if rs.Concept == "" {
			add("rule %s: missing concept", name)
		}
		if !known(rs.Identity) {
			add("rule %s: unknown identity %q", name, rs.Identity)
		}
		if rs.Priority < 0 {
			add("rule %s: negative priority", name)
		}
		cond, err := semantic.NewCondition(rs.Condition.Type, rs.Condition.Value)
		if err != nil {
			add("rule %s: %v", name, err)
			continue
		}
		label := rs.Label
		if label == "" && known(rs.Identity) {
			label = c.components[rs.Identity].Label
		}
		c.rules = append(c.rules, semantic.Rule{
			ID:          rs.ID,
			Concept:     rs.Concept,
			Condition:   cond,
			Identity:    rs.Identity,
			Label:       label,
			Category:    rs.Category,
			Subcategory: rs.Subcategory,
			Priority:    rs.Priority,
			Active:      rs.Active == nil || *rs.Active,
		})
	}

	synKeys := make([]string, 0, len(c.doc.Synonyms))
	for id := range c.doc.Synonyms {
		synKeys = append(synKeys, id)
	}
	sort.Strings(synKeys)
	for _, id := range synKeys {
		syns := c.doc.Synonyms[id]
		if !known(id) {
			add("synonyms: unknown identity %q", id)
		}
		for _, s := range syns {
			switch {
			case !known(s):
				add("synonyms %s: unknown identity %q", id, s)
			case s == id:
				add("synonyms %s: lists itself", id)
			}
		}
	}

	c.derivations = make(map[string][]*Derivation)
	derivIDs := make(map[string]bool)
	for i := range c.doc.Derivations {
		d := &c.doc.Derivations[i]
		if d.ID == "" || derivIDs[d.ID] {
			add("derivation %q: missing or duplicate id", d.ID)
		}
		derivIDs[d.ID] = true
		if !known(d.Identity) {
			add("derivation %s: unknown identity %q", d.ID, d.Identity)
		}
		expr, err := formula.Compile(d.Formula)
		if err != nil {
			add("derivation %s: %v", d.ID, err)
			continue
		}
		if !expr.Additive() {
			add("derivation %s: only sums and differences are allowed", d.ID)
		}
		for _, v := range expr.Vars() {
			if !known(v) {
				add("derivation %s: unknown identity %q", d.ID, v)
			}
		}
		d.Expr = expr
		c.derivations[d.Identity] = append(c.derivations[d.Identity], d)
	}
	if cyc := c.derivationCycle(); cyc != "" {
		add("derivations: cycle through %s", cyc)
	}

	c.ratios = make(map[string]*Ratio, len(c.doc.Ratios))
	for i := range c.doc.Ratios {
		r := &c.doc.Ratios[i]
		if r.ID == "" {
			add("ratio %d: missing id", i)
			continue
		}
		if c.ratios[r.ID] != nil {
			add("ratio %s: duplicate id", r.ID)
			continue
		}
		c.ratios[r.ID] = r
		for _, msg := range c.checkRatio(r) {
			add("ratio %s: %s", r.ID, msg)
		}
		if r.Tier == 2 || r.Tier == 3 {
			c.standard = append(c.standard, r.ID)
		}
	}

	c.industries = make(map[string]*Industry, len(c.doc.Industries))
	extraRatio := make(map[string]bool)
	for i := range c.doc.Industries {
		ind := &c.doc.Industries[i]
		if ind.Category == "" || c.industries[ind.Category] != nil {
			add("industry %q: missing or duplicate category", ind.Category)
			continue
		}
		c.industries[ind.Category] = ind
		if ind.Detectable() && ind.MinStrong <= 0 && ind.MinTotal <= 0 {
			add("industry %s: signals without a threshold", ind.Category)
		}
		for _, id := range ind.SkipRatios {
			if r := c.ratios[id]; r == nil || r.Tier == 4 {
				add("industry %s: skip_ratios %q is not a standard ratio", ind.Category, id)
			}
		}
		for _, id := range ind.ExtraComponents {
			if !known(id) {
				add("industry %s: unknown component %q", ind.Category, id)
			}
		}
		for _, id := range ind.ExtraRatios {
			r := c.ratios[id]
			if r == nil || r.Tier != 4 {
				add("industry %s: extra_ratios %q is not a tier 4 ratio", ind.Category, id)
				continue
			}
			extraRatio[id] = true
			for _, in := range slices.Concat(r.Inputs, r.OptionalInputs) {
				if comp := c.components[in]; comp != nil && comp.Extra && !slices.Contains(ind.ExtraComponents, in) {
					add("industry %s: ratio %s needs component %q that is not active", ind.Category, id, in)
				}
			}
		}
	}
	if c.industries[c.doc.DefaultIndustry] == nil {
		add("default_industry %q is not defined", c.doc.DefaultIndustry)
	}
	for i := range c.doc.Ratios {
		r := &c.doc.Ratios[i]
		if r.Tier == 4 && !extraRatio[r.ID] {
			add("ratio %s: tier 4 but no industry lists it", r.ID)
		}
		for cat := range r.Bands {
			if c.industries[cat] == nil {
				add("ratio %s: band for unknown industry %q", r.ID, cat)
			}
		}
	}
	for _, s := range c.doc.NegativeSignals {
		if strings.TrimSpace(s) == "" {
			add("negative_signals: empty entry")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("catalog: invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Catalog) checkRatio(r *Ratio) []string {
	var errs []string
	if r.Tier < 2 || r.Tier > 4 {
		errs = append(errs, fmt.Sprintf("tier %d outside 2-4", r.Tier))
	}
	if len(r.Inputs) == 0 {
		errs = append(errs, "no declared inputs")
	}
	declared := make(map[string]bool)
	for _, in := range r.Inputs {
		if declared[in] {
			errs = append(errs, fmt.Sprintf("input %q listed twice", in))
		}
		declared[in] = true
	}
	for _, in := range r.OptionalInputs {
		if declared[in] {
			errs = append(errs, fmt.Sprintf("input %q listed twice", in))
		}
		declared[in] = true
	}
	for _, in := range slices.Concat(r.Inputs, r.OptionalInputs) {
		if c.components[in] == nil {
			errs = append(errs, fmt.Sprintf("unknown input %q", in))
		}
	}

	expr, err := formula.Compile(r.Formula)
	if err != nil {
		errs = append(errs, err.Error())
	} else {
		r.Expr = expr
		for _, v := range expr.Vars() {
			if !declared[v] {
				errs = append(errs, fmt.Sprintf("formula reads undeclared input %q", v))
			}
		}
	}

	if r.Range != nil && r.Range.Min != nil && r.Range.Max != nil && *r.Range.Min > *r.Range.Max {
		errs = append(errs, "range min exceeds max")
	}
	for cat, b := range r.Bands {
		if b.Min != nil && b.Max != nil && *b.Min > *b.Max {
			errs = append(errs, fmt.Sprintf("band %s min exceeds max", cat))
		}
	}

	if alt := r.Alternative; alt != nil {
		if len(alt.Inputs) == 0 {
			alt.Inputs = slices.Concat(r.Inputs, r.OptionalInputs)
		}
		altDeclared := make(map[string]bool, len(alt.Inputs))
		for _, in := range alt.Inputs {
			altDeclared[in] = true
			if c.components[in] == nil {
				errs = append(errs, fmt.Sprintf("alternative: unknown input %q", in))
			}
		}
		altExpr, err := formula.Compile(alt.Formula)
		if err != nil {
			errs = append(errs, "alternative: "+err.Error())
		} else {
			alt.Expr = altExpr
			for _, v := range altExpr.Vars() {
				if !altDeclared[v] {
					errs = append(errs, fmt.Sprintf("alternative reads undeclared input %q", v))
				}
			}
		}
	}
	return errs
}

// derivationCycle returns a description of the first derivation cycle, or "".
func (c *Catalog) derivationCycle() string {
	const (
		grey = iota + 1
		black
	)
	color := make(map[string]int)
	var visit func(id string, path []string) string
	visit = func(id string, path []string) string {
		switch color[id] {
		case grey:
			return strings.Join(append(path, id), " -> ")
		case black:
			return ""
		}
		color[id] = grey
		for _, d := range c.derivations[id] {
			if d.Expr == nil {
				continue
			}
			for _, v := range d.Expr.Vars() {
				if cyc := visit(v, append(path, id)); cyc != "" {
					return cyc
				}
			}
		}
		color[id] = black
		return ""
	}
	for i := range c.doc.Derivations {
		if cyc := visit(c.doc.Derivations[i].Identity, nil); cyc != "" {
			return cyc
		}
	}
	return ""
}
