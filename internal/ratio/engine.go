// Package ratio evaluates the active ratio set of a filing across the four
// tiers and records the lineage of every input.
package ratio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/ratio-cli/internal/accessor"
	"github.com/sells-group/ratio-cli/internal/catalog"
	"github.com/sells-group/ratio-cli/internal/formula"
	"github.com/sells-group/ratio-cli/internal/hierarchy"
	"github.com/sells-group/ratio-cli/internal/model"
)

// Tiers.
const (
	TierAggregation = 1
	TierStandard    = 2
	TierDetailed    = 3
	TierIndustry    = 4
)

// Options tune cross-checking and input selection.
type Options struct {
	CrossCheckTolerance float64
	CrossCheckPenalty   float64
	RequireVerified     bool
}

// DefaultOptions returns the standard engine options.
func DefaultOptions() Options {
	return Options{CrossCheckTolerance: 0.01, CrossCheckPenalty: 20}
}

// Engine computes ratios from a catalog. It holds no per-filing state and
// is safe for concurrent use.
type Engine struct {
	cat  *catalog.Catalog
	opts Options
}

// NewEngine creates an Engine.
func NewEngine(cat *catalog.Catalog, opts Options) *Engine {
	return &Engine{cat: cat, opts: opts}
}

// Filing is everything the engine needs about one filing.
type Filing struct {
	FilingID  string
	Category  string
	PeriodEnd string
	Ratios    []string
	Accessor  *accessor.Accessor
	Checks    []model.FactCheck
}

// CalculateAll returns the tier 1 pass-through checks followed by every
// ratio in f.Ratios. A ratio that cannot be computed is recorded with its
// reason; only cancellation aborts the batch.
func (e *Engine) CalculateAll(ctx context.Context, f Filing) ([]model.RatioResult, error) {
	log := zap.L().With(zap.String("filing_id", f.FilingID))
	results := e.passthrough(f)

	var computed, missing, undefined int
	for _, id := range f.Ratios {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "ratio: calculate")
		}
		def, ok := e.cat.Ratio(id)
		if !ok {
			log.Warn("ratio: unknown ratio id", zap.String("ratio_id", id))
			continue
		}
		r := e.Calculate(f, def)
		switch r.Status {
		case model.RatioComputed:
			computed++
		case model.RatioMissingData:
			missing++
			level := zapcore.DebugLevel
			if def.Tier == TierStandard {
				level = zapcore.InfoLevel
			}
			log.Log(level, "ratio: missing data",
				zap.String("ratio_id", id),
				zap.Strings("missing", r.MissingInputs),
			)
		case model.RatioUndefined:
			undefined++
		}
		results = append(results, r)
	}

	log.Info("ratio: calculated",
		zap.Int("computed", computed),
		zap.Int("missing_data", missing),
		zap.Int("undefined", undefined),
		zap.Int("passthrough", len(results)-computed-missing-undefined),
	)
	return results, nil
}

func (e *Engine) passthrough(f Filing) []model.RatioResult {
	var out []model.RatioResult
	seen := make(map[string]int)
	for _, c := range f.Checks {
		if c.Kind != model.CheckCalculation {
			continue
		}
		actual := c.Actual
		r := model.RatioResult{
			FilingID:     f.FilingID,
			RatioID:      checkRatioID(c, seen),
			Name:         "Calculation check " + model.LocalName(c.Concept),
			Tier:         TierAggregation,
			Category:     "verification",
			Status:       model.RatioPassthrough,
			Value:        &actual,
			Reason:       c.Message,
			Completeness: 100,
			Confidence:   accessor.MaxConfidence,
			Validation:   model.ValidationCheckPassed,
		}
		if !c.Passed {
			r.Validation = model.ValidationCheckFailed
			r.Reason = strings.TrimSpace(fmt.Sprintf("expected %g, actual %g, difference %g. %s", c.Expected, c.Actual, c.Difference, c.Message))
		}
		out = append(out, r)
	}
	return out
}

// checkRatioID keys a pass-through result on the check's own ID when present,
// otherwise on concept and context. Repeats get a "#n" ordinal.
func checkRatioID(c model.FactCheck, seen map[string]int) string {
	id := "check:" + c.ID
	if c.ID == "" {
		id = "check:" + model.LocalName(c.Concept) + "@" + hierarchy.NormalizeContextRef(c.ContextRef)
	}
	seen[id]++
	if n := seen[id]; n > 1 {
		id = fmt.Sprintf("%s#%d", id, n)
	}
	return id
}

// Calculate evaluates one ratio definition.
func (e *Engine) Calculate(f Filing, def *catalog.Ratio) model.RatioResult {
	r := model.RatioResult{
		FilingID:    f.FilingID,
		RatioID:     def.ID,
		Name:        def.Name,
		Tier:        def.Tier,
		Category:    def.Category,
		Subcategory: def.Subcategory,
		Unit:        def.Unit,
		Formula:     def.Formula,
		Validation:  model.ValidationNotChecked,
	}
	query := func(id string) accessor.Query {
		return accessor.Query{Identity: id, PeriodEnd: f.PeriodEnd, RequireVerified: e.opts.RequireVerified}
	}

	values := make(map[string]float64, len(def.Inputs)+len(def.OptionalInputs))
	confidence := float64(accessor.MaxConfidence)
	for _, in := range def.Inputs {
		rv, ok := f.Accessor.Get(query(in))
		if !ok {
			r.MissingInputs = append(r.MissingInputs, in)
			continue
		}
		values[in] = rv.Value
		confidence = min(confidence, rv.Confidence)
		r.Lineage = append(r.Lineage, model.LineageEntry{Input: in, Resolved: rv})
	}

	total := len(def.Inputs) + len(def.OptionalInputs)
	resolved := len(def.Inputs) - len(r.MissingInputs)
	if len(r.MissingInputs) > 0 {
		r.Status = model.RatioMissingData
		r.Reason = "missing inputs: " + strings.Join(r.MissingInputs, ", ")
		r.Completeness = percent(resolved, total)
		r.Confidence = 0
		return r
	}

	for _, in := range def.OptionalInputs {
		rv, ok := f.Accessor.Get(query(in))
		if !ok {
			values[in] = 0
			r.Lineage = append(r.Lineage, model.LineageEntry{
				Input:     in,
				Optional:  true,
				Defaulted: true,
				Resolved:  model.ResolvedValue{Identity: in},
			})
			continue
		}
		resolved++
		values[in] = rv.Value
		confidence = min(confidence, rv.Confidence)
		r.Lineage = append(r.Lineage, model.LineageEntry{Input: in, Optional: true, Resolved: rv})
	}
	r.Completeness = percent(resolved, total)

	val, err := def.Expr.Eval(values)
	if err != nil {
		r.Status = model.RatioUndefined
		r.Reason = "undefined result"
		if !errors.Is(err, formula.ErrUndefined) {
			r.Reason = err.Error()
		}
		r.Confidence = clampConfidence(confidence)
		return r
	}
	r.Status = model.RatioComputed
	r.Value = &val

	if def.Range != nil {
		r.Range = def.Range
		r.Validation = model.ValidationInRange
		if !def.Range.Contains(val) {
			r.Validation = model.ValidationOutlier
		}
	}

	if def.Alternative != nil {
		r.CrossCheck = e.crossCheck(f, def, val, values, query)
		if r.CrossCheck.Evaluated && !r.CrossCheck.Agrees {
			confidence -= e.opts.CrossCheckPenalty
		}
	}

	if def.Tier == TierIndustry {
		if band, ok := def.Bands[f.Category]; ok {
			b := band
			r.Band = &b
			r.Verdict = b.Classify(val)
		}
	}

	r.Confidence = clampConfidence(confidence)
	return r
}

func (e *Engine) crossCheck(f Filing, def *catalog.Ratio, primary float64, known map[string]float64, query func(string) accessor.Query) *model.CrossCheck {
	alt := def.Alternative
	cc := &model.CrossCheck{Formula: alt.Formula}
	values := make(map[string]float64, len(alt.Inputs))
	var missing []string
	for _, in := range alt.Inputs {
		if v, ok := known[in]; ok {
			values[in] = v
			continue
		}
		rv, ok := f.Accessor.Get(query(in))
		if !ok {
			missing = append(missing, in)
			continue
		}
		values[in] = rv.Value
	}
	if len(missing) > 0 {
		cc.Reason = "missing inputs: " + strings.Join(missing, ", ")
		return cc
	}
	v, err := alt.Expr.Eval(values)
	if err != nil {
		cc.Reason = "undefined result"
		return cc
	}
	cc.Evaluated = true
	cc.Value = &v
	cc.RelativeDiff = relativeDiff(primary, v)
	cc.Agrees = cc.RelativeDiff <= e.opts.CrossCheckTolerance
	return cc
}

func relativeDiff(a, b float64) float64 {
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return 0
	}
	return math.Abs(a-b) / scale
}

func percent(n, d int) float64 {
	if d == 0 {
		return 100
	}
	return float64(n) / float64(d) * 100
}

func clampConfidence(v float64) float64 {
	return max(0, min(accessor.MaxConfidence, v))
}
