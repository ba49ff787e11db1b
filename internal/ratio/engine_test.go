package ratio

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ratio-cli/internal/accessor"
	"github.com/sells-group/ratio-cli/internal/catalog"
	"github.com/sells-group/ratio-cli/internal/hierarchy"
	"github.com/sells-group/ratio-cli/internal/model"
	"github.com/sells-group/ratio-cli/internal/semantic"
)

type fact struct {
	code     model.StatementCode
	concept  string
	value    float64
	verified bool
}

type harness struct {
	cat    *catalog.Catalog
	forest *hierarchy.Forest
	filing Filing
}

func newHarness(t *testing.T, category string, ratios []string, facts []fact, checks ...model.FactCheck) *harness {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	byCode := map[model.StatementCode]*model.Statement{}
	var order []model.StatementCode
	for i, fc := range facts {
		st, ok := byCode[fc.code]
		if !ok {
			st = &model.Statement{Code: fc.code}
			byCode[fc.code] = st
			order = append(order, fc.code)
		}
		v := fc.value
		st.Facts = append(st.Facts, model.StructuralFact{
			ID:         fc.concept,
			Concept:    "us-gaap:" + fc.concept,
			ContextRef: "FY2024",
			Value:      &v,
			Order:      float64(i),
			Period:     model.Period{Type: "instant", End: "2024-12-31"},
		})
		if fc.verified {
			checks = append(checks, model.FactCheck{Kind: model.CheckFact, Concept: fc.concept, ContextRef: "FY2024", Passed: true})
		}
	}
	var stmts []model.Statement
	for _, c := range order {
		stmts = append(stmts, *byCode[c])
	}

	f := hierarchy.Build("f1", stmts)
	res := semantic.NewMapper(cat.Rules(), 50).Map(f, nil)
	acc := accessor.New(f, res.Assignments, model.VerificationReport{Score: 100, Checks: checks}, cat, accessor.DefaultPenalties())
	return &harness{
		cat:    cat,
		forest: f,
		filing: Filing{FilingID: "f1", Category: category, Ratios: ratios, Accessor: acc, Checks: checks},
	}
}

func (h *harness) run(t *testing.T) map[string]model.RatioResult {
	t.Helper()
	results, err := NewEngine(h.cat, DefaultOptions()).CalculateAll(context.Background(), h.filing)
	require.NoError(t, err)
	out := make(map[string]model.RatioResult, len(results))
	for _, r := range results {
		out[r.RatioID] = r
	}
	return out
}

func TestCurrentRatioExample(t *testing.T) {
	h := newHarness(t, "general", []string{"current_ratio", "quick_ratio", "cash_ratio"}, []fact{
		{model.StatementBalanceSheet, "AssetsCurrent", 5432.1, true},
		{model.StatementBalanceSheet, "LiabilitiesCurrent", 2984.7, true},
		{model.StatementBalanceSheet, "CashAndCashEquivalentsAtCarryingValue", 1000, false},
	})
	res := h.run(t)

	cr := res["current_ratio"]
	assert.Equal(t, model.RatioComputed, cr.Status)
	v, ok := cr.Rounded(2)
	require.True(t, ok)
	assert.Equal(t, 1.82, v)
	assert.Equal(t, 100.0, cr.Confidence)
	assert.Equal(t, 100.0, cr.Completeness)
	assert.Equal(t, model.ValidationInRange, cr.Validation)
	require.Len(t, cr.Lineage, 2)
	assert.Equal(t, "current_assets", cr.Lineage[0].Input)
	assert.Equal(t, "us-gaap:AssetsCurrent", cr.Lineage[0].Resolved.Concept)
	assert.True(t, cr.Lineage[0].Resolved.Verified)
	assert.NotEmpty(t, cr.Lineage[0].Resolved.PositionalID)

	quick := res["quick_ratio"]
	assert.Equal(t, model.RatioMissingData, quick.Status)
	assert.Equal(t, []string{"inventory"}, quick.MissingInputs)
	assert.Nil(t, quick.Value)
	assert.InDelta(t, 66.67, quick.Completeness, 0.01)

	cash := res["cash_ratio"]
	assert.Equal(t, model.RatioComputed, cash.Status)
	assert.Equal(t, 70.0, cash.Confidence)
}

func TestDivisionByZeroIsUndefined(t *testing.T) {
	h := newHarness(t, "general", []string{"current_ratio"}, []fact{
		{model.StatementBalanceSheet, "AssetsCurrent", 10, true},
		{model.StatementBalanceSheet, "LiabilitiesCurrent", 0, true},
	})
	cr := h.run(t)["current_ratio"]
	assert.Equal(t, model.RatioUndefined, cr.Status)
	assert.Nil(t, cr.Value)
	assert.Equal(t, "undefined result", cr.Reason)
	assert.Len(t, cr.Lineage, 2)
}

func TestOutlierIsFlaggedButKept(t *testing.T) {
	h := newHarness(t, "general", []string{"current_ratio"}, []fact{
		{model.StatementBalanceSheet, "AssetsCurrent", 100, true},
		{model.StatementBalanceSheet, "LiabilitiesCurrent", 1, true},
	})
	cr := h.run(t)["current_ratio"]
	assert.Equal(t, model.RatioComputed, cr.Status)
	assert.Equal(t, model.ValidationOutlier, cr.Validation)
	require.NotNil(t, cr.Value)
	assert.Equal(t, 100.0, *cr.Value)
}

func TestCrossCheck(t *testing.T) {
	agree := newHarness(t, "general", []string{"debt_ratio"}, []fact{
		{model.StatementBalanceSheet, "Liabilities", 600, true},
		{model.StatementBalanceSheet, "Assets", 1000, true},
		{model.StatementBalanceSheet, "StockholdersEquity", 400, true},
	}).run(t)["debt_ratio"]
	require.NotNil(t, agree.CrossCheck)
	assert.True(t, agree.CrossCheck.Evaluated)
	assert.True(t, agree.CrossCheck.Agrees)
	assert.Equal(t, 100.0, agree.Confidence)

	disagree := newHarness(t, "general", []string{"debt_ratio"}, []fact{
		{model.StatementBalanceSheet, "Liabilities", 600, true},
		{model.StatementBalanceSheet, "Assets", 1000, true},
		{model.StatementBalanceSheet, "StockholdersEquity", 300, true},
	}).run(t)["debt_ratio"]
	require.NotNil(t, disagree.CrossCheck)
	assert.False(t, disagree.CrossCheck.Agrees)
	assert.InDelta(t, 0.1429, disagree.CrossCheck.RelativeDiff, 0.001)
	assert.InDelta(t, 0.6, *disagree.Value, 1e-9)
	assert.InDelta(t, 0.7, *disagree.CrossCheck.Value, 1e-9)
	assert.Equal(t, 80.0, disagree.Confidence)

	missing := newHarness(t, "general", []string{"debt_ratio"}, []fact{
		{model.StatementBalanceSheet, "Liabilities", 600, true},
		{model.StatementBalanceSheet, "Assets", 1000, true},
	}).run(t)["debt_ratio"]
	require.NotNil(t, missing.CrossCheck)
	assert.False(t, missing.CrossCheck.Evaluated)
	assert.Contains(t, missing.CrossCheck.Reason, "total_equity")
	assert.Equal(t, 100.0, missing.Confidence)
}

func TestIndustryBandVerdict(t *testing.T) {
	h := newHarness(t, "banking", []string{"net_interest_margin", "loan_to_deposit"}, []fact{
		{model.StatementIncome, "InterestIncomeExpenseNet", 30, true},
		{model.StatementBalanceSheet, "Assets", 1000, true},
		{model.StatementBalanceSheet, "LoansAndLeasesReceivableNetReportedAmount", 950, true},
		{model.StatementBalanceSheet, "Deposits", 1000, true},
	})
	res := h.run(t)

	nim := res["net_interest_margin"]
	assert.Equal(t, TierIndustry, nim.Tier)
	assert.Equal(t, model.VerdictWithin, nim.Verdict)
	require.NotNil(t, nim.Band)

	ltd := res["loan_to_deposit"]
	assert.Equal(t, model.VerdictAbove, ltd.Verdict)
}

func TestOptionalInputsDefaultToZero(t *testing.T) {
	h := newHarness(t, "general", []string{"roic"}, []fact{
		{model.StatementIncome, "OperatingIncomeLoss", 200, true},
		{model.StatementIncome, "IncomeTaxExpenseBenefit", 50, true},
		{model.StatementIncome, "IncomeLossFromContinuingOperationsBeforeIncomeTaxesExtraordinaryItemsNoncontrollingInterest", 200, true},
		{model.StatementBalanceSheet, "StockholdersEquity", 900, true},
		{model.StatementBalanceSheet, "CashAndCashEquivalentsAtCarryingValue", 100, true},
	})
	roic := h.run(t)["roic"]
	assert.Equal(t, model.RatioComputed, roic.Status)
	assert.InDelta(t, 0.1875, *roic.Value, 1e-9)
	assert.InDelta(t, 83.33, roic.Completeness, 0.01)

	var defaulted []string
	for _, le := range roic.Lineage {
		if le.Defaulted {
			defaulted = append(defaulted, le.Input)
		}
	}
	assert.Equal(t, []string{"total_debt"}, defaulted)
}

func TestCalculationChecksPassThrough(t *testing.T) {
	check := model.FactCheck{Kind: model.CheckCalculation, Concept: "us-gaap:Assets", ContextRef: "FY-2024",
		Passed: false, Expected: 1000, Actual: 990, Difference: 10}
	h := newHarness(t, "general", nil, nil, check)
	res := h.run(t)
	require.Len(t, res, 1)
	r := res["check:Assets@FY2024"]
	assert.Equal(t, TierAggregation, r.Tier)
	assert.Equal(t, model.RatioPassthrough, r.Status)
	assert.Equal(t, model.ValidationCheckFailed, r.Validation)
	assert.Equal(t, 990.0, *r.Value)
	assert.Contains(t, r.Reason, "difference 10")
}

func TestCalculationChecksOnSameConceptGetDistinctIDs(t *testing.T) {
	h := newHarness(t, "general", nil, nil,
		model.FactCheck{Kind: model.CheckCalculation, Concept: "us-gaap:Assets", ContextRef: "FY2024", Passed: true, Actual: 1000},
		model.FactCheck{Kind: model.CheckCalculation, Concept: "us-gaap:Assets", ContextRef: "FY2024", Passed: false, Expected: 1000, Actual: 990, Difference: 10},
		model.FactCheck{ID: "calc-liabilities", Kind: model.CheckCalculation, Concept: "us-gaap:Liabilities", ContextRef: "FY2024", Passed: true, Actual: 400},
	)
	results, err := NewEngine(h.cat, DefaultOptions()).CalculateAll(context.Background(), h.filing)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "check:Assets@FY2024", results[0].RatioID)
	assert.Equal(t, model.ValidationCheckPassed, results[0].Validation)
	assert.Equal(t, "check:Assets@FY2024#2", results[1].RatioID)
	assert.Equal(t, model.ValidationCheckFailed, results[1].Validation)
	assert.Equal(t, "check:calc-liabilities", results[2].RatioID)
}

func TestMissingInputDoesNotAbortBatch(t *testing.T) {
	h := newHarness(t, "general", []string{"inventory_turnover", "current_ratio", "nonexistent"}, []fact{
		{model.StatementBalanceSheet, "AssetsCurrent", 10, true},
		{model.StatementBalanceSheet, "LiabilitiesCurrent", 5, true},
	})
	results, err := NewEngine(h.cat, DefaultOptions()).CalculateAll(context.Background(), h.filing)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, model.RatioMissingData, results[0].Status)
	assert.Equal(t, model.RatioComputed, results[1].Status)
}

func TestCalculateAllHonorsCancellation(t *testing.T) {
	h := newHarness(t, "general", []string{"current_ratio"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(h.cat, DefaultOptions()).CalculateAll(ctx, h.filing)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLineageRoundTrip(t *testing.T) {
	h := newHarness(t, "general", []string{"current_ratio", "ebitda_margin"}, []fact{
		{model.StatementBalanceSheet, "AssetsCurrent", 5432.1, true},
		{model.StatementBalanceSheet, "LiabilitiesCurrent", 2984.7, true},
		{model.StatementIncome, "Revenues", 1000, true},
		{model.StatementIncome, "OperatingIncomeLoss", 200, false},
		{model.StatementCashFlow, "DepreciationDepletionAndAmortization", 50, true},
	})
	results, err := NewEngine(h.cat, DefaultOptions()).CalculateAll(context.Background(), h.filing)
	require.NoError(t, err)

	ebitda := results[1]
	require.Equal(t, model.RatioComputed, ebitda.Status)
	assert.InDelta(t, 0.25, *ebitda.Value, 1e-9)
	assert.Equal(t, model.SourceDerived, ebitda.Lineage[0].Resolved.Source)
	assert.Equal(t, 55.0, ebitda.Confidence)

	data, err := json.Marshal(results)
	require.NoError(t, err)
	var decoded []model.RatioResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Empty(t, VerifyLineage(h.cat, h.forest, decoded))

	decoded[0].Lineage[0].Resolved.Value = 1
	decoded[1].Lineage[0].Resolved.Components[0].Value = 999
	mismatches := VerifyLineage(h.cat, h.forest, decoded)
	require.NotEmpty(t, mismatches)
	assert.Equal(t, "current_ratio", mismatches[0].RatioID)
	assert.Contains(t, mismatches[0].Detail, "lineage says 1")

	decoded[0].Lineage[0].Resolved.PositionalID = "BS-009-009-nowhere"
	mismatches = VerifyLineage(h.cat, h.forest, decoded)
	assert.Equal(t, "positional id not found", mismatches[0].Detail)
}
