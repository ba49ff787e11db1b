package accessor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ratio-cli/internal/catalog"
	"github.com/sells-group/ratio-cli/internal/hierarchy"
	"github.com/sells-group/ratio-cli/internal/model"
	"github.com/sells-group/ratio-cli/internal/semantic"
)

const testCatalog = `
default_industry: general
components:
  - {id: current_assets}
  - {id: total_equity}
  - {id: equity_including_nci}
  - {id: long_term_debt}
  - {id: short_term_debt}
  - {id: total_debt}
  - {id: loop_a}
  - {id: loop_b}
rules:
  - {id: ca, concept: AssetsCurrent, condition: {type: unconditional}, identity: current_assets, priority: 1}
  - {id: ca_other, concept: OtherCurrentAssetsTotal, condition: {type: unconditional}, identity: current_assets, priority: 1}
  - {id: eq_nci, concept: StockholdersEquityIncludingPortionAttributableToNoncontrollingInterest, condition: {type: unconditional}, identity: equity_including_nci, priority: 1}
  - {id: ltd, concept: LongTermDebtNoncurrent, condition: {type: unconditional}, identity: long_term_debt, priority: 1}
  - {id: std, concept: ShortTermBorrowings, condition: {type: unconditional}, identity: short_term_debt, priority: 1}
synonyms:
  total_equity: [equity_including_nci]
derivations:
  - {id: debt_parts, identity: total_debt, formula: long_term_debt + short_term_debt}
industries:
  - {category: general}
`

func ptr(v float64) *float64 { return &v }

type fixture struct {
	facts  []model.StructuralFact
	checks []model.FactCheck
}

func (fx fixture) accessor(t *testing.T) *Accessor {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)
	f := hierarchy.Build("f1", []model.Statement{{Code: model.StatementBalanceSheet, Facts: fx.facts}})
	res := semantic.NewMapper(cat.Rules(), 50).Map(f, nil)
	return New(f, res.Assignments, model.VerificationReport{Score: 100, Checks: fx.checks}, cat, DefaultPenalties())
}

func pass(concept, ctx string) model.FactCheck {
	return model.FactCheck{Kind: model.CheckFact, Concept: concept, ContextRef: ctx, Passed: true}
}

func TestGetVerifiedBeatsUnverified(t *testing.T) {
	a := fixture{
		facts: []model.StructuralFact{
			{ID: "1", Concept: "us-gaap:AssetsCurrent", ContextRef: "c1", Order: 1, Value: ptr(100), Period: model.Period{End: "2024-12-31"}},
			{ID: "2", Concept: "us-gaap:OtherCurrentAssetsTotal", ContextRef: "c1", Order: 2, Value: ptr(90), Period: model.Period{End: "2024-12-31"}},
		},
		checks: []model.FactCheck{pass("us-gaap:OtherCurrentAssetsTotal", "c1")},
	}.accessor(t)

	rv, ok := a.Get(Query{Identity: "current_assets"})
	require.True(t, ok)
	assert.Equal(t, 90.0, rv.Value)
	assert.True(t, rv.Verified)
	assert.Equal(t, 100.0, rv.Confidence)
	assert.Equal(t, model.SourcePrimary, rv.Source)
	assert.Equal(t, "BS-000-002-c1", rv.PositionalID)
}

func TestGetPrefersLatestPeriodThenPositionalOrder(t *testing.T) {
	a := fixture{facts: []model.StructuralFact{
		{ID: "1", Concept: "AssetsCurrent", ContextRef: "prior", Order: 1, Value: ptr(80), Period: model.Period{End: "2023-12-31"}},
		{ID: "2", Concept: "AssetsCurrent", ContextRef: "current", Order: 2, Value: ptr(100), Period: model.Period{End: "2024-12-31"}},
		{ID: "3", Concept: "OtherCurrentAssetsTotal", ContextRef: "current", Order: 3, Value: ptr(101), Period: model.Period{End: "2024-12-31"}},
	}}.accessor(t)

	rv, ok := a.Get(Query{Identity: "current_assets"})
	require.True(t, ok)
	assert.Equal(t, 100.0, rv.Value)
	assert.Equal(t, 70.0, rv.Confidence)
	assert.False(t, rv.Verified)

	rv, ok = a.Get(Query{Identity: "current_assets", PeriodEnd: "2023-12-31"})
	require.True(t, ok)
	assert.Equal(t, 80.0, rv.Value)

	assert.Len(t, a.Candidates(Query{Identity: "current_assets"}), 3)
}

func TestGetRequireVerified(t *testing.T) {
	a := fixture{facts: []model.StructuralFact{
		{ID: "1", Concept: "AssetsCurrent", ContextRef: "c1", Value: ptr(100)},
	}}.accessor(t)
	_, ok := a.Get(Query{Identity: "current_assets", RequireVerified: true})
	assert.False(t, ok)
	_, ok = a.Get(Query{Identity: "current_assets"})
	assert.True(t, ok)
}

func TestFailedCheckIsNotVerified(t *testing.T) {
	fail := pass("AssetsCurrent", "c-1")
	fail.Passed = false
	a := fixture{
		facts:  []model.StructuralFact{{ID: "1", Concept: "AssetsCurrent", ContextRef: "c1", Value: ptr(100)}},
		checks: []model.FactCheck{pass("AssetsCurrent", "c1"), fail},
	}.accessor(t)
	rv, ok := a.Get(Query{Identity: "current_assets"})
	require.True(t, ok)
	assert.False(t, rv.Verified)
}

func TestGetSkipsDimensionalAndValuelessNodes(t *testing.T) {
	a := fixture{facts: []model.StructuralFact{
		{ID: "1", Concept: "AssetsCurrent", ContextRef: "c1", Abstract: true},
		{ID: "2", Concept: "AssetsCurrent", ContextRef: "c2", Value: ptr(5), Dimensions: map[string]string{"Axis": "Member"}},
	}}.accessor(t)
	_, ok := a.Get(Query{Identity: "current_assets"})
	assert.False(t, ok)
}

func TestGetFallsBackToSynonym(t *testing.T) {
	a := fixture{
		facts:  []model.StructuralFact{{ID: "1", Concept: "StockholdersEquityIncludingPortionAttributableToNoncontrollingInterest", ContextRef: "c1", Value: ptr(500)}},
		checks: []model.FactCheck{pass("StockholdersEquityIncludingPortionAttributableToNoncontrollingInterest", "c1")},
	}.accessor(t)
	rv, ok := a.Get(Query{Identity: "total_equity"})
	require.True(t, ok)
	assert.Equal(t, "total_equity", rv.Identity)
	assert.Equal(t, model.SourceSynonym, rv.Source)
	assert.Equal(t, "equity_including_nci", rv.Via)
	assert.Equal(t, 90.0, rv.Confidence)
}

func TestGetFallsBackToDerivation(t *testing.T) {
	a := fixture{
		facts: []model.StructuralFact{
			{ID: "1", Concept: "LongTermDebtNoncurrent", ContextRef: "c1", Value: ptr(300), Period: model.Period{End: "2024-12-31"}},
			{ID: "2", Concept: "ShortTermBorrowings", ContextRef: "c1", Value: ptr(50), Period: model.Period{End: "2024-12-31"}},
		},
		checks: []model.FactCheck{pass("LongTermDebtNoncurrent", "c1")},
	}.accessor(t)
	rv, ok := a.Get(Query{Identity: "total_debt"})
	require.True(t, ok)
	assert.Equal(t, 350.0, rv.Value)
	assert.Equal(t, model.SourceDerived, rv.Source)
	assert.Equal(t, "debt_parts", rv.Via)
	assert.False(t, rv.Verified)
	assert.Equal(t, 55.0, rv.Confidence)
	assert.Equal(t, "2024-12-31", rv.PeriodEnd)
	require.Len(t, rv.Components, 2)
	assert.Equal(t, "long_term_debt", rv.Components[0].Identity)
}

func TestGetDerivationNeedsEveryComponent(t *testing.T) {
	a := fixture{facts: []model.StructuralFact{
		{ID: "1", Concept: "LongTermDebtNoncurrent", ContextRef: "c1", Value: ptr(300)},
	}}.accessor(t)
	_, ok := a.Get(Query{Identity: "total_debt"})
	assert.False(t, ok)
}

func TestGetUnknownIdentity(t *testing.T) {
	a := fixture{}.accessor(t)
	_, ok := a.Get(Query{Identity: "nothing"})
	assert.False(t, ok)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, clamp(-5))
	assert.Equal(t, 100.0, clamp(130))
	assert.Equal(t, 42.0, clamp(42))
}
