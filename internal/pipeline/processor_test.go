package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ratio-cli/internal/catalog"
	"github.com/sells-group/ratio-cli/internal/config"
	"github.com/sells-group/ratio-cli/internal/model"
)

func engineConfig() config.EngineConfig {
	return config.EngineConfig{
		MinVerificationScore: 95,
		UnverifiedPenalty:    30,
		SynonymPenalty:       10,
		DerivationPenalty:    15,
		CrossCheckPenalty:    20,
		CrossCheckTolerance:  0.01,
		MatchThreshold:       50,
		DecimalPlaces:        2,
	}
}

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	p := NewProcessor(cat, engineConfig())
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return p
}

func num(v float64) *float64 { return &v }

func fact(id, parent, concept string, v *float64, order float64) model.StructuralFact {
	return model.StructuralFact{
		ID:         id,
		ParentID:   parent,
		Concept:    "us-gaap:" + concept,
		ContextRef: "FY2024",
		Value:      v,
		Order:      order,
		Period:     model.Period{Type: "instant", End: "2024-12-31"},
	}
}

func passed(concepts ...string) []model.FactCheck {
	var out []model.FactCheck
	for _, c := range concepts {
		out = append(out, model.FactCheck{Kind: model.CheckFact, Concept: "us-gaap:" + c, ContextRef: "FY2024", Passed: true})
	}
	return out
}

func generalFiling() *model.FilingInput {
	return &model.FilingInput{
		FilingID:  "0000000001-24-000001",
		Company:   "Example Manufacturing",
		PeriodEnd: "2024-12-31",
		Statements: []model.Statement{
			{Code: model.StatementBalanceSheet, Facts: []model.StructuralFact{
				fact("a", "", "AssetsAbstract", nil, 0),
				fact("ca", "a", "AssetsCurrent", num(5432.1), 1),
				fact("cl", "a", "LiabilitiesCurrent", num(2984.7), 2),
			}},
			{Code: model.StatementIncome, Facts: []model.StructuralFact{
				fact("rev", "", "Revenues", num(1000), 0),
				fact("ap", "", "AccountsPayableCurrent", num(40), 1),
			}},
		},
		Verification: model.VerificationReport{
			Score:  98,
			Checks: passed("AssetsCurrent", "LiabilitiesCurrent"),
		},
	}
}

func TestProcess_CurrentRatio(t *testing.T) {
	p := newTestProcessor(t)

	res, err := p.Process(context.Background(), generalFiling())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "general", res.Industry.Category)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), res.ProcessedAt)
	assert.Len(t, res.Concepts, 5)

	cr, ok := res.Ratio("current_ratio")
	require.True(t, ok)
	v, ok := cr.Rounded(2)
	require.True(t, ok)
	assert.Equal(t, 1.82, v)
	assert.Equal(t, 100.0, cr.Confidence)

	quick, ok := res.Ratio("quick_ratio")
	require.True(t, ok)
	assert.Equal(t, model.RatioMissingData, quick.Status)
}

func TestProcess_ComponentStates(t *testing.T) {
	p := newTestProcessor(t)

	res, err := p.Process(context.Background(), generalFiling())
	require.NoError(t, err)

	ca, ok := res.Component("current_assets")
	require.True(t, ok)
	assert.Equal(t, model.ComponentMatched, ca.Status)

	// AccountsPayableCurrent sits on the income statement, so the balance
	// sheet rule never qualifies.
	ap, ok := res.Component("accounts_payable")
	require.True(t, ok)
	assert.Equal(t, model.ComponentUnmatched, ap.Status)
	assert.Equal(t, 1, ap.Candidates)

	inv, ok := res.Component("inventory")
	require.True(t, ok)
	assert.Equal(t, model.ComponentNotApplicable, inv.Status)
}

func TestProcess_MappedConceptLabels(t *testing.T) {
	p := newTestProcessor(t)

	res, err := p.Process(context.Background(), generalFiling())
	require.NoError(t, err)

	byConcept := map[string]model.MappedConcept{}
	for _, c := range res.Concepts {
		byConcept[c.LocalName] = c
	}
	require.NotNil(t, byConcept["AssetsCurrent"].Semantic)
	assert.Equal(t, "current_assets", byConcept["AssetsCurrent"].Semantic.Identity)
	assert.Nil(t, byConcept["AssetsAbstract"].Semantic)
	assert.Equal(t, "Assets Abstract", byConcept["AssetsAbstract"].DisplayLabel)
	assert.Equal(t, "BS-001-001-FY2024", byConcept["AssetsCurrent"].PositionalID)
}

func TestProcess_BankingModel(t *testing.T) {
	p := newTestProcessor(t)
	in := &model.FilingInput{
		FilingID: "bank-1",
		Statements: []model.Statement{
			{Code: model.StatementBalanceSheet, Facts: []model.StructuralFact{
				fact("assets", "", "Assets", num(1000), 0),
				fact("dep", "", "DepositsFromCustomers", num(800), 1),
			}},
			{Code: model.StatementIncome, Facts: []model.StructuralFact{
				fact("nii", "", "InterestIncomeExpenseNet", num(30), 0),
				fact("nii2", "", "NetInterestIncome", num(30), 1),
			}},
		},
		Verification: model.VerificationReport{Score: 99, Checks: passed("Assets", "InterestIncomeExpenseNet")},
	}

	res, err := p.Process(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "banking", res.Industry.Category)
	assert.NotEmpty(t, res.Industry.Signals["banking"])
	_, ok := res.Ratio("quick_ratio")
	assert.False(t, ok)

	nim, ok := res.Ratio("net_interest_margin")
	require.True(t, ok)
	assert.Equal(t, model.RatioComputed, nim.Status)
	assert.Equal(t, model.VerdictWithin, nim.Verdict)

	deposits, ok := res.Component("total_deposits")
	require.True(t, ok)
	assert.Equal(t, model.ComponentMatched, deposits.Status)
}

func TestProcess_RejectsLowVerificationScore(t *testing.T) {
	p := newTestProcessor(t)
	in := generalFiling()
	in.Verification.Score = 94.9

	res, err := p.Process(context.Background(), in)
	require.Error(t, err)
	assert.Nil(t, res)

	var fe *FilingError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ReasonFilingRejected, fe.Code)
	assert.Equal(t, in.FilingID, fe.FilingID)
	assert.Equal(t, ReasonFilingRejected, Reason(err))
	assert.Contains(t, err.Error(), "below 95")
}

func TestProcess_InvalidInput(t *testing.T) {
	p := newTestProcessor(t)

	_, err := p.Process(context.Background(), nil)
	assert.Equal(t, ReasonInvalidInput, Reason(err))

	_, err = p.Process(context.Background(), &model.FilingInput{})
	assert.Equal(t, ReasonInvalidInput, Reason(err))
}

func TestProcess_Cancelled(t *testing.T) {
	p := newTestProcessor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Process(ctx, generalFiling())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, Reason(err))
}

func TestProcess_Idempotent(t *testing.T) {
	p := newTestProcessor(t)

	first, err := p.Process(context.Background(), generalFiling())
	require.NoError(t, err)
	second, err := p.Process(context.Background(), generalFiling())
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Concepts, second.Concepts)
	assert.Equal(t, first.Ratios, second.Ratios)
	assert.Equal(t, first.Components, second.Components)
}

func TestClassify(t *testing.T) {
	p := newTestProcessor(t)

	det, im := p.Classify(generalFiling())
	assert.Equal(t, "general", det.Category)
	assert.Equal(t, "general", im.Category)
	assert.Contains(t, im.Ratios, "current_ratio")
}

func TestFilingError_Message(t *testing.T) {
	err := &FilingError{Code: ReasonPersistenceFailed, FilingID: "f1", Err: errors.New("disk full")}
	assert.Equal(t, "pipeline: filing f1: persistence_failed: disk full", err.Error())
	assert.Equal(t, "pipeline: filing f1: configuration_error", (&FilingError{Code: ReasonConfigurationError, FilingID: "f1"}).Error())
	assert.Empty(t, Reason(errors.New("plain")))
}
