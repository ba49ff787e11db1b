package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ratio-cli/internal/catalog"
	"github.com/sells-group/ratio-cli/internal/config"
	"github.com/sells-group/ratio-cli/internal/model"
	"github.com/sells-group/ratio-cli/internal/pipeline"
	"github.com/sells-group/ratio-cli/internal/store"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{Port: 8080, RequestsPerSecond: 1000, Burst: 1000, AllowedOrigins: []string{"*"}}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestProcessor(t *testing.T) *pipeline.Processor {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return pipeline.NewProcessor(cat, config.EngineConfig{
		MinVerificationScore: 95,
		UnverifiedPenalty:    30,
		SynonymPenalty:       10,
		DerivationPenalty:    15,
		CrossCheckPenalty:    20,
		CrossCheckTolerance:  0.01,
		MatchThreshold:       50,
		DecimalPlaces:        2,
	})
}

func newTestServer(t *testing.T, st store.Store, cfg config.ServerConfig) *Server {
	t.Helper()
	return NewServer(newTestProcessor(t), st, cfg, 2)
}

func num(v float64) *float64 { return &v }

func filingBody(t *testing.T, id string, score float64) []byte {
	t.Helper()
	fact := func(factID, parent, concept string, v *float64, order float64) model.StructuralFact {
		return model.StructuralFact{
			ID: factID, ParentID: parent, Concept: "us-gaap:" + concept, ContextRef: "FY2024",
			Value: v, Order: order, Period: model.Period{Type: "instant", End: "2024-12-31"},
		}
	}
	in := model.FilingInput{
		FilingID:  id,
		Company:   "Example Manufacturing",
		PeriodEnd: "2024-12-31",
		Statements: []model.Statement{
			{Type: "balance_sheet", Facts: []model.StructuralFact{
				fact("a", "", "AssetsAbstract", nil, 0),
				fact("ca", "a", "AssetsCurrent", num(5432.1), 1),
				fact("cl", "a", "LiabilitiesCurrent", num(2984.7), 2),
			}},
		},
		Verification: model.VerificationReport{
			Score: score,
			Checks: []model.FactCheck{
				{Kind: model.CheckFact, Concept: "us-gaap:AssetsCurrent", ContextRef: "FY2024", Passed: true},
				{Kind: model.CheckFact, Concept: "us-gaap:LiabilitiesCurrent", ContextRef: "FY2024", Passed: true},
			},
		},
	}
	body, err := json.Marshal(in)
	require.NoError(t, err)
	return body
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

type failingStore struct {
	store.Store
}

func (failingStore) SaveFilingResult(context.Context, *model.FilingResult) error {
	return errors.New("disk full")
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, newTestStore(t), testServerConfig())

	rec := do(t, s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateAndGetFiling(t *testing.T) {
	s := newTestServer(t, newTestStore(t), testServerConfig())

	rec := do(t, s, http.MethodPost, "/v1/filings", filingBody(t, "f1", 98))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created model.FilingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "f1", created.FilingID)
	cr, ok := created.Ratio("current_ratio")
	require.True(t, ok)
	assert.Equal(t, model.RatioComputed, cr.Status)

	rec = do(t, s, http.MethodGet, "/v1/filings/f1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stored model.FilingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, created.RunID, stored.RunID)
	assert.Len(t, stored.Ratios, len(created.Ratios))
}

func TestGetRatios(t *testing.T) {
	s := newTestServer(t, newTestStore(t), testServerConfig())
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/v1/filings", filingBody(t, "f1", 98)).Code)

	rec := do(t, s, http.MethodGet, "/v1/filings/f1/ratios?tier=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		FilingID string `json:"filing_id"`
		Industry string `json:"industry"`
		Ratios   []struct {
			RatioID string   `json:"ratio_id"`
			Tier    int      `json:"tier"`
			Rounded *float64 `json:"rounded"`
		} `json:"ratios"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "f1", resp.FilingID)
	assert.Equal(t, "general", resp.Industry)
	require.NotEmpty(t, resp.Ratios)

	var found bool
	for _, r := range resp.Ratios {
		assert.Equal(t, 2, r.Tier)
		if r.RatioID == "current_ratio" {
			found = true
			require.NotNil(t, r.Rounded)
			assert.Equal(t, 1.82, *r.Rounded)
		}
	}
	assert.True(t, found)
}

func TestGetRatios_BadTier(t *testing.T) {
	s := newTestServer(t, newTestStore(t), testServerConfig())

	rec := do(t, s, http.MethodGet, "/v1/filings/f1/ratios?tier=9", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateFiling_Rejected(t *testing.T) {
	s := newTestServer(t, newTestStore(t), testServerConfig())

	rec := do(t, s, http.MethodPost, "/v1/filings", filingBody(t, "low", 90))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, pipeline.ReasonFilingRejected, e.Reason)
	assert.Contains(t, e.Error, "verification score 90 below 95")

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/filings/low", nil).Code)
}

func TestCreateFiling_InvalidInput(t *testing.T) {
	s := newTestServer(t, newTestStore(t), testServerConfig())

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"filing_id":`},
		{"missing filing id", `{"statements":[]}`},
		{"bad period end", `{"filing_id":"x","period_end":"31/12/2024"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/v1/filings", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, pipeline.ReasonInvalidInput, decodeError(t, rec).Reason)
		})
	}
}

func TestCreateFiling_PersistenceFailure(t *testing.T) {
	s := newTestServer(t, failingStore{Store: newTestStore(t)}, testServerConfig())

	rec := do(t, s, http.MethodPost, "/v1/filings", filingBody(t, "f1", 98))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, pipeline.ReasonPersistenceFailed, decodeError(t, rec).Reason)
}

func TestGetFiling_NotFound(t *testing.T) {
	s := newTestServer(t, newTestStore(t), testServerConfig())

	rec := do(t, s, http.MethodGet, "/v1/filings/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "filing not found", decodeError(t, rec).Error)
}

func TestListFilings(t *testing.T) {
	s := newTestServer(t, newTestStore(t), testServerConfig())
	for _, id := range []string{"f1", "f2"} {
		require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/v1/filings", filingBody(t, id, 98)).Code)
	}

	var resp struct {
		Filings []store.FilingSummary `json:"filings"`
	}

	rec := do(t, s, http.MethodGet, "/v1/filings?industry=general", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Filings, 2)

	rec = do(t, s, http.MethodGet, "/v1/filings?industry=banking", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"filings":[]}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/v1/filings?limit=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Filings, 2)

	rec = do(t, s, http.MethodGet, "/v1/filings?limit=1&offset=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Filings, 1)

	rec = do(t, s, http.MethodGet, "/v1/filings?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 1
	s := newTestServer(t, newTestStore(t), cfg)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/filings/a", nil).Code)

	rec := do(t, s, http.MethodGet, "/v1/filings/a", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Health checks bypass the limiter.
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, newTestStore(t), testServerConfig())

	req := httptest.NewRequest(http.MethodOptions, "/v1/filings", strings.NewReader(""))
	req.Header.Set("Origin", "https://analyst.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
