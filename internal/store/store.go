package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ratio-cli/internal/model"
)

// ErrNotFound is returned when a filing has no stored result.
var ErrNotFound = errors.New("store: not found")

// FilingFilter specifies criteria for listing stored filings.
type FilingFilter struct {
	Industry string `json:"industry,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// FilingSummary is one row of a filing listing.
type FilingSummary struct {
	FilingID          string    `json:"filing_id"`
	RunID             string    `json:"run_id"`
	Company           string    `json:"company,omitempty"`
	Industry          string    `json:"industry"`
	VerificationScore float64   `json:"verification_score"`
	RatioCount        int       `json:"ratio_count"`
	ProcessedAt       time.Time `json:"processed_at"`
}

// Store persists filing results. SaveFilingResult is all-or-nothing: a
// failed save leaves the previously stored result, if any, untouched.
type Store interface {
	SaveFilingResult(ctx context.Context, result *model.FilingResult) error
	GetFilingResult(ctx context.Context, filingID string) (*model.FilingResult, error)
	ListFilings(ctx context.Context, filter FilingFilter) ([]FilingSummary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Table columns shared by both backends.
var (
	filingColumns    = []string{"filing_id", "run_id", "company", "industry", "verification_score", "ratio_count", "processed_at", "data"}
	conceptColumns   = []string{"filing_id", "ordinal", "positional_id", "statement", "concept", "identity", "value", "data"}
	ratioColumns     = []string{"filing_id", "ordinal", "ratio_id", "tier", "status", "value", "confidence", "data"}
	componentColumns = []string{"filing_id", "ordinal", "identity", "status", "data"}
)

// filingHeader is the JSON payload of the filings row.
type filingHeader struct {
	Industry    model.IndustryClassification `json:"industry"`
	Issues      []model.StructuralIssue      `json:"issues,omitempty"`
	Ambiguities []model.MappingAmbiguity     `json:"ambiguities,omitempty"`
}

type rowSet struct {
	header     []any
	concepts   [][]any
	ratios     [][]any
	components [][]any
}

// encodeResult flattens a result into table rows. processedAt is the
// backend-specific representation of the processing time.
func encodeResult(r *model.FilingResult, processedAt any) (*rowSet, error) {
	header, err := json.Marshal(filingHeader{Industry: r.Industry, Issues: r.Issues, Ambiguities: r.Ambiguities})
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal filing header")
	}
	rs := &rowSet{
		header: []any{r.FilingID, r.RunID, r.Company, r.Industry.Category, r.VerificationScore, len(r.Ratios), processedAt, header},
	}

	for i, c := range r.Concepts {
		data, err := json.Marshal(c)
		if err != nil {
			return nil, eris.Wrapf(err, "store: marshal concept %s", c.PositionalID)
		}
		var identity any
		if c.Semantic != nil {
			identity = c.Semantic.Identity
		}
		rs.concepts = append(rs.concepts, []any{r.FilingID, i, c.PositionalID, string(c.Statement), c.Concept, identity, nullable(c.Value), data})
	}
	for i, rr := range r.Ratios {
		data, err := json.Marshal(rr)
		if err != nil {
			return nil, eris.Wrapf(err, "store: marshal ratio %s", rr.RatioID)
		}
		rs.ratios = append(rs.ratios, []any{r.FilingID, i, rr.RatioID, rr.Tier, string(rr.Status), nullable(rr.Value), rr.Confidence, data})
	}
	for i, cs := range r.Components {
		data, err := json.Marshal(cs)
		if err != nil {
			return nil, eris.Wrapf(err, "store: marshal component %s", cs.Identity)
		}
		rs.components = append(rs.components, []any{r.FilingID, i, cs.Identity, string(cs.Status), data})
	}
	return rs, nil
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func decodeHeader(data []byte, r *model.FilingResult) error {
	var h filingHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return eris.Wrap(err, "store: decode filing header")
	}
	r.Industry = h.Industry
	r.Issues = h.Issues
	r.Ambiguities = h.Ambiguities
	return nil
}

func decodeRow[T any](data []byte, what string) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, eris.Wrapf(err, "store: decode %s", what)
	}
	return v, nil
}

// relink restores the in-memory parent and child indexes of concepts
// loaded in forest order.
func relink(concepts []model.MappedConcept) {
	index := make(map[string]int, len(concepts))
	for i := range concepts {
		index[concepts[i].PositionalID] = i
	}
	for i := range concepts {
		c := &concepts[i]
		c.Parent = -1
		if p, ok := index[c.ParentPositionalID]; ok && c.ParentPositionalID != "" {
			c.Parent = p
			concepts[p].Children = append(concepts[p].Children, i)
		}
	}
}
