package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/ratio-cli/internal/filing"
	"github.com/sells-group/ratio-cli/internal/model"
	"github.com/sells-group/ratio-cli/internal/pipeline"
	"github.com/sells-group/ratio-cli/internal/store"
)

const maxFilingBytes = 32 << 20

type errorResponse struct {
	Error  string              `json:"error"`
	Reason pipeline.ReasonCode `json:"reason,omitempty"`
}

// ratioView is a stored ratio with its display-rounded value.
type ratioView struct {
	model.RatioResult
	Rounded *float64 `json:"rounded,omitempty"`
}

func (s *Server) handleCreateFiling(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFilingBytes)

	in, err := filing.Parse(r.Body)
	if err != nil {
		jsonError(w, err.Error(), pipeline.ReasonInvalidInput, http.StatusBadRequest)
		return
	}

	result, err := s.proc.Process(r.Context(), in)
	if err != nil {
		switch code := pipeline.Reason(err); code {
		case pipeline.ReasonFilingRejected:
			jsonError(w, err.Error(), code, http.StatusUnprocessableEntity)
		case pipeline.ReasonInvalidInput:
			jsonError(w, err.Error(), code, http.StatusBadRequest)
		default:
			zap.L().Error("api: process filing", zap.String("filing_id", in.FilingID), zap.Error(err))
			jsonError(w, "processing failed", code, http.StatusInternalServerError)
		}
		return
	}

	if err := s.store.SaveFilingResult(r.Context(), result); err != nil {
		zap.L().Error("api: save filing result", zap.String("filing_id", in.FilingID), zap.Error(err))
		jsonError(w, "failed to persist result", pipeline.ReasonPersistenceFailed, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleGetFiling(w http.ResponseWriter, r *http.Request) {
	result, ok := s.loadResult(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetRatios(w http.ResponseWriter, r *http.Request) {
	tier := 0
	if v := r.URL.Query().Get("tier"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 4 {
			jsonError(w, "tier must be between 1 and 4", "", http.StatusBadRequest)
			return
		}
		tier = n
	}

	result, ok := s.loadResult(w, r)
	if !ok {
		return
	}

	ratios := make([]ratioView, 0, len(result.Ratios))
	for _, rr := range result.Ratios {
		if tier != 0 && rr.Tier != tier {
			continue
		}
		v := ratioView{RatioResult: rr}
		if rounded, ok := rr.Rounded(s.places); ok {
			v.Rounded = &rounded
		}
		ratios = append(ratios, v)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"filing_id": result.FilingID,
		"industry":  result.Industry.Category,
		"ratios":    ratios,
	})
}

// defaultListLimit applies when limit is absent or zero.
const defaultListLimit = 100

func (s *Server) handleListFilings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.FilingFilter{Industry: q.Get("industry"), Limit: defaultListLimit}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonError(w, name+" must be a non-negative integer", "", http.StatusBadRequest)
			return
		}
		*dst = n
	}
	if filter.Limit == 0 {
		filter.Limit = defaultListLimit
	}

	filings, err := s.store.ListFilings(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list filings", zap.Error(err))
		jsonError(w, "failed to list filings", "", http.StatusInternalServerError)
		return
	}
	if filings == nil {
		filings = []store.FilingSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"filings": filings})
}

func (s *Server) loadResult(w http.ResponseWriter, r *http.Request) (*model.FilingResult, bool) {
	filingID := chi.URLParam(r, "filingID")
	result, err := s.store.GetFilingResult(r.Context(), filingID)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "filing not found", "", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		zap.L().Error("api: get filing result", zap.String("filing_id", filingID), zap.Error(err))
		jsonError(w, "failed to load result", "", http.StatusInternalServerError)
		return nil, false
	}
	return result, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonError(w http.ResponseWriter, msg string, reason pipeline.ReasonCode, code int) {
	writeJSON(w, code, errorResponse{Error: msg, Reason: reason})
}
