package store

import (
	"context"

	"github.com/sells-group/ratio-cli/internal/model"
	"github.com/sells-group/ratio-cli/internal/resilience"
)

type retryStore struct {
	Store
	cfg resilience.RetryConfig
}

// WithRetry wraps st so saves, reads and listings are retried on transient
// database errors. Saves are all-or-nothing, so a retried save never leaves
// a partial result behind.
func WithRetry(st Store, cfg resilience.RetryConfig) Store {
	return &retryStore{Store: st, cfg: cfg}
}

func (s *retryStore) SaveFilingResult(ctx context.Context, result *model.FilingResult) error {
	return resilience.Do(ctx, s.cfg, func(ctx context.Context) error {
		return s.Store.SaveFilingResult(ctx, result)
	})
}

func (s *retryStore) GetFilingResult(ctx context.Context, filingID string) (*model.FilingResult, error) {
	var out *model.FilingResult
	err := resilience.Do(ctx, s.cfg, func(ctx context.Context) error {
		r, err := s.Store.GetFilingResult(ctx, filingID)
		out = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *retryStore) ListFilings(ctx context.Context, filter FilingFilter) ([]FilingSummary, error) {
	var out []FilingSummary
	err := resilience.Do(ctx, s.cfg, func(ctx context.Context) error {
		r, err := s.Store.ListFilings(ctx, filter)
		out = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
