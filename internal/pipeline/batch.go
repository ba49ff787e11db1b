package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ratio-cli/internal/model"
)

// ProcessFunc processes the filing identified by source.
type ProcessFunc func(ctx context.Context, source string) (*model.FilingResult, error)

// BatchResult is the outcome of one filing in a batch.
type BatchResult struct {
	Source string
	Result *model.FilingResult
	Err    error
}

// RunBatch processes sources concurrently, at most concurrency at a time.
// A failed filing is recorded in its BatchResult and never aborts the rest
// of the batch. Results are returned in input order.
func RunBatch(ctx context.Context, sources []string, concurrency int, fn ProcessFunc) ([]BatchResult, error) {
	if len(sources) == 0 {
		zap.L().Info("no filings to process")
		return nil, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("filings", len(sources)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	results := make([]BatchResult, len(sources))
	var succeeded, failed atomic.Int64

	for i, src := range sources {
		g.Go(func() error {
			log := zap.L().With(zap.String("source", src))
			results[i].Source = src

			res, err := fn(gctx, src)
			if err != nil {
				failed.Add(1)
				results[i].Err = err
				if code := Reason(err); code != "" {
					log.Warn("filing failed", zap.String("reason", string(code)), zap.Error(err))
				} else {
					log.Error("filing failed", zap.Error(err))
				}
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			results[i].Result = res
			log.Info("filing complete",
				zap.String("filing_id", res.FilingID),
				zap.Int("ratios", len(res.Ratios)),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, eris.Wrap(err, "batch processing")
	}
	if err := ctx.Err(); err != nil {
		return results, eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return results, nil
}
