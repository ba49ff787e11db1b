// Package worker runs filing processing as Temporal workflows so each
// filing is retried and tracked independently of the caller.
package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	sdkworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/sells-group/ratio-cli/internal/config"
	"github.com/sells-group/ratio-cli/internal/filing"
	"github.com/sells-group/ratio-cli/internal/model"
	"github.com/sells-group/ratio-cli/internal/pipeline"
	"github.com/sells-group/ratio-cli/internal/store"
)

// Processor computes the result for one filing.
type Processor interface {
	Process(ctx context.Context, in *model.FilingInput) (*model.FilingResult, error)
}

// FilingRequest identifies one filing file to process.
type FilingRequest struct {
	Path    string `json:"path"`
	Persist bool   `json:"persist"`
}

// FilingOutcome summarizes a processed filing.
type FilingOutcome struct {
	FilingID   string `json:"filing_id"`
	RunID      string `json:"run_id"`
	Industry   string `json:"industry"`
	RatioCount int    `json:"ratio_count"`
	Persisted  bool   `json:"persisted"`
}

// Activities holds the dependencies of the filing activities.
type Activities struct {
	Proc  Processor
	Store store.Store
}

// ProcessFiling loads, processes and optionally persists one filing.
// Rejected and malformed filings fail without retry.
func (a *Activities) ProcessFiling(ctx context.Context, req FilingRequest) (*FilingOutcome, error) {
	log := zap.L().With(zap.String("path", req.Path))

	in, err := filing.LoadFile(req.Path)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), string(pipeline.ReasonInvalidInput), err)
	}

	result, err := a.Proc.Process(ctx, in)
	if err != nil {
		switch code := pipeline.Reason(err); code {
		case pipeline.ReasonFilingRejected, pipeline.ReasonInvalidInput, pipeline.ReasonConfigurationError:
			log.Warn("worker: filing not processed", zap.String("reason", string(code)), zap.Error(err))
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), string(code), err)
		default:
			return nil, eris.Wrapf(err, "worker: process %s", in.FilingID)
		}
	}

	out := &FilingOutcome{
		FilingID:   result.FilingID,
		RunID:      result.RunID,
		Industry:   result.Industry.Category,
		RatioCount: len(result.Ratios),
	}
	if req.Persist {
		if a.Store == nil {
			return nil, temporal.NewNonRetryableApplicationError("no store configured", string(pipeline.ReasonConfigurationError), nil)
		}
		if err := a.Store.SaveFilingResult(ctx, result); err != nil {
			return nil, temporal.NewApplicationError(err.Error(), string(pipeline.ReasonPersistenceFailed), err)
		}
		out.Persisted = true
	}

	log.Info("worker: filing processed",
		zap.String("filing_id", out.FilingID),
		zap.Int("ratios", out.RatioCount),
		zap.Bool("persisted", out.Persisted),
	)
	return out, nil
}

// ProcessFilingWorkflow runs ProcessFiling with retries for transient
// failures.
func ProcessFilingWorkflow(ctx workflow.Context, req FilingRequest) (*FilingOutcome, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
			NonRetryableErrorTypes: []string{
				string(pipeline.ReasonFilingRejected),
				string(pipeline.ReasonInvalidInput),
				string(pipeline.ReasonConfigurationError),
			},
		},
	})

	var a *Activities
	var out FilingOutcome
	if err := workflow.ExecuteActivity(ctx, a.ProcessFiling, req).Get(ctx, &out); err != nil {
		return nil, err
	}
	workflow.GetLogger(ctx).Info("filing workflow complete", "filing_id", out.FilingID, "ratios", out.RatioCount)
	return &out, nil
}

// Register adds the workflow and activities to a worker.
func Register(r sdkworker.Registry, acts *Activities) {
	r.RegisterWorkflow(ProcessFilingWorkflow)
	r.RegisterActivity(acts)
}

// Dial connects to the Temporal frontend named in cfg.
func Dial(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "worker: dial %s", cfg.HostPort)
	}
	return c, nil
}

// Run polls taskQueue until ctx is cancelled.
func Run(ctx context.Context, c client.Client, taskQueue string, acts *Activities) error {
	w := sdkworker.New(c, taskQueue, sdkworker.Options{})
	Register(w, acts)

	if err := w.Start(); err != nil {
		return eris.Wrap(err, "worker: start")
	}
	zap.L().Info("worker: polling", zap.String("task_queue", taskQueue))
	<-ctx.Done()
	w.Stop()
	return nil
}

// WorkflowID is the workflow id used for a filing file.
func WorkflowID(path string) string {
	return fmt.Sprintf("ratio-filing-%s", filepath.Base(path))
}

// Submit starts a workflow for each request and returns the run ids in
// request order.
func Submit(ctx context.Context, c client.Client, taskQueue string, reqs []FilingRequest) ([]string, error) {
	runIDs := make([]string, 0, len(reqs))
	for _, req := range reqs {
		run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
			ID:        WorkflowID(req.Path),
			TaskQueue: taskQueue,
		}, ProcessFilingWorkflow, req)
		if err != nil {
			return runIDs, eris.Wrapf(err, "worker: start workflow for %s", req.Path)
		}
		zap.L().Info("worker: workflow started",
			zap.String("workflow_id", run.GetID()),
			zap.String("run_id", run.GetRunID()),
		)
		runIDs = append(runIDs, run.GetRunID())
	}
	return runIDs, nil
}
