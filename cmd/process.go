package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ratio-cli/internal/filing"
	"github.com/sells-group/ratio-cli/internal/model"
	"github.com/sells-group/ratio-cli/internal/pipeline"
	"github.com/sells-group/ratio-cli/internal/store"
)

var (
	processPersist bool
	processSummary bool
)

var processCmd = &cobra.Command{
	Use:   "process <filing.json>",
	Short: "Compute ratios for one filing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := "process"
		if processPersist {
			mode = "persist"
		}
		env, err := initEngine(cmd.Context(), mode, processPersist)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := processFile(cmd.Context(), env.Processor, env.Store, args[0])
		if err != nil {
			return err
		}

		if processSummary {
			return writeSummary(cmd.OutOrStdout(), result, cfg.Engine.DecimalPlaces)
		}
		return writeJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	processCmd.Flags().BoolVar(&processPersist, "persist", false, "save the result to the configured store")
	processCmd.Flags().BoolVar(&processSummary, "summary", false, "print a ratio table instead of JSON")
	rootCmd.AddCommand(processCmd)
}

// processFile loads, processes and, when st is non-nil, persists one filing.
func processFile(ctx context.Context, proc *pipeline.Processor, st store.Store, path string) (*model.FilingResult, error) {
	in, err := filing.LoadFile(path)
	if err != nil {
		return nil, &pipeline.FilingError{Code: pipeline.ReasonInvalidInput, Err: err}
	}

	result, err := proc.Process(ctx, in)
	if err != nil {
		return nil, err
	}

	if st != nil {
		if err := st.SaveFilingResult(ctx, result); err != nil {
			return nil, &pipeline.FilingError{Code: pipeline.ReasonPersistenceFailed, FilingID: in.FilingID, Err: err}
		}
		zap.L().Info("result saved", zap.String("filing_id", in.FilingID), zap.String("run_id", result.RunID))
	}
	return result, nil
}

// readInput opens path, or stdin for "-".
func readInput(path string) (*model.FilingInput, error) {
	if path == "-" {
		return filing.Parse(os.Stdin)
	}
	in, err := filing.LoadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read input")
	}
	return in, nil
}
