package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ratio-cli/internal/catalog"
	"github.com/sells-group/ratio-cli/internal/hierarchy"
	"github.com/sells-group/ratio-cli/internal/ratio"
	"github.com/sells-group/ratio-cli/internal/store"
)

var lineageCmd = &cobra.Command{
	Use:   "lineage <filing.json>",
	Short: "Re-resolve a stored result's lineage against its source filing",
	Long:  "Rebuilds the hierarchy from the source filing and checks that every stored ratio input still resolves to the same node, concept and value.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context(), "persist", true)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := checkLineage(cmd.Context(), env.Catalog, env.Store, args[0])
		if err != nil {
			return err
		}
		if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
		if len(report.Mismatches) > 0 {
			return eris.Errorf("lineage: %d mismatches for %s", len(report.Mismatches), report.FilingID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lineageCmd)
}

type lineageReport struct {
	FilingID   string           `json:"filing_id"`
	RunID      string           `json:"run_id"`
	Ratios     int              `json:"ratios"`
	Mismatches []ratio.Mismatch `json:"mismatches"`
}

func checkLineage(ctx context.Context, cat *catalog.Catalog, st store.Store, path string) (*lineageReport, error) {
	in, err := readInput(path)
	if err != nil {
		return nil, err
	}
	result, err := st.GetFilingResult(ctx, in.FilingID)
	if err != nil {
		return nil, eris.Wrapf(err, "lineage: load %s", in.FilingID)
	}

	forest := hierarchy.Build(in.FilingID, in.Statements)
	mismatches := ratio.VerifyLineage(cat, forest, result.Ratios)
	if mismatches == nil {
		mismatches = []ratio.Mismatch{}
	}
	zap.L().Info("lineage checked",
		zap.String("filing_id", in.FilingID),
		zap.Int("ratios", len(result.Ratios)),
		zap.Int("mismatches", len(mismatches)),
	)
	return &lineageReport{
		FilingID:   in.FilingID,
		RunID:      result.RunID,
		Ratios:     len(result.Ratios),
		Mismatches: mismatches,
	}, nil
}
