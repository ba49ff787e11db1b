package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/ratio-cli/internal/industry"
)

var detectCmd = &cobra.Command{
	Use:   "detect <filing.json|->",
	Short: "Classify a filing's industry and show the matched signals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context(), "process", false)
		if err != nil {
			return err
		}
		defer env.Close()

		in, err := readInput(args[0])
		if err != nil {
			return err
		}

		det, m := env.Processor.Classify(in)
		return writeJSON(cmd.OutOrStdout(), struct {
			FilingID  string             `json:"filing_id"`
			Detection industry.Detection `json:"detection"`
			Model     industry.Model     `json:"model"`
		}{in.FilingID, det, m})
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
}
