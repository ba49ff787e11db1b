package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ratio-cli/internal/model"
	"github.com/sells-group/ratio-cli/internal/pipeline"
)

var (
	batchPersist     bool
	batchConcurrency int
	batchPattern     string
	batchOutDir      string
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Compute ratios for every filing file in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mode := "process"
		if batchPersist {
			mode = "persist"
		}
		env, err := initEngine(ctx, mode, batchPersist)
		if err != nil {
			return err
		}
		defer env.Close()

		files, err := collectFilings(args[0], batchPattern)
		if err != nil {
			return err
		}

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentFilings
		}

		results, err := pipeline.RunBatch(ctx, files, concurrency, func(ctx context.Context, path string) (*model.FilingResult, error) {
			return processFile(ctx, env.Processor, env.Store, path)
		})
		if err != nil {
			return err
		}
		if batchOutDir != "" {
			if err := writeBatchResults(batchOutDir, results); err != nil {
				return err
			}
		}
		return writeJSON(cmd.OutOrStdout(), summarizeBatch(results))
	},
}

func init() {
	batchCmd.Flags().BoolVar(&batchPersist, "persist", false, "save results to the configured store")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "filings processed in parallel (default from config)")
	batchCmd.Flags().StringVar(&batchPattern, "pattern", "*.json", "glob for filing files inside the directory")
	batchCmd.Flags().StringVar(&batchOutDir, "out", "", "directory to write one result file per filing")
	rootCmd.AddCommand(batchCmd)
}

// collectFilings lists files in dir matching pattern, sorted by name.
func collectFilings(dir, pattern string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, eris.Wrapf(err, "batch: glob %s", pattern)
	}
	var out []string
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: stat %s", f)
		}
		if !info.IsDir() {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out, nil
}

type batchItem struct {
	Source   string              `json:"source"`
	FilingID string              `json:"filing_id,omitempty"`
	Industry string              `json:"industry,omitempty"`
	Ratios   int                 `json:"ratios,omitempty"`
	Reason   pipeline.ReasonCode `json:"reason,omitempty"`
	Error    string              `json:"error,omitempty"`
}

type batchSummary struct {
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Items     []batchItem `json:"items"`
}

func summarizeBatch(results []pipeline.BatchResult) batchSummary {
	s := batchSummary{Items: make([]batchItem, 0, len(results))}
	for _, r := range results {
		item := batchItem{Source: r.Source}
		if r.Err != nil {
			s.Failed++
			item.Reason = pipeline.Reason(r.Err)
			item.Error = r.Err.Error()
		} else {
			s.Succeeded++
			item.FilingID = r.Result.FilingID
			item.Industry = r.Result.Industry.Category
			item.Ratios = len(r.Result.Ratios)
		}
		s.Items = append(s.Items, item)
	}
	return s
}

func writeBatchResults(dir string, results []pipeline.BatchResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "batch: create %s", dir)
	}
	for _, r := range results {
		if r.Result == nil {
			continue
		}
		path := filepath.Join(dir, r.Result.FilingID+".json")
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "batch: create %s", path)
		}
		if err := writeJSON(f, r.Result); err != nil {
			f.Close() //nolint:errcheck
			return eris.Wrapf(err, "batch: write %s", path)
		}
		if err := f.Close(); err != nil {
			return eris.Wrapf(err, "batch: close %s", path)
		}
	}
	zap.L().Info("batch results written", zap.String("dir", dir))
	return nil
}
