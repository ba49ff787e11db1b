package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ratio-cli/internal/worker"
)

var workerNoPersist bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker that processes filing workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "worker", true)
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := worker.Dial(cfg.Temporal)
		if err != nil {
			return err
		}
		defer c.Close()

		return worker.Run(ctx, c, cfg.Temporal.TaskQueue, &worker.Activities{
			Proc:  env.Processor,
			Store: env.Store,
		})
	},
}

var workerSubmitCmd = &cobra.Command{
	Use:   "submit <filing.json>...",
	Short: "Start one filing workflow per file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("worker"); err != nil {
			return err
		}
		c, err := worker.Dial(cfg.Temporal)
		if err != nil {
			return err
		}
		defer c.Close()

		reqs := make([]worker.FilingRequest, len(args))
		for i, path := range args {
			reqs[i] = worker.FilingRequest{Path: path, Persist: !workerNoPersist}
		}
		runIDs, err := worker.Submit(cmd.Context(), c, cfg.Temporal.TaskQueue, reqs)
		zap.L().Info("workflows submitted", zap.Int("count", len(runIDs)))
		return err
	},
}

func init() {
	workerSubmitCmd.Flags().BoolVar(&workerNoPersist, "no-persist", false, "process without saving results")
	workerCmd.AddCommand(workerSubmitCmd)
	rootCmd.AddCommand(workerCmd)
}
