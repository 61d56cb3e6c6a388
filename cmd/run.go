package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runWorkers int
	runForce   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full selection pipeline",
	Long:  "Extracts metrics over every manifest tile, ranks blocks by retained candidates, draws one site per selected block and writes the final layers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts := pipelineOptions()
		if runWorkers > 0 {
			opts.Workers = runWorkers
		}
		opts.Force = runForce

		env, err := initPipeline(ctx, opts)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Pipeline.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("selection complete",
			zap.String("run_id", run.ID),
			zap.Int("retained", run.Result.Retained),
			zap.Int("sites", run.Result.Sites),
			zap.Int("shortfall", run.Result.Shortfall),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "extraction workers per tile (default from config)")
	runCmd.Flags().BoolVar(&runForce, "force", false, "reprocess tiles that already have artifacts")
	rootCmd.AddCommand(runCmd)
}
