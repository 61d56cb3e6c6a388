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
	extractWorkers int
	extractForce   bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract and score metrics without selecting sites",
	Long:  "Runs lattice generation, metric extraction and scoring over every manifest tile, writing one scored artifact per tile. Selection can then run separately over the artifacts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("extract"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts := pipelineOptions()
		if extractWorkers > 0 {
			opts.Workers = extractWorkers
		}
		opts.Force = extractForce

		env, err := initPipeline(ctx, opts)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Pipeline.RunExtract(ctx)
		if err != nil {
			return eris.Wrap(err, "extract run")
		}

		zap.L().Info("extraction complete",
			zap.String("run_id", run.ID),
			zap.Int("tiles", run.Result.Tiles),
			zap.Int("candidates", run.Result.Candidates),
			zap.Int("retained", run.Result.Retained),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	extractCmd.Flags().IntVar(&extractWorkers, "workers", 0, "extraction workers per tile (default from config)")
	extractCmd.Flags().BoolVar(&extractForce, "force", false, "reprocess tiles that already have artifacts")
	rootCmd.AddCommand(extractCmd)
}
