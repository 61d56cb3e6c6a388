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

var gridForce bool

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Generate the sampling lattice for every manifest tile",
	Long:  "Tessellates each tile's extent into equal-area cells, keeps the cells fully inside the study boundary and writes one grid artifact per tile for later extraction runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("grid"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts := pipelineOptions()
		opts.Force = gridForce

		env, err := initPipeline(ctx, opts)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Pipeline.RunGrid(ctx)
		if err != nil {
			return eris.Wrap(err, "grid run")
		}

		zap.L().Info("grid complete",
			zap.String("run_id", run.ID),
			zap.Int("tiles", run.Result.Tiles),
			zap.Int("cells", run.Result.Candidates),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	gridCmd.Flags().BoolVar(&gridForce, "force", false, "regenerate grids that already have artifacts")
	rootCmd.AddCommand(gridCmd)
}
