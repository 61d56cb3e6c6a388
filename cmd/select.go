package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var selectMaxBlocks int

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Rank blocks and draw sites from existing tile artifacts",
	Long:  "Reads the scored artifacts of an earlier extract run, ranks blocks by retained candidates, draws one site per selected block and writes the final layers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("select"); err != nil {
			return err
		}

		ctx := cmd.Context()

		opts := pipelineOptions()
		if selectMaxBlocks > 0 {
			opts.MaxBlocks = selectMaxBlocks
		}

		env, err := initPipeline(ctx, opts)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Pipeline.RunSelect(ctx)
		if err != nil {
			return eris.Wrap(err, "select run")
		}

		zap.L().Info("selection complete",
			zap.String("run_id", run.ID),
			zap.Int("blocks", run.Result.Blocks),
			zap.Int("sites", run.Result.Sites),
			zap.Int("shortfall", run.Result.Shortfall),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	selectCmd.Flags().IntVar(&selectMaxBlocks, "max-blocks", 0, "blocks to select (default from config)")
	rootCmd.AddCommand(selectCmd)
}
