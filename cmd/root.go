package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cruiseplan/siteselect/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "siteselect",
	Short: "Survey-site selection pipeline for large-area forest inventories",
	Long:  "Lays a sampling lattice over raster tiles, extracts canopy metrics per cell, ranks regional blocks by retained candidates, and draws one reproducible survey site per block.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
