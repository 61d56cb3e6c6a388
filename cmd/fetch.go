package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cruiseplan/siteselect/internal/fetcher"
	"github.com/cruiseplan/siteselect/internal/manifest"
)

var (
	fetchWorkers int
	fetchForce   bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download missing tile rasters from the manifest mirrors",
	Long:  "Downloads every manifest layer that is absent locally over HTTP or FTP. Failed layers are tallied and skipped, so acquisition continues past dead mirror links.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		entries, err := manifest.Load(cfg.Paths.Manifest)
		if err != nil {
			return err
		}

		timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
		mux := fetcher.NewMux(
			fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
				UserAgent:  cfg.Fetch.UserAgent,
				Timeout:    timeout,
				MaxRetries: cfg.Fetch.MaxRetries,
			}),
			fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}),
		)

		workers := fetchWorkers
		if workers == 0 {
			workers = cfg.Fetch.Workers
		}

		res, err := fetcher.FetchTiles(ctx, mux, entries, fetcher.TileFetchOptions{
			Workers: workers,
			Force:   fetchForce,
		})
		if err != nil {
			return eris.Wrap(err, "fetch tiles")
		}

		zap.L().Info("fetch complete",
			zap.Int("fetched", res.Fetched),
			zap.Int("skipped", res.Skipped),
			zap.Int("missing", res.Missing),
			zap.Int("failed", res.Failed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	fetchCmd.Flags().IntVar(&fetchWorkers, "workers", 0, "concurrent downloads (default from config)")
	fetchCmd.Flags().BoolVar(&fetchForce, "force", false, "re-download layers that already exist locally")
	rootCmd.AddCommand(fetchCmd)
}
