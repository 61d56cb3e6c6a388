package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cruiseplan/siteselect/internal/export"
	"github.com/cruiseplan/siteselect/internal/model"
	"github.com/cruiseplan/siteselect/internal/store"
	"github.com/cruiseplan/siteselect/internal/vector"
)

var (
	exportRunID string
	exportDir   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a run's stored layers to GeoJSON, shapefile and XLSX",
	Long:  "Reads the final layers of a run back from the store and writes them out for GIS tools and field crews. Without --run the latest complete run is exported.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		run, err := resolveRun(ctx, st, exportRunID)
		if err != nil {
			return err
		}

		dir := exportDir
		if dir == "" {
			dir = cfg.Paths.OutputDir
		}

		files, err := exportRun(ctx, st, run, dir)
		if err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("run_id", run.ID),
			zap.Int("files", len(files)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			RunID string   `json:"run_id"`
			Files []string `json:"files"`
		}{run.ID, files})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportRunID, "run", "", "run to export (default latest complete run)")
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "output directory (default from config)")
	rootCmd.AddCommand(exportCmd)
}

// resolveRun picks the requested run, or the latest complete one.
func resolveRun(ctx context.Context, st store.Store, runID string) (*model.Run, error) {
	if runID != "" {
		run, err := st.GetRun(ctx, runID)
		if err != nil {
			return nil, eris.Wrap(err, "resolve run")
		}
		return run, nil
	}

	runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatusComplete, Limit: 1})
	if err != nil {
		return nil, eris.Wrap(err, "resolve run")
	}
	if len(runs) == 0 {
		return nil, eris.New("no complete runs to export")
	}
	return &runs[0], nil
}

// exportRun writes every stored layer the run has: site layers for a
// survey run, plot layers for a validation run, and a workbook carrying
// whatever is present.
func exportRun(ctx context.Context, st store.Store, run *model.Run, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "create export directory")
	}

	sites, err := st.ListSites(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	plots, err := st.ListValidationSites(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	if len(sites) == 0 && len(plots) == 0 {
		return nil, eris.Errorf("run %s has no stored layers to export", run.ID)
	}

	var files []string
	if len(sites) > 0 {
		shp := filepath.Join(dir, "sites.shp")
		if err := vector.WriteSites(shp, sites); err != nil {
			return nil, err
		}
		gj := filepath.Join(dir, "sites.geojson")
		if err := export.SitesGeoJSON(gj, sites); err != nil {
			return nil, err
		}
		files = append(files, shp, gj)
	}
	if len(plots) > 0 {
		shp := filepath.Join(dir, "validation.shp")
		if err := vector.WriteValidation(shp, plots); err != nil {
			return nil, err
		}
		gj := filepath.Join(dir, "validation.geojson")
		if err := export.ValidationGeoJSON(gj, plots); err != nil {
			return nil, err
		}
		files = append(files, shp, gj)
	}

	wb := filepath.Join(dir, "sites.xlsx")
	if err := export.WriteWorkbook(wb, sites, plots); err != nil {
		return nil, err
	}
	files = append(files, wb)

	return files, nil
}
