package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cruiseplan/siteselect/internal/model"
	"github.com/cruiseplan/siteselect/internal/store"
)

var (
	statusKind   string
	statusFilter string
	statusLimit  int
	statusJSON   bool
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show run history or the progress of one run",
	Long:  "Without arguments lists recent runs. With a run ID shows the run's phases, per-tile progress and, for validation runs, the per-area plot yield.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("status"); err != nil {
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

		if len(args) == 1 {
			return showRun(ctx, st, args[0])
		}
		return listRuns(ctx, st)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusKind, "kind", "", "filter by run kind (survey, validation)")
	statusCmd.Flags().StringVar(&statusFilter, "status", "", "filter by run status (queued, extracting, complete, failed, ...)")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 50, "max number of runs to display")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "emit JSON instead of tables")
	rootCmd.AddCommand(statusCmd)
}

func listRuns(ctx context.Context, st store.Store) error {
	runs, err := st.ListRuns(ctx, store.RunFilter{
		Kind:   model.RunKind(statusKind),
		Status: model.RunStatus(statusFilter),
		Limit:  statusLimit,
	})
	if err != nil {
		return eris.Wrap(err, "list runs")
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "No runs found.")
		return nil
	}

	formatRunsList(os.Stdout, runs)
	return nil
}

func showRun(ctx context.Context, st store.Store, runID string) error {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return eris.Wrap(err, "show run")
	}
	tiles, err := st.ListTiles(ctx, run.ID)
	if err != nil {
		return eris.Wrap(err, "list tiles")
	}
	var samples []model.AreaSample
	if run.Kind == model.RunKindValidation {
		if samples, err = st.ListAreaSamples(ctx, run.ID); err != nil {
			return eris.Wrap(err, "list area samples")
		}
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Run     *model.Run         `json:"run"`
			Tiles   []model.TileResult `json:"tiles,omitempty"`
			Samples []model.AreaSample `json:"samples,omitempty"`
		}{run, tiles, samples})
	}

	formatRunDetail(os.Stdout, run, tiles, samples)
	return nil
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tSTATUS\tRESULT\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Kind,
			r.Status,
			runSummary(r),
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// runSummary condenses a run's outcome into one table cell.
func runSummary(r model.Run) string {
	if r.Status == model.RunStatusFailed {
		return truncate(r.Error, 40)
	}
	if r.Result == nil {
		return ""
	}
	if r.Result.Validation != nil {
		return fmt.Sprintf("%d plots", r.Result.Validation.Plots)
	}
	switch {
	case r.Result.Sites > 0:
		return fmt.Sprintf("%d sites", r.Result.Sites)
	case r.Result.Retained > 0:
		return fmt.Sprintf("%d retained", r.Result.Retained)
	default:
		return fmt.Sprintf("%d cells", r.Result.Candidates)
	}
}

// formatRunDetail writes one run with its phases, tiles and area yield.
func formatRunDetail(out io.Writer, run *model.Run, tiles []model.TileResult, samples []model.AreaSample) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "Kind:\t%s\n", run.Kind)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	_, _ = fmt.Fprintf(w, "Created:\t%s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n", run.UpdatedAt.Sub(run.CreatedAt).Round(time.Second))
	if run.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", run.Error)
	}
	if r := run.Result; r != nil {
		if r.Validation != nil {
			_, _ = fmt.Fprintf(w, "Plots:\t%d kept, %d discarded, %d areas short\n",
				r.Validation.Plots, r.Validation.Discarded, r.Validation.Shortfalls)
		} else {
			_, _ = fmt.Fprintf(w, "Candidates:\t%d (%d retained)\n", r.Candidates, r.Retained)
			if r.Shortfall > 0 {
				_, _ = fmt.Fprintf(w, "Sites:\t%d (%d blocks short)\n", r.Sites, r.Shortfall)
			} else {
				_, _ = fmt.Fprintf(w, "Sites:\t%d\n", r.Sites)
			}
		}
	}
	_ = w.Flush()

	if run.Result != nil && len(run.Result.Phases) > 0 {
		_, _ = fmt.Fprintln(out, "\nPhases:")
		pw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(pw, "NAME\tSTATUS\tDURATION\tERROR")
		for _, ph := range run.Result.Phases {
			_, _ = fmt.Fprintf(pw, "%s\t%s\t%s\t%s\n",
				ph.Name, ph.Status, time.Duration(ph.Duration)*time.Millisecond, truncate(ph.Error, 40))
		}
		_ = pw.Flush()
	}

	if len(tiles) > 0 {
		_, _ = fmt.Fprintln(out, "\nTiles:")
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "TILE\tSTATUS\tCANDIDATES\tRETAINED\tFAILURES\tNOTE")
		for _, tile := range tiles {
			note := tile.Error
			if note == "" && tile.Resumed {
				note = "resumed"
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
				tile.TileID, tile.Status, tile.Candidates, tile.Retained, tile.Failures, truncate(note, 40))
		}
		_ = tw.Flush()
	}

	if len(samples) > 0 {
		_, _ = fmt.Fprintln(out, "\nAreas:")
		aw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(aw, "AREA\tPOPULATION\tREQUESTED\tKEPT\tDISCARDED\tSHORTFALL")
		for _, s := range samples {
			short := ""
			if s.Shortfall {
				short = "yes"
			}
			_, _ = fmt.Fprintf(aw, "%s\t%d\t%d\t%d\t%d\t%s\n",
				s.AreaID, s.Population, s.Requested, s.Kept, s.Discarded, short)
		}
		_ = aw.Flush()
	}
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
