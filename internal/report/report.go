// Package report renders the end-of-run summary: extraction tallies,
// rejection breakdown, score distribution and sampling yield.
package report

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat"

	"github.com/cruiseplan/siteselect/internal/model"
)

// ScoreStats describes the total-score distribution of the retained
// candidates.
type ScoreStats struct {
	N      int
	Mean   float64
	StdDev float64
	Min    float64
	Median float64
	P90    float64
	Max    float64
}

// Summary pairs a run result with its score distribution, ready to
// render.
type Summary struct {
	Result *model.RunResult
	Scores ScoreStats
}

// Build computes distribution statistics over the total scores of the
// retained candidates. An empty slice yields a summary without a
// distribution section.
func Build(res *model.RunResult, totals []float64) Summary {
	s := Summary{Result: res}
	if len(totals) == 0 {
		return s
	}
	sorted := make([]float64, len(totals))
	copy(sorted, totals)
	sort.Float64s(sorted)

	s.Scores = ScoreStats{
		N:      len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Min:    sorted[0],
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:    stat.Quantile(0.9, stat.Empirical, sorted, nil),
		Max:    sorted[len(sorted)-1],
	}
	if len(sorted) > 1 {
		s.Scores.StdDev = stat.StdDev(sorted, nil)
	}
	return s
}

// Render formats the summary as the text block stored on the run and
// printed at the end of a run.
func (s Summary) Render() string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	res := s.Result
	b.WriteString("# Site Selection Report\n\n")

	b.WriteString("## Extraction\n")
	p.Fprintf(&b, "- Tiles processed: %d\n", res.Tiles)
	p.Fprintf(&b, "- Candidate cells: %d\n", res.Candidates)
	p.Fprintf(&b, "- Retained: %d\n", res.Retained)
	p.Fprintf(&b, "- Missing spatial match: %d\n", res.Unmatched)
	p.Fprintf(&b, "- Raster read failures: %d\n", res.Failures)

	if len(res.Rejected) > 0 {
		b.WriteString("\n## Rejections\n")
		reasons := make([]string, 0, len(res.Rejected))
		for r := range res.Rejected {
			reasons = append(reasons, string(r))
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			p.Fprintf(&b, "- %s: %d\n", r, res.Rejected[model.RejectReason(r)])
		}
	}

	if s.Scores.N > 0 {
		b.WriteString("\n## Score distribution\n")
		fmt.Fprintf(&b, "- Mean: %.2f (stddev %.2f)\n", s.Scores.Mean, s.Scores.StdDev)
		fmt.Fprintf(&b, "- Min / median / p90 / max: %.0f / %.0f / %.0f / %.0f\n",
			s.Scores.Min, s.Scores.Median, s.Scores.P90, s.Scores.Max)
	}

	if res.Blocks > 0 || res.Sites > 0 || res.Shortfall > 0 {
		b.WriteString("\n## Selection\n")
		p.Fprintf(&b, "- Blocks kept: %d\n", res.Blocks)
		p.Fprintf(&b, "- Sites drawn: %d\n", res.Sites)
		if res.Shortfall > 0 {
			p.Fprintf(&b, "- WARNING: %d blocks short of the configured maximum\n", res.Shortfall)
		}
	}

	if v := res.Validation; v != nil {
		b.WriteString("\n## Validation plots\n")
		p.Fprintf(&b, "- Areas: %d\n", v.Areas)
		p.Fprintf(&b, "- Plots kept: %d\n", v.Plots)
		p.Fprintf(&b, "- Discarded by density check: %d\n", v.Discarded)
		if v.Shortfalls > 0 {
			p.Fprintf(&b, "- WARNING: %d areas short of the requested plot count\n", v.Shortfalls)
		}
	}

	if len(res.Phases) > 0 {
		b.WriteString("\n## Phases\n")
		for _, ph := range res.Phases {
			fmt.Fprintf(&b, "- %s: %s (%dms)\n", ph.Name, ph.Status, ph.Duration)
			if ph.Error != "" {
				fmt.Fprintf(&b, "  Error: %s\n", ph.Error)
			}
		}
	}

	return b.String()
}
