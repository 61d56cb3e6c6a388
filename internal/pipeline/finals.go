package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cruiseplan/siteselect/internal/export"
	"github.com/cruiseplan/siteselect/internal/model"
	"github.com/cruiseplan/siteselect/internal/region"
	"github.com/cruiseplan/siteselect/internal/report"
	"github.com/cruiseplan/siteselect/internal/selection"
	"github.com/cruiseplan/siteselect/internal/vector"
)

// selectAndFinish runs the select, sample and report phases over the
// tile artifacts on disk, so a standalone select run and the tail of a
// full run share one path.
func (p *Pipeline) selectAndFinish(ctx context.Context, run *model.Run, result *model.RunResult) error {
	var scored []model.Scored
	var sites []model.Site

	p.setStatus(ctx, run.ID, model.RunStatusSelecting)
	if err := p.trackPhase(ctx, run.ID, "select", result, func() (*model.PhaseResult, error) {
		var err error
		scored, err = p.gatherScored()
		if err != nil {
			return nil, err
		}
		idx, err := region.NewBlockIndex(p.study, p.opts.BlockSideM)
		if err != nil {
			return nil, err
		}
		selector, err := selection.NewSelector(idx, p.opts.MaxBlocks)
		if err != nil {
			return nil, err
		}
		sel := selector.Select(scored)

		result.Retained = len(scored)
		result.Blocks = len(sel.Blocks)
		result.Shortfall = sel.Shortfall
		result.Unmatched += sel.Unmatched

		sites = selection.Sample(sel)
		return &model.PhaseResult{Metadata: map[string]any{
			"candidates": len(scored),
			"blocks":     result.Blocks,
			"shortfall":  result.Shortfall,
		}}, nil
	}); err != nil {
		return err
	}

	p.setStatus(ctx, run.ID, model.RunStatusSampling)
	if err := p.trackPhase(ctx, run.ID, "sample", result, func() (*model.PhaseResult, error) {
		result.Sites = len(sites)
		if err := p.writeFinals(sites); err != nil {
			return nil, err
		}
		if err := p.store.ReplaceSites(ctx, run.ID, sites); err != nil {
			return nil, eris.Wrap(err, "pipeline: store sites")
		}
		return &model.PhaseResult{Metadata: map[string]any{"sites": len(sites)}}, nil
	}); err != nil {
		return err
	}

	return p.trackPhase(ctx, run.ID, "report", result, func() (*model.PhaseResult, error) {
		totals := make([]float64, 0, len(scored))
		for _, s := range scored {
			totals = append(totals, float64(s.Scores.Total))
		}
		result.Report = report.Build(result, totals).Render()
		return nil, nil
	})
}

// gatherScored merges every tile artifact into one id-ordered slice.
// Tiles without artifacts (empty or failed) are skipped; they already
// carry their own bookkeeping.
func (p *Pipeline) gatherScored() ([]model.Scored, error) {
	var scored []model.Scored
	var missing int
	for _, entry := range p.entries {
		artifact := p.tileArtifact(entry.TileID)
		if !fileExists(artifact) {
			missing++
			continue
		}
		tile, err := vector.ReadScored(artifact)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: artifact for tile %s", entry.TileID)
		}
		scored = append(scored, tile...)
	}
	if missing > 0 {
		zap.L().Info("pipeline: tiles without artifacts skipped", zap.Int("tiles", missing))
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].ID < scored[j].ID })
	return scored, nil
}

// writeFinals writes the selected sites in every delivery format.
func (p *Pipeline) writeFinals(sites []model.Site) error {
	if err := os.MkdirAll(p.opts.OutputDir, 0o755); err != nil {
		return eris.Wrap(err, "pipeline: create output directory")
	}
	if err := vector.WriteSites(filepath.Join(p.opts.OutputDir, "sites.shp"), sites); err != nil {
		return err
	}
	if err := export.SitesGeoJSON(filepath.Join(p.opts.OutputDir, "sites.geojson"), sites); err != nil {
		return err
	}
	return export.WriteWorkbook(filepath.Join(p.opts.OutputDir, "sites.xlsx"), sites, nil)
}
