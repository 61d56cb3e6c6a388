package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cruiseplan/siteselect/internal/export"
	"github.com/cruiseplan/siteselect/internal/manifest"
	"github.com/cruiseplan/siteselect/internal/model"
	"github.com/cruiseplan/siteselect/internal/raster"
	"github.com/cruiseplan/siteselect/internal/region"
	"github.com/cruiseplan/siteselect/internal/report"
	"github.com/cruiseplan/siteselect/internal/validation"
	"github.com/cruiseplan/siteselect/internal/vector"
)

// ValidationOptions configure a validation plot run.
type ValidationOptions struct {
	Areas     string // polygon file with the target stands
	AreaField string
	Params    validation.Params
}

// RunValidation lays validation plots around every target area and
// records them as a run of its own.
func (p *Pipeline) RunValidation(ctx context.Context, vopts ValidationOptions) (*model.Run, error) {
	areas, err := validation.LoadAreas(vopts.Areas, vopts.AreaField)
	if err != nil {
		return nil, err
	}
	tiles, openLayer, err := p.tileIndex()
	if err != nil {
		return nil, err
	}
	gen, err := validation.NewGenerator(p.study, tiles, openLayer, vopts.Params)
	if err != nil {
		return nil, err
	}

	params := p.runParams()
	params.Seed = int64(vopts.Params.Seed)
	run, err := p.store.CreateRun(ctx, model.RunKindValidation, params)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	zap.L().Info("pipeline: validation run started",
		zap.String("run_id", run.ID),
		zap.Int("areas", len(areas)),
	)
	result := newRunResult()

	p.setStatus(ctx, run.ID, model.RunStatusValidating)
	if err := p.trackPhase(ctx, run.ID, "validate", result, func() (*model.PhaseResult, error) {
		plots, samples, err := gen.Generate(ctx, areas)
		if err != nil {
			return nil, err
		}

		vr := &model.ValidationResult{Areas: len(samples), Plots: len(plots)}
		for _, s := range samples {
			vr.Discarded += s.Discarded
			if s.Shortfall {
				vr.Shortfalls++
			}
		}
		result.Validation = vr

		if err := p.writeValidationFinals(plots); err != nil {
			return nil, err
		}
		if err := p.store.ReplaceValidation(ctx, run.ID, plots, samples); err != nil {
			return nil, eris.Wrap(err, "pipeline: store validation plots")
		}
		return &model.PhaseResult{Metadata: map[string]any{
			"areas":      vr.Areas,
			"plots":      vr.Plots,
			"discarded":  vr.Discarded,
			"shortfalls": vr.Shortfalls,
		}}, nil
	}); err != nil {
		return p.fail(ctx, run, err)
	}

	if err := p.trackPhase(ctx, run.ID, "report", result, func() (*model.PhaseResult, error) {
		result.Report = report.Build(result, nil).Render()
		return nil, nil
	}); err != nil {
		return p.fail(ctx, run, err)
	}
	return p.finish(ctx, run, result)
}

// tileIndex builds the tile extents from the manifest's density layers
// and returns an opener the generator uses for density reads. Tiles
// whose layers cannot be opened are skipped; plots over them end up
// discarded rather than failing the run.
func (p *Pipeline) tileIndex() (*region.TileIndex, validation.OpenLayerFunc, error) {
	byID := manifest.Index(p.entries)
	tiles := make([]region.TileBounds, 0, len(p.entries))
	for _, entry := range p.entries {
		l, err := raster.Open(entry.DensityPath)
		if err != nil {
			zap.L().Warn("pipeline: density layer unreadable, tile skipped",
				zap.String("tile", entry.TileID),
				zap.Error(err),
			)
			continue
		}
		tiles = append(tiles, region.TileBounds{ID: entry.TileID, Bounds: raster.Extent(l)})
		_ = l.Close()
	}

	open := func(tileID string) (raster.Layer, error) {
		entry, ok := byID[tileID]
		if !ok {
			return nil, eris.Errorf("pipeline: no manifest entry for tile %s", tileID)
		}
		return raster.Open(entry.DensityPath)
	}
	return region.NewTileIndex(tiles), open, nil
}

func (p *Pipeline) writeValidationFinals(plots []model.ValidationSite) error {
	if err := os.MkdirAll(p.opts.OutputDir, 0o755); err != nil {
		return eris.Wrap(err, "pipeline: create output directory")
	}
	if err := vector.WriteValidation(filepath.Join(p.opts.OutputDir, "validation.shp"), plots); err != nil {
		return err
	}
	return export.ValidationGeoJSON(filepath.Join(p.opts.OutputDir, "validation.geojson"), plots)
}
