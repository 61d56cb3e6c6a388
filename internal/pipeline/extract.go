package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cruiseplan/siteselect/internal/manifest"
	"github.com/cruiseplan/siteselect/internal/metrics"
	"github.com/cruiseplan/siteselect/internal/model"
	"github.com/cruiseplan/siteselect/internal/raster"
	"github.com/cruiseplan/siteselect/internal/vector"
)

// extractPhase walks every manifest tile, extracts and scores its
// candidates, and folds the per-tile counts into the run result. A
// failed tile is recorded and skipped; only cancellation or a missing
// land-cover mosaic aborts the phase.
func (p *Pipeline) extractPhase(ctx context.Context, runID string, result *model.RunResult) (*model.PhaseResult, error) {
	cover, err := raster.Open(p.opts.Cover)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open land-cover layer %s", p.opts.Cover)
	}
	defer cover.Close()

	var resumed, empty, failedTiles int
	for _, entry := range p.entries {
		tr, err := p.processTile(ctx, entry, cover)
		if err != nil {
			return nil, err
		}
		if sErr := p.store.UpsertTile(ctx, runID, tr); sErr != nil {
			zap.L().Warn("pipeline: record tile", zap.String("tile", entry.TileID), zap.Error(sErr))
		}

		result.Tiles++
		result.Candidates += tr.Candidates
		result.Retained += tr.Retained
		result.Failures += tr.Failures
		result.Unmatched += tr.Unmatched
		for reason, n := range tr.Rejected {
			result.Rejected[reason] += n
		}

		switch {
		case tr.Resumed:
			resumed++
		case tr.Status == model.TileStatusFailed:
			failedTiles++
		case tr.Status == model.TileStatusEmpty:
			empty++
		}
	}

	return &model.PhaseResult{Metadata: map[string]any{
		"tiles":        result.Tiles,
		"resumed":      resumed,
		"empty":        empty,
		"failed_tiles": failedTiles,
		"candidates":   result.Candidates,
		"retained":     result.Retained,
	}}, nil
}

// processTile extracts one tile. Errors stay inside the TileResult so
// one bad tile never sinks the run; the returned error is reserved for
// cancellation.
func (p *Pipeline) processTile(ctx context.Context, entry manifest.Entry, cover raster.Layer) (model.TileResult, error) {
	start := time.Now()
	log := zap.L().With(zap.String("tile", entry.TileID))

	tr := model.TileResult{
		TileID:   entry.TileID,
		Rejected: make(map[model.RejectReason]int),
		Artifact: p.tileArtifact(entry.TileID),
	}
	done := func(status model.TileStatus) (model.TileResult, error) {
		tr.Status = status
		tr.DurationMS = time.Since(start).Milliseconds()
		return tr, nil
	}
	fail := func(err error) (model.TileResult, error) {
		tr.Error = err.Error()
		log.Warn("pipeline: tile failed", zap.Error(err))
		return done(model.TileStatusFailed)
	}

	if !p.opts.Force && fileExists(tr.Artifact) {
		prior, err := vector.ReadScored(tr.Artifact)
		if err == nil {
			tr.Resumed = true
			tr.Retained = len(prior)
			log.Info("pipeline: tile resumed from artifact", zap.Int("retained", tr.Retained))
			return done(model.TileStatusComplete)
		}
		log.Warn("pipeline: tile artifact unreadable, reprocessing", zap.Error(err))
	}

	density, err := raster.Open(entry.DensityPath)
	if err != nil {
		return fail(eris.Wrap(err, "open density layer"))
	}
	defer density.Close()

	leaf, err := raster.Open(entry.LeafPath)
	if err != nil {
		return fail(eris.Wrap(err, "open tree-type layer"))
	}
	defer leaf.Close()

	cells, err := p.tileCells(entry, density)
	if err != nil {
		return fail(err)
	}
	tr.Candidates = len(cells)
	if len(cells) == 0 {
		tr.Artifact = ""
		log.Info("pipeline: no lattice cells inside the boundary")
		return done(model.TileStatusEmpty)
	}

	ex := metrics.NewExtractor(metrics.Layers{Density: density, Leaf: leaf, Cover: cover}, p.legend, p.thr)

	results := make([]metrics.Result, len(cells))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, c := range cells {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			results[i] = ex.Extract(c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.TileResult{}, eris.Wrap(err, "pipeline: extraction aborted")
	}

	var scored []model.Scored
	for _, res := range results {
		switch res.Outcome {
		case metrics.OutcomeRetained:
			scores, err := p.engine.Score(res.Metrics)
			if err != nil {
				tr.Failures++
				log.Warn("pipeline: scoring failed", zap.String("cell", res.Candidate.ID), zap.Error(err))
				continue
			}
			scored = append(scored, model.Scored{
				Candidate: res.Candidate,
				Metrics:   res.Metrics,
				Scores:    scores,
			})
		case metrics.OutcomeRejected:
			tr.Rejected[res.Rejection.Reason]++
		case metrics.OutcomeUnmatched:
			tr.Unmatched++
		case metrics.OutcomeFailed:
			tr.Failures++
			log.Warn("pipeline: cell extraction failed", zap.String("cell", res.Candidate.ID), zap.Error(res.Err))
		}
	}

	tr.Retained = len(scored)
	if tr.Retained == 0 {
		tr.Artifact = ""
		log.Info("pipeline: no candidates retained", zap.Int("candidates", tr.Candidates))
		return done(model.TileStatusEmpty)
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].ID < scored[j].ID })
	if err := os.MkdirAll(filepath.Dir(tr.Artifact), 0o755); err != nil {
		return fail(eris.Wrap(err, "create artifact directory"))
	}
	if err := vector.WriteScored(tr.Artifact, scored); err != nil {
		return fail(err)
	}

	log.Info("pipeline: tile complete",
		zap.Int("candidates", tr.Candidates),
		zap.Int("retained", tr.Retained),
		zap.Int("failures", tr.Failures),
	)
	return done(model.TileStatusComplete)
}

// tileCells loads the tile's lattice: a pre-generated grid from the
// manifest when present, a grid artifact from an earlier grid run, or
// a fresh tessellation of the density layer's extent.
func (p *Pipeline) tileCells(entry manifest.Entry, density raster.Layer) ([]model.Candidate, error) {
	if entry.GridPath != "" {
		if fileExists(entry.GridPath) {
			return vector.ReadGrid(entry.GridPath)
		}
		zap.L().Warn("pipeline: manifest grid missing, regenerating",
			zap.String("tile", entry.TileID),
			zap.String("path", entry.GridPath),
		)
	}
	if artifact := p.gridArtifact(entry.TileID); fileExists(artifact) {
		return vector.ReadGrid(artifact)
	}
	return p.gen.Cells(entry.TileID, raster.Extent(density)), nil
}
