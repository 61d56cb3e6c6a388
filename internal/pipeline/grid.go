package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cruiseplan/siteselect/internal/manifest"
	"github.com/cruiseplan/siteselect/internal/model"
	"github.com/cruiseplan/siteselect/internal/raster"
	"github.com/cruiseplan/siteselect/internal/vector"
)

// RunGrid generates the candidate lattice for every manifest tile and
// writes each as a grid artifact, without extracting metrics.
func (p *Pipeline) RunGrid(ctx context.Context) (*model.Run, error) {
	run, err := p.begin(ctx, model.RunKindSurvey)
	if err != nil {
		return nil, err
	}
	result := newRunResult()

	p.setStatus(ctx, run.ID, model.RunStatusExtracting)
	if err := p.trackPhase(ctx, run.ID, "grid", result, func() (*model.PhaseResult, error) {
		return p.gridPhase(ctx, run.ID, result)
	}); err != nil {
		return p.fail(ctx, run, err)
	}
	return p.finish(ctx, run, result)
}

func (p *Pipeline) gridPhase(ctx context.Context, runID string, result *model.RunResult) (*model.PhaseResult, error) {
	var written, skipped int
	for _, entry := range p.entries {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "pipeline: grid generation aborted")
		}
		tr := p.gridTile(entry)
		if sErr := p.store.UpsertTile(ctx, runID, tr); sErr != nil {
			zap.L().Warn("pipeline: record tile", zap.String("tile", entry.TileID), zap.Error(sErr))
		}

		result.Tiles++
		result.Candidates += tr.Candidates
		switch {
		case tr.Resumed:
			skipped++
		case tr.Status == model.TileStatusComplete:
			written++
		}
	}

	return &model.PhaseResult{Metadata: map[string]any{
		"tiles":   result.Tiles,
		"written": written,
		"skipped": skipped,
	}}, nil
}

// gridTile tessellates one tile's extent and writes the lattice. An
// existing artifact is reused unless Force is set.
func (p *Pipeline) gridTile(entry manifest.Entry) model.TileResult {
	start := time.Now()
	log := zap.L().With(zap.String("tile", entry.TileID))

	tr := model.TileResult{
		TileID:   entry.TileID,
		Artifact: p.gridArtifact(entry.TileID),
	}
	done := func(status model.TileStatus) model.TileResult {
		tr.Status = status
		tr.DurationMS = time.Since(start).Milliseconds()
		return tr
	}
	fail := func(err error) model.TileResult {
		tr.Error = err.Error()
		log.Warn("pipeline: grid tile failed", zap.Error(err))
		return done(model.TileStatusFailed)
	}

	if !p.opts.Force && fileExists(tr.Artifact) {
		prior, err := vector.ReadGrid(tr.Artifact)
		if err == nil {
			tr.Resumed = true
			tr.Candidates = len(prior)
			log.Info("pipeline: grid resumed from artifact", zap.Int("cells", tr.Candidates))
			return done(model.TileStatusComplete)
		}
		log.Warn("pipeline: grid artifact unreadable, regenerating", zap.Error(err))
	}

	density, err := raster.Open(entry.DensityPath)
	if err != nil {
		return fail(eris.Wrap(err, "open density layer"))
	}
	extent := raster.Extent(density)
	_ = density.Close()

	cells := p.gen.Cells(entry.TileID, extent)
	tr.Candidates = len(cells)
	if len(cells) == 0 {
		tr.Artifact = ""
		log.Info("pipeline: no lattice cells inside the boundary")
		return done(model.TileStatusEmpty)
	}

	if err := os.MkdirAll(filepath.Dir(tr.Artifact), 0o755); err != nil {
		return fail(eris.Wrap(err, "create artifact directory"))
	}
	if err := vector.WriteGrid(tr.Artifact, cells); err != nil {
		return fail(err)
	}

	log.Info("pipeline: grid tile complete", zap.Int("cells", tr.Candidates))
	return done(model.TileStatusComplete)
}
