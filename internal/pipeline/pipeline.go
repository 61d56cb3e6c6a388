// Package pipeline orchestrates survey-site selection runs: per-tile
// lattice generation and metric extraction, block aggregation, site
// sampling and the final artifacts, with run bookkeeping in the store.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cruiseplan/siteselect/internal/grid"
	"github.com/cruiseplan/siteselect/internal/manifest"
	"github.com/cruiseplan/siteselect/internal/metrics"
	"github.com/cruiseplan/siteselect/internal/model"
	"github.com/cruiseplan/siteselect/internal/region"
	"github.com/cruiseplan/siteselect/internal/scoring"
	"github.com/cruiseplan/siteselect/internal/store"
)

// Options configure a pipeline over one set of inputs.
type Options struct {
	Boundary   string
	Manifest   string
	Cover      string
	Legend     string // optional, built-in legend when empty
	Scoring    string // optional, built-in tables when empty
	OutputDir  string
	SRID       int
	CellAreaHa float64
	BlockSideM float64
	MaxBlocks  int
	Workers    int  // 0 means cores minus one
	Force      bool // reprocess tiles that already have artifacts
}

// Pipeline runs the selection stages over a fixed set of inputs. The
// boundary and manifest load at construction: without them there is
// nothing to run, so a missing one fails fast instead of leaving a
// half-recorded run behind.
type Pipeline struct {
	opts    Options
	store   store.Store
	study   *region.StudyArea
	entries []manifest.Entry
	gen     *grid.Generator
	legend  metrics.Legend
	thr     metrics.Thresholds
	engine  *scoring.Engine
	workers int
}

// New loads the pipeline inputs and resolves defaults.
func New(opts Options, st store.Store) (*Pipeline, error) {
	study, err := region.Load(opts.Boundary, opts.SRID)
	if err != nil {
		return nil, err
	}
	entries, err := manifest.Load(opts.Manifest)
	if err != nil {
		return nil, err
	}
	gen, err := grid.NewGenerator(study, opts.CellAreaHa)
	if err != nil {
		return nil, err
	}

	legend := metrics.DefaultLegend()
	if opts.Legend != "" {
		if legend, err = metrics.LoadLegend(opts.Legend); err != nil {
			return nil, err
		}
	}
	engine := scoring.Default()
	if opts.Scoring != "" {
		if engine, err = scoring.LoadEngine(opts.Scoring); err != nil {
			return nil, err
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() - 1
		if workers < 1 {
			workers = 1
		}
	}

	return &Pipeline{
		opts:    opts,
		store:   st,
		study:   study,
		entries: entries,
		gen:     gen,
		legend:  legend,
		thr:     metrics.DefaultThresholds(),
		engine:  engine,
		workers: workers,
	}, nil
}

// Run executes the full pipeline: extraction over every manifest tile,
// block selection, site sampling and the final artifacts.
func (p *Pipeline) Run(ctx context.Context) (*model.Run, error) {
	run, err := p.begin(ctx, model.RunKindSurvey)
	if err != nil {
		return nil, err
	}
	result := newRunResult()

	p.setStatus(ctx, run.ID, model.RunStatusExtracting)
	if err := p.trackPhase(ctx, run.ID, "extract", result, func() (*model.PhaseResult, error) {
		return p.extractPhase(ctx, run.ID, result)
	}); err != nil {
		return p.fail(ctx, run, err)
	}

	if err := p.selectAndFinish(ctx, run, result); err != nil {
		return p.fail(ctx, run, err)
	}
	return p.finish(ctx, run, result)
}

// RunExtract runs extraction only, leaving selection to a later run.
func (p *Pipeline) RunExtract(ctx context.Context) (*model.Run, error) {
	run, err := p.begin(ctx, model.RunKindSurvey)
	if err != nil {
		return nil, err
	}
	result := newRunResult()

	p.setStatus(ctx, run.ID, model.RunStatusExtracting)
	if err := p.trackPhase(ctx, run.ID, "extract", result, func() (*model.PhaseResult, error) {
		return p.extractPhase(ctx, run.ID, result)
	}); err != nil {
		return p.fail(ctx, run, err)
	}
	return p.finish(ctx, run, result)
}

// RunSelect ranks blocks and draws sites from existing tile artifacts.
func (p *Pipeline) RunSelect(ctx context.Context) (*model.Run, error) {
	run, err := p.begin(ctx, model.RunKindSurvey)
	if err != nil {
		return nil, err
	}
	result := newRunResult()

	if err := p.selectAndFinish(ctx, run, result); err != nil {
		return p.fail(ctx, run, err)
	}
	return p.finish(ctx, run, result)
}

func newRunResult() *model.RunResult {
	return &model.RunResult{Rejected: make(map[model.RejectReason]int)}
}

func (p *Pipeline) begin(ctx context.Context, kind model.RunKind) (*model.Run, error) {
	run, err := p.store.CreateRun(ctx, kind, p.runParams())
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	zap.L().Info("pipeline: run started",
		zap.String("run_id", run.ID),
		zap.String("kind", string(kind)),
		zap.Int("tiles", len(p.entries)),
		zap.Int("workers", p.workers),
	)
	return run, nil
}

func (p *Pipeline) fail(ctx context.Context, run *model.Run, err error) (*model.Run, error) {
	if fErr := p.store.FailRun(ctx, run.ID, err.Error()); fErr != nil {
		zap.L().Warn("pipeline: record failure", zap.String("run_id", run.ID), zap.Error(fErr))
	}
	run.Status = model.RunStatusFailed
	run.Error = err.Error()
	return run, err
}

func (p *Pipeline) finish(ctx context.Context, run *model.Run, result *model.RunResult) (*model.Run, error) {
	if err := p.store.FinishRun(ctx, run.ID, result); err != nil {
		return p.fail(ctx, run, eris.Wrap(err, "pipeline: finish run"))
	}
	run.Status = model.RunStatusComplete
	run.Result = result
	zap.L().Info("pipeline: run complete",
		zap.String("run_id", run.ID),
		zap.Int("retained", result.Retained),
		zap.Int("sites", result.Sites),
	)
	return run, nil
}

// setStatus updates the run's coarse status. Failing to record it is
// logged, not fatal: the phases carry the authoritative history.
func (p *Pipeline) setStatus(ctx context.Context, runID string, status model.RunStatus) {
	if err := p.store.UpdateRunStatus(ctx, runID, status); err != nil {
		zap.L().Warn("pipeline: update status", zap.String("run_id", runID), zap.Error(err))
	}
}

// trackPhase records one phase around fn: a phase row before, the
// outcome with duration after, and the result appended to the run.
func (p *Pipeline) trackPhase(ctx context.Context, runID, name string, result *model.RunResult, fn func() (*model.PhaseResult, error)) error {
	phase, phaseErr := p.store.CreatePhase(ctx, runID, name)
	if phaseErr != nil {
		zap.L().Warn("pipeline: create phase", zap.String("phase", name), zap.Error(phaseErr))
	}

	start := time.Now()
	pr, err := fn()
	duration := time.Since(start).Milliseconds()

	if pr == nil {
		pr = &model.PhaseResult{}
	}
	pr.Name = name
	pr.Duration = duration

	if err != nil {
		pr.Status = model.PhaseStatusFailed
		pr.Error = err.Error()
		zap.L().Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
	} else {
		if pr.Status == "" {
			pr.Status = model.PhaseStatusComplete
		}
		zap.L().Info("pipeline: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
		)
	}

	if phase != nil {
		_ = p.store.CompletePhase(ctx, phase.ID, pr)
	}
	result.Phases = append(result.Phases, *pr)
	return err
}

func (p *Pipeline) runParams() model.RunParams {
	return model.RunParams{
		Boundary:   p.opts.Boundary,
		Manifest:   p.opts.Manifest,
		Cover:      p.opts.Cover,
		OutputDir:  p.opts.OutputDir,
		CellAreaHa: p.opts.CellAreaHa,
		BlockSideM: p.opts.BlockSideM,
		MaxBlocks:  p.opts.MaxBlocks,
		Workers:    p.workers,
	}
}

func (p *Pipeline) tileArtifact(tileID string) string {
	return filepath.Join(p.opts.OutputDir, "tiles", tileID+"_scored.shp")
}

func (p *Pipeline) gridArtifact(tileID string) string {
	return filepath.Join(p.opts.OutputDir, "grid", tileID+"_grid.shp")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
