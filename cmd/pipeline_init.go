package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/cruiseplan/siteselect/internal/pipeline"
	"github.com/cruiseplan/siteselect/internal/store"
)

// pipelineEnv bundles the store and pipeline a selection command runs on.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

func (e *pipelineEnv) Close() {
	_ = e.Store.Close()
}

// initPipeline opens the store, runs migrations and builds a pipeline
// over the given options.
func initPipeline(ctx context.Context, opts pipeline.Options) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	p, err := pipeline.New(opts, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &pipelineEnv{Store: st, Pipeline: p}, nil
}

// pipelineOptions maps the configuration onto pipeline options. Commands
// overlay their per-invocation flags before building the pipeline.
func pipelineOptions() pipeline.Options {
	return pipeline.Options{
		Boundary:   cfg.Paths.Boundary,
		Manifest:   cfg.Paths.Manifest,
		Cover:      cfg.Paths.Cover,
		Legend:     cfg.Paths.Legend,
		Scoring:    cfg.Paths.Scoring,
		OutputDir:  cfg.Paths.OutputDir,
		SRID:       cfg.Grid.SRID,
		CellAreaHa: cfg.Grid.CellAreaHa,
		BlockSideM: cfg.Select.BlockSideM,
		MaxBlocks:  cfg.Select.MaxBlocks,
		Workers:    cfg.Extract.Workers,
	}
}
