// Package store persists runs, per-tile progress and the final site
// sets, backed by SQLite for single-machine runs and PostgreSQL for
// shared deployments.
package store

import (
	"context"

	"github.com/cruiseplan/siteselect/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Kind   model.RunKind   `json:"kind,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the selection pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, kind model.RunKind, params model.RunParams) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	FinishRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, cause string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Phases
	CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error)
	CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error

	// Tiles. UpsertTile replaces the tile's record on re-runs, so a
	// resumed run converges instead of accumulating rows.
	UpsertTile(ctx context.Context, runID string, tile model.TileResult) error
	ListTiles(ctx context.Context, runID string) ([]model.TileResult, error)

	// Sites. Replace semantics: a re-run of the sampling phase swaps
	// the whole set.
	ReplaceSites(ctx context.Context, runID string, sites []model.Site) error
	ListSites(ctx context.Context, runID string) ([]model.Site, error)

	// Validation plots and their per-area yield.
	ReplaceValidation(ctx context.Context, runID string, sites []model.ValidationSite, samples []model.AreaSample) error
	ListValidationSites(ctx context.Context, runID string) ([]model.ValidationSite, error)
	ListAreaSamples(ctx context.Context, runID string) ([]model.AreaSample, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
