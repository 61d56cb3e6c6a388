package model

import (
	"time"
)

// RunKind distinguishes survey-selection runs from standalone
// validation-plot runs.
type RunKind string

const (
	RunKindSurvey     RunKind = "survey"
	RunKindValidation RunKind = "validation"
)

// RunStatus represents the current state of a run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusExtracting RunStatus = "extracting"
	RunStatusSelecting  RunStatus = "selecting"
	RunStatusSampling   RunStatus = "sampling"
	RunStatusValidating RunStatus = "validating"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// Run is one recorded invocation of the pipeline.
type Run struct {
	ID        string     `json:"id"`
	Kind      RunKind    `json:"kind"`
	Status    RunStatus  `json:"status"`
	Params    RunParams  `json:"params"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunParams snapshots the inputs a run was started with.
type RunParams struct {
	Boundary   string  `json:"boundary,omitempty"`
	Manifest   string  `json:"manifest,omitempty"`
	Cover      string  `json:"cover,omitempty"`
	OutputDir  string  `json:"output_dir,omitempty"`
	CellAreaHa float64 `json:"cell_area_ha,omitempty"`
	BlockSideM float64 `json:"block_side_m,omitempty"`
	MaxBlocks  int     `json:"max_blocks,omitempty"`
	Workers    int     `json:"workers,omitempty"`
	Seed       int64   `json:"seed,omitempty"`
}

// RunResult holds the aggregate outcome of a run.
type RunResult struct {
	Tiles      int                  `json:"tiles"`
	Candidates int                  `json:"candidates"`
	Retained   int                  `json:"retained"`
	Rejected   map[RejectReason]int `json:"rejected,omitempty"`
	Failures   int                  `json:"failures"`
	Unmatched  int                  `json:"unmatched"`
	Blocks     int                  `json:"blocks"`
	Sites      int                  `json:"sites"`
	Shortfall  int                  `json:"shortfall,omitempty"` // blocks missing against the configured maximum
	Validation *ValidationResult    `json:"validation,omitempty"`
	Phases     []PhaseResult        `json:"phases,omitempty"`
	Report     string               `json:"report,omitempty"`
}

// ValidationResult aggregates validation-plot generation across areas.
type ValidationResult struct {
	Areas      int `json:"areas"`
	Plots      int `json:"plots"`
	Discarded  int `json:"discarded"`
	Shortfalls int `json:"shortfalls"`
}

// RunPhase represents a phase within a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseStatus represents the current state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
