package model

// TileStatus tracks per-tile progress within a run.
type TileStatus string

const (
	TileStatusPending  TileStatus = "pending"
	TileStatusComplete TileStatus = "complete"
	TileStatusEmpty    TileStatus = "empty" // no lattice cell or no retained candidate
	TileStatusFailed   TileStatus = "failed"
)

// TileResult summarizes grid generation and extraction for one tile.
type TileResult struct {
	TileID     string               `json:"tile_id"`
	Status     TileStatus           `json:"status"`
	Candidates int                  `json:"candidates"`
	Retained   int                  `json:"retained"`
	Rejected   map[RejectReason]int `json:"rejected,omitempty"`
	Failures   int                  `json:"failures"`  // raster read failures, isolated per candidate
	Unmatched  int                  `json:"unmatched"` // candidates with no spatial match
	Resumed    bool                 `json:"resumed,omitempty"`
	Artifact   string               `json:"artifact,omitempty"`
	DurationMS int64                `json:"duration_ms"`
	Error      string               `json:"error,omitempty"`
}
