package model

import (
	"github.com/twpayne/go-geom"
)

// Block is one cell of the coarse aggregation lattice laid over the study
// area, ranked by how many retained candidates fall inside it.
type Block struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
	Rank  int    `json:"rank"` // 1-based position after ordering by count then id
}

// Site is the single survey location drawn for one selected block.
type Site struct {
	Scored
	BlockID string `json:"block_id"`
	Rank    int    `json:"rank"`
}

// ValidationSite is a square reference plot laid out around a known stand,
// kept spatially clear of the stand's exclusion buffer.
type ValidationSite struct {
	ID      string        `json:"id"`
	AreaID  string        `json:"area_id"`
	TileID  string        `json:"tile_id"`
	Density int           `json:"density"` // mean tree-cover density under the plot, percent
	Geom    *geom.Polygon `json:"-"`
}

// AreaSample reports the validation yield for one target area.
type AreaSample struct {
	AreaID     string `json:"area_id"`
	Population int    `json:"population"` // lattice points inside the study boundary
	Requested  int    `json:"requested"`
	Kept       int    `json:"kept"`
	Discarded  int    `json:"discarded"` // sampled plots dropped by the density check
	Shortfall  bool   `json:"shortfall"` // population was smaller than the requested count
}
