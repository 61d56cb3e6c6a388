package model

import (
	"github.com/twpayne/go-geom"
)

// LeafType identifies the dominant leaf habit inside a candidate cell.
type LeafType string

const (
	LeafBroadleaved LeafType = "broadleaved"
	LeafConiferous  LeafType = "coniferous"
)

// Candidate is one fixed-area square cell of a per-tile sampling lattice.
// Cells are axis-aligned in the working reference system and lie fully
// inside the study boundary.
type Candidate struct {
	ID     string        `json:"id"`
	TileID string        `json:"tile_id"`
	Row    int           `json:"row"` // lattice row index, shared across tiles
	Col    int           `json:"col"` // lattice column index, shared across tiles
	AreaHa float64       `json:"area_ha"`
	Geom   *geom.Polygon `json:"-"`
}

// Centroid returns the cell center in the working reference system.
func (c Candidate) Centroid() (x, y float64) {
	b := c.Geom.Bounds()
	return (b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2
}

// Metrics holds the raster summaries extracted for one retained candidate.
// SecondaryCover is the most frequent non-forest cover label under the cell.
type Metrics struct {
	Density        int      `json:"density"`       // mean tree-cover density, percent
	Dominance      int      `json:"dominance"`     // leaf-type dominance magnitude, 0-100
	DominantType   LeafType `json:"dominant_type"`
	TypeForest     int      `json:"type_forest"`   // forest share from the leaf-type layer, percent
	CoverForest    int      `json:"cover_forest"`  // forest share of mapped land cover, percent
	CoverClasses   int      `json:"cover_classes"` // distinct mapped land-cover classes
	SecondaryCover string   `json:"secondary_cover,omitempty"`
}

// Scores holds the per-metric lookup scores and their sum.
type Scores struct {
	Density      int `json:"density"`
	Dominance    int `json:"dominance"`
	TypeForest   int `json:"type_forest"`
	CoverForest  int `json:"cover_forest"`
	CoverClasses int `json:"cover_classes"`
	Total        int `json:"total"`
}

// Scored pairs a retained candidate with its metrics and scores.
type Scored struct {
	Candidate
	Metrics Metrics `json:"metrics"`
	Scores  Scores  `json:"scores"`
}
