// Package grid lays fixed-area square lattices over raster tile extents
// and keeps the cells that sit fully inside the study boundary.
package grid

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/cruiseplan/siteselect/internal/model"
	"github.com/cruiseplan/siteselect/internal/region"
)

// Generator tessellates tile extents into candidate cells. The lattice is
// anchored at the reference system origin, so neighboring tiles produce
// seamless, non-overlapping cells and cell ids stay stable across runs.
type Generator struct {
	area   *region.StudyArea
	side   float64
	areaHa float64
	srid   int
}

// NewGenerator builds a generator producing cells of the given area in
// hectares.
func NewGenerator(area *region.StudyArea, cellAreaHa float64) (*Generator, error) {
	if cellAreaHa <= 0 {
		return nil, eris.Errorf("grid: cell area must be positive, got %g ha", cellAreaHa)
	}
	return &Generator{
		area:   area,
		side:   math.Sqrt(cellAreaHa * 1e4),
		areaHa: cellAreaHa,
		srid:   area.SRID(),
	}, nil
}

// CellSide returns the cell side length in reference-system units.
func (g *Generator) CellSide() float64 {
	return g.side
}

// Cells returns the tile's lattice cells that lie fully inside the study
// boundary, ordered row-major by ascending lattice row then column.
// A tile with no qualifying cell yields an empty slice, not an error.
func (g *Generator) Cells(tileID string, tile *geom.Bounds) []model.Candidate {
	colLo := snapCeil(tile.Min(0) / g.side)
	colHi := snapFloor(tile.Max(0) / g.side)
	rowLo := snapCeil(tile.Min(1) / g.side)
	rowHi := snapFloor(tile.Max(1) / g.side)
	if colHi <= colLo || rowHi <= rowLo {
		return nil
	}

	crossed := g.crossedCells(colLo, rowLo, colHi, rowHi)

	var cells []model.Candidate
	for row := rowLo; row < rowHi; row++ {
		for col := colLo; col < colHi; col++ {
			if crossed[cellKey{col, row}] {
				continue
			}
			cx := (float64(col) + 0.5) * g.side
			cy := (float64(row) + 0.5) * g.side
			if !g.area.Contains(cx, cy) {
				continue
			}
			cells = append(cells, g.cell(tileID, col, row))
		}
	}
	return cells
}

type cellKey struct {
	col, row int
}

// crossedCells walks every boundary segment and marks the lattice cells
// it touches. Checking cells against nearby segments only keeps the scan
// linear in cells plus segments instead of their product.
func (g *Generator) crossedCells(colLo, rowLo, colHi, rowHi int) map[cellKey]bool {
	crossed := make(map[cellKey]bool)
	for _, ring := range g.area.Rings() {
		for i := 0; i+3 < len(ring); i += 2 {
			x1, y1, x2, y2 := ring[i], ring[i+1], ring[i+2], ring[i+3]

			// A segment lying exactly on a lattice line touches the cell
			// below it as well, so the window extends one cell low.
			c0 := max(int(math.Floor(math.Min(x1, x2)/g.side))-1, colLo)
			c1 := min(int(math.Floor(math.Max(x1, x2)/g.side)), colHi-1)
			r0 := max(int(math.Floor(math.Min(y1, y2)/g.side))-1, rowLo)
			r1 := min(int(math.Floor(math.Max(y1, y2)/g.side)), rowHi-1)

			for row := r0; row <= r1; row++ {
				for col := c0; col <= c1; col++ {
					key := cellKey{col, row}
					if crossed[key] {
						continue
					}
					minX := float64(col) * g.side
					minY := float64(row) * g.side
					if region.SegmentIntersectsRect(x1, y1, x2, y2, minX, minY, minX+g.side, minY+g.side) {
						crossed[key] = true
					}
				}
			}
		}
	}
	return crossed
}

func (g *Generator) cell(tileID string, col, row int) model.Candidate {
	x0 := float64(col) * g.side
	y0 := float64(row) * g.side
	poly := geom.NewPolygonFlat(geom.XY, []float64{
		x0, y0,
		x0 + g.side, y0,
		x0 + g.side, y0 + g.side,
		x0, y0 + g.side,
		x0, y0,
	}, []int{10})
	poly.SetSRID(g.srid)
	return model.Candidate{
		ID:     fmt.Sprintf("%s_%05d_%05d", tileID, row, col),
		TileID: tileID,
		Row:    row,
		Col:    col,
		AreaHa: g.areaHa,
		Geom:   poly,
	}
}

// snapCeil and snapFloor tolerate the float noise of extents that sit
// exactly on a lattice line.
func snapCeil(v float64) int {
	return int(math.Ceil(v - 1e-9))
}

func snapFloor(v float64) int {
	return int(math.Floor(v + 1e-9))
}
