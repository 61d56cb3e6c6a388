package region

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// BlockIndex assigns points to a coarse square lattice laid over the
// study area. Blocks are named after their lattice position in grid
// units, e.g. "E45N20" for the block whose lower-left corner is
// (45*side, 20*side), matching the naming style of the raster tiling.
type BlockIndex struct {
	area *StudyArea
	side float64
}

// NewBlockIndex builds a block index with the given block side length in
// reference-system units.
func NewBlockIndex(area *StudyArea, side float64) (*BlockIndex, error) {
	if side <= 0 {
		return nil, eris.Errorf("region: block side must be positive, got %g", side)
	}
	return &BlockIndex{area: area, side: side}, nil
}

// Side returns the block side length.
func (b *BlockIndex) Side() float64 {
	return b.side
}

// Locate returns the id of the block containing the point. It reports
// false for points outside the study area's bounding box, which callers
// count as missing spatial matches.
func (b *BlockIndex) Locate(x, y float64) (string, bool) {
	if !b.area.inBounds(x, y) {
		return "", false
	}
	e := int(math.Floor(x / b.side))
	n := int(math.Floor(y / b.side))
	return fmt.Sprintf("E%02dN%02d", e, n), true
}
