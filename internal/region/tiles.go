package region

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/cruiseplan/siteselect/internal/vector"
)

// TileBounds pairs a raster tile id with its extent.
type TileBounds struct {
	ID     string
	Bounds *geom.Bounds
}

// TileIndex answers which raster tile's extent fully contains a
// geometry. Lookups scan tiles in id order, so results do not depend on
// construction order.
type TileIndex struct {
	tiles []TileBounds
}

// NewTileIndex builds an index over the given tile extents.
func NewTileIndex(tiles []TileBounds) *TileIndex {
	sorted := make([]TileBounds, len(tiles))
	copy(sorted, tiles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &TileIndex{tiles: sorted}
}

// LoadTileIndex reads tile extents from a polygon file keyed by an id
// attribute.
func LoadTileIndex(path, idField string) (*TileIndex, error) {
	feats, err := vector.ReadFeatures(path)
	if err != nil {
		return nil, eris.Wrap(err, "region: load tile bounds")
	}
	tiles := make([]TileBounds, 0, len(feats))
	for _, f := range feats {
		id := f.Attr(idField)
		if id == "" {
			return nil, eris.Errorf("region: tile-bounds record in %s is missing %q", path, idField)
		}
		tiles = append(tiles, TileBounds{ID: id, Bounds: f.Geom.Bounds()})
	}
	if len(tiles) == 0 {
		return nil, eris.Errorf("region: tile bounds %s has no records", path)
	}
	return NewTileIndex(tiles), nil
}

// Locate returns the first tile whose extent fully contains b.
func (t *TileIndex) Locate(b *geom.Bounds) (TileBounds, bool) {
	for _, tile := range t.tiles {
		if containsBounds(tile.Bounds, b) {
			return tile, true
		}
	}
	return TileBounds{}, false
}

// Len returns the number of indexed tiles.
func (t *TileIndex) Len() int {
	return len(t.tiles)
}

func containsBounds(outer, inner *geom.Bounds) bool {
	return inner.Min(0) >= outer.Min(0) && inner.Max(0) <= outer.Max(0) &&
		inner.Min(1) >= outer.Min(1) && inner.Max(1) <= outer.Max(1)
}
