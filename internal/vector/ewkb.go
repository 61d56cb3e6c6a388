package vector

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// MarshalGeom encodes a geometry as little-endian EWKB, carrying the
// geometry's SRID.
func MarshalGeom(g geom.T) ([]byte, error) {
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "vector: encode EWKB")
	}
	return data, nil
}

// UnmarshalPolygon decodes an EWKB polygon.
func UnmarshalPolygon(data []byte) (*geom.Polygon, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "vector: decode EWKB")
	}
	poly, ok := g.(*geom.Polygon)
	if !ok {
		return nil, eris.Errorf("vector: expected polygon, got %T", g)
	}
	return poly, nil
}
