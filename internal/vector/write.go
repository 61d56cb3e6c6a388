package vector

import (
	"math"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// buildRecord flattens one or more go-geom polygons into a single
// shapefile record, winding exteriors clockwise and holes
// counter-clockwise as the format expects.
func buildRecord(polys []*geom.Polygon) *shp.Polygon {
	var parts []int32
	var points []shp.Point
	box := shp.Box{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}

	for _, p := range polys {
		for i := 0; i < p.NumLinearRings(); i++ {
			flat := closedRing(p.LinearRing(i).FlatCoords())
			wantCW := i == 0
			if isCCW := signedArea(flat) > 0; isCCW == wantCW {
				flat = reverseRing(flat)
			}

			parts = append(parts, int32(len(points)))
			for j := 0; j+1 < len(flat); j += 2 {
				x, y := flat[j], flat[j+1]
				points = append(points, shp.Point{X: x, Y: y})
				box.MinX = math.Min(box.MinX, x)
				box.MinY = math.Min(box.MinY, y)
				box.MaxX = math.Max(box.MaxX, x)
				box.MaxY = math.Max(box.MaxY, y)
			}
		}
	}

	return &shp.Polygon{
		Box:       box,
		NumParts:  int32(len(parts)),
		NumPoints: int32(len(points)),
		Parts:     parts,
		Points:    points,
	}
}

func shpPolygon(p *geom.Polygon) *shp.Polygon {
	return buildRecord([]*geom.Polygon{p})
}

// closedRing appends the first vertex when a ring is not explicitly
// closed.
func closedRing(flat []float64) []float64 {
	n := len(flat)
	if n < 6 {
		return flat
	}
	if flat[0] == flat[n-2] && flat[1] == flat[n-1] {
		return flat
	}
	out := make([]float64, n+2)
	copy(out, flat)
	out[n] = flat[0]
	out[n+1] = flat[1]
	return out
}

func reverseRing(flat []float64) []float64 {
	out := make([]float64, len(flat))
	n := len(flat) / 2
	for i := 0; i < n; i++ {
		out[2*i] = flat[2*(n-1-i)]
		out[2*i+1] = flat[2*(n-1-i)+1]
	}
	return out
}

// writeRows drives a shapefile writer over a uniform set of polygon rows.
func writeRows(path string, fields []shp.Field, n int, row func(i int) (*geom.Polygon, []any)) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "vector: create shapefile %s", path)
	}
	defer w.Close()

	w.SetFields(fields)
	for i := 0; i < n; i++ {
		poly, attrs := row(i)
		w.Write(shpPolygon(poly))
		for col, val := range attrs {
			if err := w.WriteAttribute(i, col, val); err != nil {
				return eris.Wrapf(err, "vector: write attribute %d of record %d", col, i)
			}
		}
	}
	return nil
}

// WritePolygons persists bare multipolygon records with an ID column,
// used for boundaries, footprints and test fixtures.
func WritePolygons(path string, ids []string, polys []*geom.MultiPolygon) error {
	if len(ids) != len(polys) {
		return eris.Errorf("vector: %d ids for %d polygons", len(ids), len(polys))
	}
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "vector: create shapefile %s", path)
	}
	defer w.Close()

	w.SetFields([]shp.Field{shp.StringField("ID", 32)})
	for i, mp := range polys {
		members := make([]*geom.Polygon, 0, mp.NumPolygons())
		for j := 0; j < mp.NumPolygons(); j++ {
			members = append(members, mp.Polygon(j))
		}
		w.Write(buildRecord(members))
		if err := w.WriteAttribute(i, 0, ids[i]); err != nil {
			return eris.Wrapf(err, "vector: write id of record %d", i)
		}
	}
	return nil
}
