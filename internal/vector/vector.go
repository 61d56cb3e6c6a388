// Package vector reads and writes the pipeline's polygon files and keeps
// the conversion between shapefile records and go-geom geometries in one
// place.
package vector

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Feature is one polygon record with its attribute row, field names
// lowercased.
type Feature struct {
	Geom  *geom.MultiPolygon
	Attrs map[string]string
}

// Attr returns the named attribute, trimmed, or "" when absent.
func (f Feature) Attr(name string) string {
	return f.Attrs[strings.ToLower(name)]
}

// ReadFeatures reads every polygon record of a shapefile. Ring winding
// decides assembly: clockwise rings open a new polygon, counter-clockwise
// rings become holes of the polygon opened last.
func ReadFeatures(path string) ([]Feature, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}

	var feats []Feature
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}
		mp := assemblePolygon(poly)
		if mp == nil {
			skipped++
			continue
		}

		attrs := make(map[string]string, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val != "" {
				attrs[name] = val
			}
		}
		feats = append(feats, Feature{Geom: mp, Attrs: attrs})
	}

	if skipped > 0 {
		zap.L().Debug("vector: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return feats, nil
}

// assemblePolygon groups a shapefile polygon's parts into exteriors and
// holes by ring winding. Shapefiles wind exteriors clockwise.
func assemblePolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		if len(flat) < 8 { // a closed ring needs at least four vertices
			continue
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		exterior := signedArea(flat) < 0 || current == nil
		if exterior {
			if current != nil {
				if err := mp.Push(current); err != nil {
					zap.L().Debug("vector: skipping malformed polygon part", zap.Error(err))
				}
			}
			current = geom.NewPolygon(geom.XY)
		}
		if err := current.Push(ring); err != nil {
			zap.L().Debug("vector: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}
	if current != nil {
		if err := mp.Push(current); err != nil {
			zap.L().Debug("vector: skipping malformed polygon part", zap.Error(err))
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is the shoelace sum of a closed flat XY ring: positive for
// counter-clockwise winding, negative for clockwise.
func signedArea(flat []float64) float64 {
	var sum float64
	n := len(flat) / 2
	for i := 0; i < n-1; i++ {
		x0, y0 := flat[2*i], flat[2*i+1]
		x1, y1 := flat[2*i+2], flat[2*i+3]
		sum += x0*y1 - x1*y0
	}
	return sum / 2
}

// firstPolygon unwraps single-polygon records read back from artifacts.
func firstPolygon(mp *geom.MultiPolygon) (*geom.Polygon, error) {
	if mp == nil || mp.NumPolygons() == 0 {
		return nil, eris.New("vector: record has no polygon")
	}
	return mp.Polygon(0), nil
}
