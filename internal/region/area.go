// Package region answers the pipeline's spatial containment questions:
// study-area membership, coarse-block assignment and tile lookup.
package region

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/cruiseplan/siteselect/internal/vector"
)

type ringSet struct {
	exterior []float64
	holes    [][]float64
}

// StudyArea is the boundary the pipeline samples within. It is built once
// and safe for concurrent readers afterwards.
type StudyArea struct {
	polys  []ringSet
	bounds *geom.Bounds
	srid   int
}

// NewStudyArea builds a study area from polygon geometries.
func NewStudyArea(gs ...geom.T) (*StudyArea, error) {
	a := &StudyArea{bounds: geom.NewBounds(geom.XY)}
	for _, g := range gs {
		switch t := g.(type) {
		case *geom.Polygon:
			a.addPolygon(t)
		case *geom.MultiPolygon:
			for i := 0; i < t.NumPolygons(); i++ {
				a.addPolygon(t.Polygon(i))
			}
		default:
			return nil, eris.Errorf("region: unsupported boundary geometry %T", g)
		}
		if srid := g.SRID(); srid != 0 {
			a.srid = srid
		}
	}
	if len(a.polys) == 0 {
		return nil, eris.New("region: boundary has no polygons")
	}
	return a, nil
}

// Load reads the study boundary from a polygon file, merging every
// record into one area.
func Load(path string, srid int) (*StudyArea, error) {
	feats, err := vector.ReadFeatures(path)
	if err != nil {
		return nil, eris.Wrap(err, "region: load boundary")
	}
	gs := make([]geom.T, 0, len(feats))
	for _, f := range feats {
		f.Geom.SetSRID(srid)
		gs = append(gs, f.Geom)
	}
	if len(gs) == 0 {
		return nil, eris.Errorf("region: boundary %s has no polygon records", path)
	}
	return NewStudyArea(gs...)
}

func (a *StudyArea) addPolygon(p *geom.Polygon) {
	if p.NumLinearRings() == 0 {
		return
	}
	rs := ringSet{exterior: p.LinearRing(0).FlatCoords()}
	for i := 1; i < p.NumLinearRings(); i++ {
		rs.holes = append(rs.holes, p.LinearRing(i).FlatCoords())
	}
	a.polys = append(a.polys, rs)
	a.bounds.Extend(p)
}

// SRID returns the boundary's spatial reference id, or zero.
func (a *StudyArea) SRID() int {
	return a.srid
}

// Bounds returns the boundary's bounding box.
func (a *StudyArea) Bounds() *geom.Bounds {
	return a.bounds
}

// Contains reports whether the point lies inside the boundary, holes
// excluded.
func (a *StudyArea) Contains(x, y float64) bool {
	if !a.inBounds(x, y) {
		return false
	}
	pt := geom.Coord{x, y}
	for _, rs := range a.polys {
		if !xy.IsPointInRing(geom.XY, pt, rs.exterior) {
			continue
		}
		inHole := false
		for _, h := range rs.holes {
			if xy.IsPointInRing(geom.XY, pt, h) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

// ContainsRect reports whether the axis-aligned rectangle lies fully
// inside the boundary: its center is inside and no boundary segment
// touches it. Rectangles that merely touch the boundary do not qualify.
func (a *StudyArea) ContainsRect(minX, minY, maxX, maxY float64) bool {
	cx := (minX + maxX) / 2
	cy := (minY + maxY) / 2
	if !a.Contains(cx, cy) {
		return false
	}
	for _, rs := range a.polys {
		if ringTouchesRect(rs.exterior, minX, minY, maxX, maxY) {
			return false
		}
		for _, h := range rs.holes {
			if ringTouchesRect(h, minX, minY, maxX, maxY) {
				return false
			}
		}
	}
	return true
}

// Rings yields every boundary ring (exteriors and holes) as flat XY
// coordinates. The grid generator walks these to find crossed cells.
func (a *StudyArea) Rings() [][]float64 {
	var rings [][]float64
	for _, rs := range a.polys {
		rings = append(rings, rs.exterior)
		rings = append(rings, rs.holes...)
	}
	return rings
}

func (a *StudyArea) inBounds(x, y float64) bool {
	return x >= a.bounds.Min(0) && x <= a.bounds.Max(0) &&
		y >= a.bounds.Min(1) && y <= a.bounds.Max(1)
}

func ringTouchesRect(flat []float64, minX, minY, maxX, maxY float64) bool {
	for i := 0; i+3 < len(flat); i += 2 {
		if SegmentIntersectsRect(flat[i], flat[i+1], flat[i+2], flat[i+3], minX, minY, maxX, maxY) {
			return true
		}
	}
	return false
}
