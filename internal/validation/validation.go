// Package validation lays out square reference plots around known
// stands, keeps them clear of each stand's exclusion buffer, and
// attaches a tree-cover density proxy read from the raster tiling.
package validation

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/cruiseplan/siteselect/internal/model"
	"github.com/cruiseplan/siteselect/internal/raster"
	"github.com/cruiseplan/siteselect/internal/region"
	"github.com/cruiseplan/siteselect/internal/vector"
)

// Params controls plot layout and sampling. Distances are in
// reference-system units.
type Params struct {
	Spacing float64 // lattice spacing, also the plot side length
	Inner   float64 // exclusion radius around the stand centroid
	Outer   float64 // outermost lattice offset from the centroid
	Count   int     // plots sampled per area
	Seed    uint64

	// SharedStream draws every area from one sequential generator
	// instead of reseeding per area, reproducing the legacy runs where
	// a single stream spanned the whole loop.
	SharedStream bool
}

// DefaultParams returns the layout used for the production surveys:
// 500 m plots kept at least 1 km from the stand, scattered up to 5 km
// out, twenty per stand.
func DefaultParams() Params {
	return Params{Spacing: 500, Inner: 1000, Outer: 5000, Count: 20}
}

func (p Params) validate() error {
	if p.Spacing <= 0 {
		return eris.Errorf("validation: spacing must be positive, got %g", p.Spacing)
	}
	if p.Inner < 0 || p.Outer < p.Inner {
		return eris.Errorf("validation: bad radii inner %g outer %g", p.Inner, p.Outer)
	}
	if p.Count <= 0 {
		return eris.Errorf("validation: count must be positive, got %d", p.Count)
	}
	return nil
}

// Area is one target stand the plots are laid out around.
type Area struct {
	ID   string
	Geom *geom.MultiPolygon
}

// LoadAreas reads the stand footprints from a polygon file keyed by an
// id attribute.
func LoadAreas(path, idField string) ([]Area, error) {
	feats, err := vector.ReadFeatures(path)
	if err != nil {
		return nil, eris.Wrap(err, "validation: load areas")
	}
	areas := make([]Area, 0, len(feats))
	for _, f := range feats {
		id := f.Attr(idField)
		if id == "" {
			return nil, eris.Errorf("validation: area record in %s is missing %q", path, idField)
		}
		areas = append(areas, Area{ID: id, Geom: f.Geom})
	}
	if len(areas) == 0 {
		return nil, eris.Errorf("validation: areas %s has no records", path)
	}
	return areas, nil
}

// OpenLayerFunc opens the tree-cover density layer of one raster tile.
type OpenLayerFunc func(tileID string) (raster.Layer, error)

// Generator lays out and samples validation plots.
type Generator struct {
	study *region.StudyArea
	tiles *region.TileIndex
	open  OpenLayerFunc
	p     Params
}

// NewGenerator builds a generator over the study boundary and tile
// index. open is called at most once per tile id; the handles are closed
// when Generate returns.
func NewGenerator(study *region.StudyArea, tiles *region.TileIndex, open OpenLayerFunc, p Params) (*Generator, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Generator{study: study, tiles: tiles, open: open, p: p}, nil
}

type point struct {
	x, y float64
}

// Generate samples plots for every area. Areas are processed in id
// order; each draws from its own generator seeded by the run seed and
// the area id, so adding or removing one area never shifts the plots of
// the others. Plots with no containing tile or an invalid density are
// discarded, not replaced.
func (g *Generator) Generate(ctx context.Context, areas []Area) ([]model.ValidationSite, []model.AreaSample, error) {
	sorted := make([]Area, len(areas))
	copy(sorted, areas)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	layers := make(map[string]raster.Layer)
	defer func() {
		for _, l := range layers {
			_ = l.Close()
		}
	}()

	var shared *rand.Rand
	if g.p.SharedStream {
		shared = rand.New(rand.NewPCG(g.p.Seed, g.p.Seed))
	}

	var sites []model.ValidationSite
	samples := make([]model.AreaSample, 0, len(sorted))
	for _, a := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, nil, eris.Wrap(err, "validation: generate")
		}

		sample := model.AreaSample{AreaID: a.ID, Requested: g.p.Count}
		cx, cy, err := centroid(a.Geom)
		if err != nil {
			zap.L().Warn("validation: degenerate area footprint",
				zap.String("area", a.ID), zap.Error(err))
			sample.Shortfall = true
			samples = append(samples, sample)
			continue
		}

		pts := g.lattice(cx, cy)
		sample.Population = len(pts)
		sample.Shortfall = len(pts) < g.p.Count

		n := g.p.Count
		if len(pts) < n {
			n = len(pts)
		}
		rng := shared
		if rng == nil {
			rng = rand.New(rand.NewPCG(g.p.Seed, hashID(a.ID)))
		}
		order := rng.Perm(len(pts))

		for i := 0; i < n; i++ {
			pt := pts[order[i]]
			plot := g.plotAt(pt)
			site, ok := g.measure(a.ID, i+1, plot, layers)
			if !ok {
				sample.Discarded++
				continue
			}
			sample.Kept++
			sites = append(sites, site)
		}
		samples = append(samples, sample)
	}

	zap.L().Info("validation: plots generated",
		zap.Int("areas", len(samples)),
		zap.Int("plots", len(sites)),
		zap.Int("shortfalls", countShortfalls(samples)),
	)
	return sites, samples, nil
}

// lattice returns the candidate plot centers around (cx, cy): every
// offset multiple of the spacing out to the outer bound whose plot
// stays strictly clear of the inner exclusion radius, dropped when the
// center leaves the study boundary. Order is row-major, so the draw
// index is stable.
func (g *Generator) lattice(cx, cy float64) []point {
	k := int(math.Floor(g.p.Outer/g.p.Spacing + 1e-9))
	half := g.p.Spacing / 2
	var pts []point
	for ky := -k; ky <= k; ky++ {
		for kx := -k; kx <= k; kx++ {
			dx := float64(kx) * g.p.Spacing
			dy := float64(ky) * g.p.Spacing
			if math.Max(math.Abs(dx), math.Abs(dy))-half <= g.p.Inner {
				continue
			}
			x, y := cx+dx, cy+dy
			if !g.study.Contains(x, y) {
				continue
			}
			pts = append(pts, point{x: x, y: y})
		}
	}
	return pts
}

// plotAt buffers a plot center into its square footprint.
func (g *Generator) plotAt(pt point) *geom.Polygon {
	h := g.p.Spacing / 2
	p := geom.NewPolygonFlat(geom.XY, []float64{
		pt.x - h, pt.y - h,
		pt.x + h, pt.y - h,
		pt.x + h, pt.y + h,
		pt.x - h, pt.y + h,
		pt.x - h, pt.y - h,
	}, []int{10})
	p.SetSRID(g.study.SRID())
	return p
}

// measure attaches the density proxy: the mean tree-cover value under
// the plot, read from the tile whose extent contains it. Plots with no
// tile, no valid pixels or a mean beyond 100 report false.
func (g *Generator) measure(areaID string, seq int, plot *geom.Polygon, layers map[string]raster.Layer) (model.ValidationSite, bool) {
	b := plot.Bounds()
	tile, ok := g.tiles.Locate(b)
	if !ok {
		return model.ValidationSite{}, false
	}

	layer, ok := layers[tile.ID]
	if !ok {
		var err error
		layer, err = g.open(tile.ID)
		if err != nil {
			zap.L().Warn("validation: open density layer",
				zap.String("tile", tile.ID), zap.Error(err))
			return model.ValidationSite{}, false
		}
		layers[tile.ID] = layer
	}

	px, err := raster.ReadRegion(layer, b)
	if err != nil {
		return model.ValidationSite{}, false
	}
	mean, n := raster.Mean(layer, px)
	if n == 0 || mean > 100 {
		return model.ValidationSite{}, false
	}

	return model.ValidationSite{
		ID:      fmt.Sprintf("%s_%02d", areaID, seq),
		AreaID:  areaID,
		TileID:  tile.ID,
		Density: int(math.Round(mean)),
		Geom:    plot,
	}, true
}

// centroid returns the area-weighted centroid of a footprint. Holes
// wound opposite to their exterior subtract from the weighting.
func centroid(g *geom.MultiPolygon) (x, y float64, err error) {
	var aSum, cx, cy float64
	for i := 0; i < g.NumPolygons(); i++ {
		p := g.Polygon(i)
		for j := 0; j < p.NumLinearRings(); j++ {
			flat := p.LinearRing(j).FlatCoords()
			for k := 0; k+3 < len(flat); k += 2 {
				x1, y1 := flat[k], flat[k+1]
				x2, y2 := flat[k+2], flat[k+3]
				cross := x1*y2 - x2*y1
				aSum += cross
				cx += (x1 + x2) * cross
				cy += (y1 + y2) * cross
			}
		}
	}
	if aSum == 0 {
		return 0, 0, eris.New("validation: footprint has zero area")
	}
	return cx / (3 * aSum), cy / (3 * aSum), nil
}

func hashID(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

func countShortfalls(samples []model.AreaSample) int {
	n := 0
	for _, s := range samples {
		if s.Shortfall {
			n++
		}
	}
	return n
}
