package vector

import (
	"sort"
	"strconv"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/cruiseplan/siteselect/internal/model"
)

// Attribute layout shared by grid files and scored tile artifacts. DBF
// field names are capped at ten characters.
func gridFields() []shp.Field {
	return []shp.Field{
		shp.StringField("ID", 32),
		shp.StringField("TILE", 16),
		shp.NumberField("ROW", 9),
		shp.NumberField("COL", 9),
		shp.FloatField("AREA_HA", 12, 3),
	}
}

func scoredFields() []shp.Field {
	return append(gridFields(),
		shp.NumberField("DENS", 3),
		shp.NumberField("DOM", 3),
		shp.StringField("DOMTYPE", 12),
		shp.NumberField("TYPEFOR", 3),
		shp.NumberField("COVFOR", 3),
		shp.NumberField("COVCLS", 2),
		shp.StringField("SECCOV", 24),
		shp.NumberField("S_DENS", 3),
		shp.NumberField("S_DOM", 3),
		shp.NumberField("S_TYPEF", 3),
		shp.NumberField("S_COVF", 3),
		shp.NumberField("S_CLS", 3),
		shp.NumberField("S_TOTAL", 4),
	)
}

func gridAttrs(c model.Candidate) []any {
	return []any{c.ID, c.TileID, c.Row, c.Col, c.AreaHa}
}

func scoredAttrs(s model.Scored) []any {
	return append(gridAttrs(s.Candidate),
		s.Metrics.Density,
		s.Metrics.Dominance,
		string(s.Metrics.DominantType),
		s.Metrics.TypeForest,
		s.Metrics.CoverForest,
		s.Metrics.CoverClasses,
		s.Metrics.SecondaryCover,
		s.Scores.Density,
		s.Scores.Dominance,
		s.Scores.TypeForest,
		s.Scores.CoverForest,
		s.Scores.CoverClasses,
		s.Scores.Total,
	)
}

// WriteGrid persists a tile's plain lattice cells.
func WriteGrid(path string, cells []model.Candidate) error {
	return writeRows(path, gridFields(), len(cells), func(i int) (*geom.Polygon, []any) {
		return cells[i].Geom, gridAttrs(cells[i])
	})
}

// ReadGrid loads a pre-generated per-tile lattice.
func ReadGrid(path string) ([]model.Candidate, error) {
	feats, err := ReadFeatures(path)
	if err != nil {
		return nil, err
	}
	cells := make([]model.Candidate, 0, len(feats))
	for _, f := range feats {
		c, err := candidateFromFeature(f)
		if err != nil {
			return nil, eris.Wrapf(err, "vector: grid record in %s", path)
		}
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].ID < cells[j].ID })
	return cells, nil
}

// WriteScored persists one tile's retained candidates with their metric
// and score columns.
func WriteScored(path string, items []model.Scored) error {
	return writeRows(path, scoredFields(), len(items), func(i int) (*geom.Polygon, []any) {
		return items[i].Geom, scoredAttrs(items[i])
	})
}

// ReadScored loads a tile artifact written by WriteScored.
func ReadScored(path string) ([]model.Scored, error) {
	feats, err := ReadFeatures(path)
	if err != nil {
		return nil, err
	}
	items := make([]model.Scored, 0, len(feats))
	for _, f := range feats {
		s, err := scoredFromFeature(f)
		if err != nil {
			return nil, eris.Wrapf(err, "vector: artifact record in %s", path)
		}
		items = append(items, s)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// WriteSites persists the final site set with block and rank columns.
func WriteSites(path string, sites []model.Site) error {
	fields := append(scoredFields(),
		shp.StringField("BLOCK", 16),
		shp.NumberField("RANK", 4),
	)
	return writeRows(path, fields, len(sites), func(i int) (*geom.Polygon, []any) {
		attrs := append(scoredAttrs(sites[i].Scored), sites[i].BlockID, sites[i].Rank)
		return sites[i].Geom, attrs
	})
}

// WriteValidation persists validation plots with their density proxy.
func WriteValidation(path string, plots []model.ValidationSite) error {
	fields := []shp.Field{
		shp.StringField("ID", 32),
		shp.StringField("AREA", 24),
		shp.StringField("TILE", 16),
		shp.NumberField("DENS", 3),
	}
	return writeRows(path, fields, len(plots), func(i int) (*geom.Polygon, []any) {
		p := plots[i]
		return p.Geom, []any{p.ID, p.AreaID, p.TileID, p.Density}
	})
}

func candidateFromFeature(f Feature) (model.Candidate, error) {
	poly, err := firstPolygon(f.Geom)
	if err != nil {
		return model.Candidate{}, err
	}
	row, err := atoi(f, "row")
	if err != nil {
		return model.Candidate{}, err
	}
	col, err := atoi(f, "col")
	if err != nil {
		return model.Candidate{}, err
	}
	area, err := atof(f, "area_ha")
	if err != nil {
		return model.Candidate{}, err
	}
	c := model.Candidate{
		ID:     f.Attr("id"),
		TileID: f.Attr("tile"),
		Row:    row,
		Col:    col,
		AreaHa: area,
		Geom:   poly,
	}
	if c.ID == "" || c.TileID == "" {
		return model.Candidate{}, eris.New("vector: record is missing id or tile")
	}
	return c, nil
}

func scoredFromFeature(f Feature) (model.Scored, error) {
	c, err := candidateFromFeature(f)
	if err != nil {
		return model.Scored{}, err
	}
	ints := map[string]*int{}
	s := model.Scored{Candidate: c}
	ints["dens"] = &s.Metrics.Density
	ints["dom"] = &s.Metrics.Dominance
	ints["typefor"] = &s.Metrics.TypeForest
	ints["covfor"] = &s.Metrics.CoverForest
	ints["covcls"] = &s.Metrics.CoverClasses
	ints["s_dens"] = &s.Scores.Density
	ints["s_dom"] = &s.Scores.Dominance
	ints["s_typef"] = &s.Scores.TypeForest
	ints["s_covf"] = &s.Scores.CoverForest
	ints["s_cls"] = &s.Scores.CoverClasses
	ints["s_total"] = &s.Scores.Total
	for name, dst := range ints {
		v, err := atoi(f, name)
		if err != nil {
			return model.Scored{}, err
		}
		*dst = v
	}
	s.Metrics.DominantType = model.LeafType(f.Attr("domtype"))
	s.Metrics.SecondaryCover = f.Attr("seccov")
	return s, nil
}

func atoi(f Feature, name string) (int, error) {
	raw := f.Attr(name)
	if raw == "" {
		return 0, eris.Errorf("vector: attribute %s is empty", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, eris.Wrapf(err, "vector: attribute %s", name)
	}
	return v, nil
}

func atof(f Feature, name string) (float64, error) {
	raw := f.Attr(name)
	if raw == "" {
		return 0, eris.Errorf("vector: attribute %s is empty", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "vector: attribute %s", name)
	}
	return v, nil
}
