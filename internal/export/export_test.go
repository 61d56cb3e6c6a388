package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/cruiseplan/siteselect/internal/model"
)

func square(x, y, side float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		x, y,
		x + side, y,
		x + side, y + side,
		x, y + side,
		x, y,
	}, []int{10})
}

func testSite(id, blockID string, rank int) model.Site {
	return model.Site{
		Scored: model.Scored{
			Candidate: model.Candidate{
				ID:     id,
				TileID: "E040N020",
				Row:    12,
				Col:    7,
				AreaHa: 16,
				Geom:   square(4800, 2800, 400),
			},
			Metrics: model.Metrics{
				Density:        55,
				Dominance:      60,
				DominantType:   model.LeafBroadleaved,
				TypeForest:     40,
				CoverForest:    50,
				CoverClasses:   3,
				SecondaryCover: "Agricultural areas",
			},
			Scores: model.Scores{Density: 5, Dominance: 3, TypeForest: 4, CoverForest: 5, CoverClasses: 5, Total: 22},
		},
		BlockID: blockID,
		Rank:    rank,
	}
}

func TestSitesGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.geojson")
	sites := []model.Site{testSite("E040N020_00007_00012", "B0000_0000", 1)}

	require.NoError(t, SitesGeoJSON(path, sites))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var fc geojson.FeatureCollection
	require.NoError(t, json.Unmarshal(raw, &fc))
	require.Len(t, fc.Features, 1)

	f := fc.Features[0]
	assert.Equal(t, "E040N020_00007_00012", f.ID)
	assert.Equal(t, "B0000_0000", f.Properties["block"])
	assert.InDelta(t, 22, f.Properties["score_total"].(float64), 0.001)
	assert.Equal(t, "broadleaved", f.Properties["dominant_type"])

	poly, ok := f.Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.InDelta(t, 4800.0, poly.Bounds().Min(0), 0.001)
	assert.InDelta(t, 5200.0, poly.Bounds().Max(0), 0.001)
}

func TestValidationGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validation.geojson")
	plots := []model.ValidationSite{
		{ID: "a_01_p01", AreaID: "a_01", TileID: "E040N020", Density: 42, Geom: square(1000, 2000, 500)},
		{ID: "a_01_p02", AreaID: "a_01", TileID: "E040N020", Density: 63, Geom: square(3000, 2000, 500)},
	}

	require.NoError(t, ValidationGeoJSON(path, plots))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var fc geojson.FeatureCollection
	require.NoError(t, json.Unmarshal(raw, &fc))
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "a_01_p01", fc.Features[0].ID)
	assert.InDelta(t, 42, fc.Features[0].Properties["density"].(float64), 0.001)
}

func TestSitesGeoJSON_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.geojson")

	require.NoError(t, SitesGeoJSON(path, nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "FeatureCollection")
}

func TestSitesCollection_EmptyIsNotNil(t *testing.T) {
	fc := SitesCollection(nil)
	require.NotNil(t, fc)
	assert.NotNil(t, fc.Features)
	assert.Empty(t, fc.Features)
}

func TestValidationCollection_Properties(t *testing.T) {
	fc := ValidationCollection([]model.ValidationSite{
		{ID: "a_01_p01", AreaID: "a_01", TileID: "E040N020", Density: 42, Geom: square(1000, 2000, 500)},
	})
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "a_01_p01", fc.Features[0].ID)
	assert.Equal(t, "a_01", fc.Features[0].Properties["area"])
	assert.Equal(t, 42, fc.Features[0].Properties["density"])
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.xlsx")
	sites := []model.Site{
		testSite("E040N020_00007_00012", "B0000_0000", 1),
		testSite("E040N020_00008_00012", "B0001_0000", 2),
	}
	plots := []model.ValidationSite{
		{ID: "a_01_p01", AreaID: "a_01", TileID: "E040N020", Density: 42, Geom: square(1000, 2000, 500)},
	}

	require.NoError(t, WriteWorkbook(path, sites, plots))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	sheet := f.Sheets[0]
	assert.Equal(t, "Survey sites", sheet.Name)
	require.Len(t, sheet.Rows, 3) // header + two sites
	assert.Equal(t, "Site ID", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "E040N020_00007_00012", sheet.Rows[1].Cells[0].String())
	rank, err := sheet.Rows[1].Cells[2].Int()
	require.NoError(t, err)
	assert.Equal(t, 1, rank)

	vSheet := f.Sheets[1]
	assert.Equal(t, "Validation plots", vSheet.Name)
	require.Len(t, vSheet.Rows, 2)
	assert.Equal(t, "a_01_p01", vSheet.Rows[1].Cells[0].String())
	dens, err := vSheet.Rows[1].Cells[5].Int()
	require.NoError(t, err)
	assert.Equal(t, 42, dens)
}

func TestWriteWorkbook_NoValidationSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.xlsx")

	require.NoError(t, WriteWorkbook(path, []model.Site{testSite("s1", "b1", 1)}, nil))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Sheets, 1)
}
