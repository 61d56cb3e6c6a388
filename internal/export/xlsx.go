package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"

	"github.com/cruiseplan/siteselect/internal/model"
)

// Column layout of the field-crew workbook. Coordinates are cell
// centers in the working reference system.
var siteColumns = []string{
	"Site ID",
	"Block",
	"Rank",
	"Easting",
	"Northing",
	"Density %",
	"Dominance",
	"Dominant Type",
	"Type Forest %",
	"Cover Forest %",
	"Cover Classes",
	"Secondary Cover",
	"Score",
}

var plotColumns = []string{
	"Plot ID",
	"Area",
	"Tile",
	"Easting",
	"Northing",
	"Density %",
}

// WriteWorkbook writes the survey workbook: one sheet of final sites
// and, when plots exist, one sheet of validation plots.
func WriteWorkbook(path string, sites []model.Site, plots []model.ValidationSite) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("Survey sites")
	if err != nil {
		return eris.Wrap(err, "export: add sites sheet")
	}
	writeHeader(sheet, siteColumns)
	for _, s := range sites {
		x, y := s.Centroid()
		row := sheet.AddRow()
		row.AddCell().SetString(s.ID)
		row.AddCell().SetString(s.BlockID)
		row.AddCell().SetInt(s.Rank)
		row.AddCell().SetFloat(x)
		row.AddCell().SetFloat(y)
		row.AddCell().SetInt(s.Metrics.Density)
		row.AddCell().SetInt(s.Metrics.Dominance)
		row.AddCell().SetString(string(s.Metrics.DominantType))
		row.AddCell().SetInt(s.Metrics.TypeForest)
		row.AddCell().SetInt(s.Metrics.CoverForest)
		row.AddCell().SetInt(s.Metrics.CoverClasses)
		row.AddCell().SetString(s.Metrics.SecondaryCover)
		row.AddCell().SetInt(s.Scores.Total)
	}

	if len(plots) > 0 {
		vSheet, err := f.AddSheet("Validation plots")
		if err != nil {
			return eris.Wrap(err, "export: add validation sheet")
		}
		writeHeader(vSheet, plotColumns)
		for _, p := range plots {
			x, y := centerOf(p.Geom)
			row := vSheet.AddRow()
			row.AddCell().SetString(p.ID)
			row.AddCell().SetString(p.AreaID)
			row.AddCell().SetString(p.TileID)
			row.AddCell().SetFloat(x)
			row.AddCell().SetFloat(y)
			row.AddCell().SetInt(p.Density)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func writeHeader(sheet *xlsx.Sheet, columns []string) {
	row := sheet.AddRow()
	for _, c := range columns {
		row.AddCell().SetString(c)
	}
}

func centerOf(g *geom.Polygon) (x, y float64) {
	b := g.Bounds()
	return (b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2
}
