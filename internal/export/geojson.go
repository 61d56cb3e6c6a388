// Package export writes the final site collections for downstream
// consumers: GeoJSON for GIS tools and an XLSX workbook for the survey
// field crews.
package export

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/cruiseplan/siteselect/internal/model"
)

// SitesCollection builds the GeoJSON feature collection for the final
// survey sites, one feature per site with the metric and score columns
// as properties.
func SitesCollection(sites []model.Site) *geojson.FeatureCollection {
	features := make([]*geojson.Feature, 0, len(sites))
	for _, s := range sites {
		features = append(features, &geojson.Feature{
			ID:       s.ID,
			Geometry: s.Geom,
			Properties: map[string]any{
				"tile":            s.TileID,
				"block":           s.BlockID,
				"rank":            s.Rank,
				"density":         s.Metrics.Density,
				"dominance":       s.Metrics.Dominance,
				"dominant_type":   string(s.Metrics.DominantType),
				"type_forest":     s.Metrics.TypeForest,
				"cover_forest":    s.Metrics.CoverForest,
				"cover_classes":   s.Metrics.CoverClasses,
				"secondary_cover": s.Metrics.SecondaryCover,
				"score_total":     s.Scores.Total,
			},
		})
	}
	return &geojson.FeatureCollection{Features: features}
}

// ValidationCollection builds the GeoJSON feature collection for the
// validation plots.
func ValidationCollection(plots []model.ValidationSite) *geojson.FeatureCollection {
	features := make([]*geojson.Feature, 0, len(plots))
	for _, p := range plots {
		features = append(features, &geojson.Feature{
			ID:       p.ID,
			Geometry: p.Geom,
			Properties: map[string]any{
				"area":    p.AreaID,
				"tile":    p.TileID,
				"density": p.Density,
			},
		})
	}
	return &geojson.FeatureCollection{Features: features}
}

// SitesGeoJSON writes the final survey sites as a FeatureCollection.
func SitesGeoJSON(path string, sites []model.Site) error {
	return writeCollection(path, SitesCollection(sites))
}

// ValidationGeoJSON writes the validation plots as a FeatureCollection.
func ValidationGeoJSON(path string, plots []model.ValidationSite) error {
	return writeCollection(path, ValidationCollection(plots))
}

func writeCollection(path string, fc *geojson.FeatureCollection) error {
	raw, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "export: marshal %s", path)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}
