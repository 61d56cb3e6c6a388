package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/cruiseplan/siteselect/internal/model"
	"github.com/cruiseplan/siteselect/internal/store"
	"github.com/cruiseplan/siteselect/internal/validation"
	"github.com/cruiseplan/siteselect/internal/vector"
)

func writeStands(t *testing.T, dir string, ids []string, centers [][2]float64) string {
	t.Helper()
	polys := make([]*geom.MultiPolygon, len(ids))
	for i, c := range centers {
		polys[i] = geom.NewMultiPolygonFlat(geom.XY, []float64{
			c[0] - 100, c[1] - 100, c[0] + 100, c[1] - 100,
			c[0] + 100, c[1] + 100, c[0] - 100, c[1] + 100,
			c[0] - 100, c[1] - 100,
		}, [][]int{{10}})
	}
	path := filepath.Join(dir, "stands.shp")
	require.NoError(t, vector.WritePolygons(path, ids, polys))
	return path
}

func TestRunValidation(t *testing.T) {
	opts := newTestOptions(t)
	p, st := newTestPipeline(t, opts)
	ctx := context.Background()

	// A1's lattice falls entirely on the first tile; B1 sits outside the
	// study boundary and yields nothing.
	areasPath := writeStands(t, filepath.Dir(opts.Manifest),
		[]string{"A1", "B1"}, [][2]float64{{1000, 1000}, {30_000, 30_000}})

	run, err := p.RunValidation(ctx, ValidationOptions{
		Areas:     areasPath,
		AreaField: "id",
		Params:    validation.Params{Spacing: 400, Inner: 400, Outer: 800, Count: 5, Seed: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, model.RunKindValidation, run.Kind)

	res := run.Result
	require.NotNil(t, res)
	require.NotNil(t, res.Validation)
	assert.Equal(t, 2, res.Validation.Areas)
	assert.Equal(t, 5, res.Validation.Plots)
	assert.Zero(t, res.Validation.Discarded)
	assert.Equal(t, 1, res.Validation.Shortfalls)
	assert.Equal(t, []string{"validate", "report"}, phaseNames(res))
	assert.Contains(t, res.Report, "## Validation plots")
	assert.Contains(t, res.Report, "WARNING")

	assert.FileExists(t, filepath.Join(opts.OutputDir, "validation.shp"))
	assert.FileExists(t, filepath.Join(opts.OutputDir, "validation.geojson"))

	plots, err := st.ListValidationSites(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, plots, 5)
	for _, plot := range plots {
		assert.Equal(t, "A1", plot.AreaID)
		assert.Equal(t, "E000N000", plot.TileID)
		assert.Equal(t, 50, plot.Density)
	}

	samples, err := st.ListAreaSamples(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "A1", samples[0].AreaID)
	assert.Equal(t, 16, samples[0].Population)
	assert.Equal(t, 5, samples[0].Kept)
	assert.False(t, samples[0].Shortfall)
	assert.Equal(t, "B1", samples[1].AreaID)
	assert.Zero(t, samples[1].Population)
	assert.True(t, samples[1].Shortfall)
}

func TestRunValidationReproducible(t *testing.T) {
	opts := newTestOptions(t)
	ctx := context.Background()
	areasPath := writeStands(t, filepath.Dir(opts.Manifest),
		[]string{"A1"}, [][2]float64{{1000, 1000}})
	vopts := ValidationOptions{
		Areas:     areasPath,
		AreaField: "id",
		Params:    validation.Params{Spacing: 400, Inner: 400, Outer: 800, Count: 5, Seed: 7},
	}

	p, st := newTestPipeline(t, opts)
	first, err := p.RunValidation(ctx, vopts)
	require.NoError(t, err)
	second, err := p.RunValidation(ctx, vopts)
	require.NoError(t, err)

	a, err := st.ListValidationSites(ctx, first.ID)
	require.NoError(t, err)
	b, err := st.ListValidationSites(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.Equal(t, a[i].Geom.Bounds(), b[i].Geom.Bounds())
	}
}

func TestRunValidationMissingAreasFile(t *testing.T) {
	opts := newTestOptions(t)
	p, st := newTestPipeline(t, opts)
	ctx := context.Background()

	_, err := p.RunValidation(ctx, ValidationOptions{
		Areas:     filepath.Join(t.TempDir(), "missing.shp"),
		AreaField: "id",
		Params:    validation.DefaultParams(),
	})
	require.Error(t, err)

	// No run record is created for inputs that fail before the run starts.
	runs, err := st.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunValidationSeedChangesDraw(t *testing.T) {
	opts := newTestOptions(t)
	ctx := context.Background()

	// A wide lattice over the first tile so a 5-of-many draw has room to
	// differ between seeds.
	areasPath := writeStands(t, filepath.Dir(opts.Manifest),
		[]string{"A1"}, [][2]float64{{1000, 1000}})

	p, st := newTestPipeline(t, opts)
	base := validation.Params{Spacing: 200, Inner: 200, Outer: 800, Count: 5, Seed: 1}
	first, err := p.RunValidation(ctx, ValidationOptions{Areas: areasPath, AreaField: "id", Params: base})
	require.NoError(t, err)

	base.Seed = 99
	second, err := p.RunValidation(ctx, ValidationOptions{Areas: areasPath, AreaField: "id", Params: base})
	require.NoError(t, err)

	a, err := st.ListValidationSites(ctx, first.ID)
	require.NoError(t, err)
	b, err := st.ListValidationSites(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, a, 5)
	require.Len(t, b, 5)

	differs := false
	for i := range a {
		if a[i].Geom.Bounds().Min(0) != b[i].Geom.Bounds().Min(0) ||
			a[i].Geom.Bounds().Min(1) != b[i].Geom.Bounds().Min(1) {
			differs = true
			break
		}
	}
	assert.True(t, differs, "different seeds drew identical plots")
}
