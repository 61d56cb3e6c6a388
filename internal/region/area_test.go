package region

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/cruiseplan/siteselect/internal/vector"
)

// donut is a 1000x1000 square with a 200x200 hole in the middle.
func donut(t *testing.T) *StudyArea {
	t.Helper()
	p := geom.NewPolygonFlat(geom.XY, []float64{
		0, 0, 1000, 0, 1000, 1000, 0, 1000, 0, 0,
		400, 400, 400, 600, 600, 600, 600, 400, 400, 400,
	}, []int{10, 20})
	p.SetSRID(3035)
	a, err := NewStudyArea(p)
	require.NoError(t, err)
	return a
}

func TestStudyAreaContains(t *testing.T) {
	t.Parallel()

	a := donut(t)

	tests := []struct {
		name string
		x, y float64
		want bool
	}{
		{"interior", 100, 100, true},
		{"inside hole", 500, 500, false},
		{"outside", 1500, 500, false},
		{"outside bounds", -10, -10, false},
		{"between hole and edge", 300, 500, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, a.Contains(tt.x, tt.y))
		})
	}
}

func TestStudyAreaContainsRect(t *testing.T) {
	t.Parallel()

	a := donut(t)

	tests := []struct {
		name                   string
		minX, minY, maxX, maxY float64
		want                   bool
	}{
		{"fully interior", 100, 100, 200, 200, true},
		{"crosses outer boundary", 950, 100, 1050, 200, false},
		{"touches outer boundary", 900, 100, 1000, 200, false},
		{"crosses hole", 350, 450, 450, 550, false},
		{"inside hole", 450, 450, 550, 550, false},
		{"outside", 1200, 1200, 1300, 1300, false},
		{"hugs hole without touching", 100, 100, 399, 399, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, a.ContainsRect(tt.minX, tt.minY, tt.maxX, tt.maxY))
		})
	}
}

func TestStudyAreaSRID(t *testing.T) {
	t.Parallel()

	a := donut(t)
	assert.Equal(t, 3035, a.SRID())
	assert.Len(t, a.Rings(), 2)
}

func TestLoadStudyArea(t *testing.T) {
	t.Parallel()

	p := geom.NewPolygonFlat(geom.XY, []float64{
		0, 0, 1000, 0, 1000, 1000, 0, 1000, 0, 0,
	}, []int{10})
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(p))

	path := filepath.Join(t.TempDir(), "boundary.shp")
	require.NoError(t, vector.WritePolygons(path, []string{"study"}, []*geom.MultiPolygon{mp}))

	a, err := Load(path, 3035)
	require.NoError(t, err)
	assert.True(t, a.Contains(500, 500))
	assert.False(t, a.Contains(1500, 500))
	assert.Equal(t, 3035, a.SRID())
}

func TestSegmentIntersectsRect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		x1, y1, x2, y2 float64
		want           bool
	}{
		{"crosses through", -1, 5, 11, 5, true},
		{"endpoint inside", 5, 5, 20, 20, true},
		{"misses entirely", 20, 20, 30, 30, false},
		{"touches corner", 10, 10, 20, 10, true},
		{"runs along edge", 0, 0, 10, 0, true},
		{"parallel above", -5, 11, 15, 11, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := SegmentIntersectsRect(tt.x1, tt.y1, tt.x2, tt.y2, 0, 0, 10, 10)
			assert.Equal(t, tt.want, got)
		})
	}
}
