package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeoTransformRoundTrip(t *testing.T) {
	t.Parallel()

	gt := NorthUp(4000000, 2100000, 100)

	x, y := gt.PixelToWorld(0, 0)
	assert.Equal(t, 4000000.0, x)
	assert.Equal(t, 2100000.0, y)

	x, y = gt.PixelToWorld(10, 5)
	assert.Equal(t, 4001000.0, x)
	assert.Equal(t, 2099500.0, y)

	col, row, err := gt.WorldToPixel(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, col, 1e-9)
	assert.InDelta(t, 5.0, row, 1e-9)
}

func TestGeoTransformNotInvertible(t *testing.T) {
	t.Parallel()

	var gt GeoTransform // all zeros, determinant 0
	_, _, err := gt.WorldToPixel(1, 1)
	assert.Error(t, err)
}

func TestGeoTransformResolution(t *testing.T) {
	t.Parallel()

	gt := NorthUp(0, 0, 25)
	rx, ry := gt.Resolution()
	assert.Equal(t, 25.0, rx)
	assert.Equal(t, 25.0, ry)
}
