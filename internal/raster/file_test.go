package raster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLayerRoundTrip(t *testing.T) {
	t.Parallel()

	src := NewMem(8, 6, NorthUp(4000000, 2100000, 100)).SetNoData(255)
	src.SetAll(42)
	src.Fill(Window{Col: 2, Row: 1, Width: 3, Height: 2}, 90)

	path := filepath.Join(t.TempDir(), "tcd_E40N21.grd")
	require.NoError(t, Write(path, src))

	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	cols, rows := l.Size()
	assert.Equal(t, 8, cols)
	assert.Equal(t, 6, rows)

	nd, ok := l.NoData()
	require.True(t, ok)
	assert.Equal(t, byte(255), nd)

	px, err := l.Read(Window{Col: 2, Row: 1, Width: 3, Height: 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{90, 90, 90, 90, 90, 90}, px)

	px, err = l.Read(Window{Col: 0, Row: 0, Width: 2, Height: 1})
	require.NoError(t, err)
	assert.Equal(t, []byte{42, 42}, px)
}

func TestFileLayerWindowOutOfRange(t *testing.T) {
	t.Parallel()

	src := NewMem(4, 4, NorthUp(0, 400, 100))
	path := filepath.Join(t.TempDir(), "band.grd")
	require.NoError(t, Write(path, src))

	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Read(Window{Col: 2, Row: 2, Width: 4, Height: 4})
	assert.Error(t, err)
}

func TestOpenMissingHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "orphan.grd")
	require.NoError(t, os.WriteFile(path, make([]byte, 16), 0o644))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestOpenTruncatedBand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "short.grd")
	require.NoError(t, os.WriteFile(path, make([]byte, 4), 0o644))
	hdr := `{"cols": 4, "rows": 4, "transform": [0, 100, 0, 400, 0, -100]}`
	require.NoError(t, os.WriteFile(path+".json", []byte(hdr), 0o644))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestOpenInvalidDimensions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.grd")
	require.NoError(t, os.WriteFile(path, make([]byte, 4), 0o644))
	hdr := `{"cols": 0, "rows": 4, "transform": [0, 100, 0, 400, 0, -100]}`
	require.NoError(t, os.WriteFile(path+".json", []byte(hdr), 0o644))

	_, err := Open(path)
	assert.Error(t, err)
}
