package fetcher

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruiseplan/siteselect/internal/manifest"
)

func newTileServer(t *testing.T) *httptest.Server {
	t.Helper()

	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	entry, err := zw.Create("E050N020_density.bin")
	require.NoError(t, err)
	_, err = entry.Write([]byte("zipped density"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	mux := http.NewServeMux()
	mux.HandleFunc("/density/E040N020.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("density raster")) //nolint:errcheck
	})
	mux.HandleFunc("/leaf/E040N020.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("leaf raster")) //nolint:errcheck
	})
	mux.HandleFunc("/density/E050N020.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write(zipBuf.Bytes()) //nolint:errcheck
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func tileTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:  "test-agent",
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	})
}

func TestFetchTiles_DownloadsMissingLayers(t *testing.T) {
	srv := newTileServer(t)
	dir := t.TempDir()

	entries := []manifest.Entry{{
		TileID:      "E040N020",
		DensityPath: filepath.Join(dir, "E040N020_density.bin"),
		LeafPath:    filepath.Join(dir, "E040N020_leaf.bin"),
		DensityURL:  srv.URL + "/density/E040N020.bin",
		LeafURL:     srv.URL + "/leaf/E040N020.bin",
	}}

	res, err := FetchTiles(context.Background(), tileTestFetcher(), entries, TileFetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Zero(t, res.Skipped)
	assert.Zero(t, res.Failed)

	data, err := os.ReadFile(entries[0].DensityPath)
	require.NoError(t, err)
	assert.Equal(t, "density raster", string(data))
	assert.FileExists(t, entries[0].LeafPath)
}

func TestFetchTiles_SkipsExistingLayers(t *testing.T) {
	srv := newTileServer(t)
	dir := t.TempDir()

	densityPath := filepath.Join(dir, "E040N020_density.bin")
	require.NoError(t, os.WriteFile(densityPath, []byte("already here"), 0o644))

	entries := []manifest.Entry{{
		TileID:      "E040N020",
		DensityPath: densityPath,
		LeafPath:    filepath.Join(dir, "E040N020_leaf.bin"),
		DensityURL:  srv.URL + "/density/E040N020.bin",
		LeafURL:     srv.URL + "/leaf/E040N020.bin",
	}}

	res, err := FetchTiles(context.Background(), tileTestFetcher(), entries, TileFetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 1, res.Skipped)

	data, err := os.ReadFile(densityPath)
	require.NoError(t, err)
	assert.Equal(t, "already here", string(data)) // untouched
}

func TestFetchTiles_ForceRedownloads(t *testing.T) {
	srv := newTileServer(t)
	dir := t.TempDir()

	densityPath := filepath.Join(dir, "E040N020_density.bin")
	require.NoError(t, os.WriteFile(densityPath, []byte("stale"), 0o644))

	entries := []manifest.Entry{{
		TileID:      "E040N020",
		DensityPath: densityPath,
		LeafPath:    filepath.Join(dir, "E040N020_leaf.bin"),
		DensityURL:  srv.URL + "/density/E040N020.bin",
		LeafURL:     srv.URL + "/leaf/E040N020.bin",
	}}

	res, err := FetchTiles(context.Background(), tileTestFetcher(), entries, TileFetchOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Zero(t, res.Skipped)

	data, err := os.ReadFile(densityPath)
	require.NoError(t, err)
	assert.Equal(t, "density raster", string(data))
}

func TestFetchTiles_NoURLForMissingLayer(t *testing.T) {
	dir := t.TempDir()

	entries := []manifest.Entry{{
		TileID:      "E040N020",
		DensityPath: filepath.Join(dir, "E040N020_density.bin"),
		LeafPath:    filepath.Join(dir, "E040N020_leaf.bin"),
	}}

	res, err := FetchTiles(context.Background(), tileTestFetcher(), entries, TileFetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Missing)
	assert.Zero(t, res.Fetched)
}

func TestFetchTiles_FailureIsolatedPerLayer(t *testing.T) {
	srv := newTileServer(t)
	dir := t.TempDir()

	entries := []manifest.Entry{{
		TileID:      "E040N020",
		DensityPath: filepath.Join(dir, "E040N020_density.bin"),
		LeafPath:    filepath.Join(dir, "E040N020_leaf.bin"),
		DensityURL:  srv.URL + "/density/absent.bin",
		LeafURL:     srv.URL + "/leaf/E040N020.bin",
	}}

	res, err := FetchTiles(context.Background(), tileTestFetcher(), entries, TileFetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Fetched)
	assert.NoFileExists(t, entries[0].DensityPath)
	assert.FileExists(t, entries[0].LeafPath)
}

func TestFetchTiles_ExtractsZipLayers(t *testing.T) {
	srv := newTileServer(t)
	dir := t.TempDir()

	entries := []manifest.Entry{{
		TileID:      "E050N020",
		DensityPath: filepath.Join(dir, "E050N020_density.bin"),
		LeafPath:    filepath.Join(dir, "E050N020_leaf.bin"),
		DensityURL:  srv.URL + "/density/E050N020.zip",
		LeafURL:     srv.URL + "/leaf/E040N020.bin",
	}}

	res, err := FetchTiles(context.Background(), tileTestFetcher(), entries, TileFetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Zero(t, res.Failed)

	data, err := os.ReadFile(entries[0].DensityPath)
	require.NoError(t, err)
	assert.Equal(t, "zipped density", string(data))

	// No archive or temp files linger next to the rasters.
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
