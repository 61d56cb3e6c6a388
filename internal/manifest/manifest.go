// Package manifest reads the tile manifest: the table mapping each
// raster tile id to its layer files and, optionally, to a pre-generated
// candidate grid and the remote sources the layers were fetched from.
package manifest

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// Entry is one manifest row. Paths are resolved against the manifest's
// directory at load time; GridPath, DensityURL and LeafURL may be empty.
type Entry struct {
	TileID      string `csv:"tile_id"`
	DensityPath string `csv:"density_path"`
	LeafPath    string `csv:"leaf_path"`
	GridPath    string `csv:"grid_path,omitempty"`
	DensityURL  string `csv:"density_url,omitempty"`
	LeafURL     string `csv:"leaf_url,omitempty"`
}

// Load reads and validates a manifest CSV. Entries come back sorted by
// tile id so every run walks tiles in the same order. A manifest that
// cannot be read or validated aborts the run.
func Load(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: read %s", path)
	}

	var entries []Entry
	if err := csvutil.Unmarshal(raw, &entries); err != nil {
		return nil, eris.Wrapf(err, "manifest: parse %s", path)
	}
	if len(entries) == 0 {
		return nil, eris.Errorf("manifest: %s has no tiles", path)
	}

	dir := filepath.Dir(path)
	seen := make(map[string]bool, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.TileID == "" {
			return nil, eris.Errorf("manifest: %s row %d has no tile id", path, i+1)
		}
		if seen[e.TileID] {
			return nil, eris.Errorf("manifest: %s lists tile %s twice", path, e.TileID)
		}
		seen[e.TileID] = true
		if e.DensityPath == "" || e.LeafPath == "" {
			return nil, eris.Errorf("manifest: tile %s is missing a layer path", e.TileID)
		}
		e.DensityPath = resolve(dir, e.DensityPath)
		e.LeafPath = resolve(dir, e.LeafPath)
		e.GridPath = resolve(dir, e.GridPath)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].TileID < entries[j].TileID })
	return entries, nil
}

// Index keys entries by tile id.
func Index(entries []Entry) map[string]Entry {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.TileID] = e
	}
	return m
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
