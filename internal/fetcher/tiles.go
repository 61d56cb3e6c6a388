package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cruiseplan/siteselect/internal/manifest"
)

// TileFetchOptions controls manifest-driven tile acquisition.
type TileFetchOptions struct {
	Workers int  // concurrent downloads, default 4
	Force   bool // re-download layers that already exist locally
}

// TileFetchResult tallies the outcome of a FetchTiles call.
type TileFetchResult struct {
	Fetched int // layers downloaded
	Skipped int // layers already present
	Missing int // manifest rows with no URL for an absent layer
	Failed  int // downloads that errored after retries
}

// FetchTiles downloads every manifest layer that is missing locally. A
// layer download failure is isolated: the remaining layers still run and
// the failure is tallied, so one dead mirror link does not abort
// acquisition of a whole campaign.
func FetchTiles(ctx context.Context, f Fetcher, entries []manifest.Entry, opts TileFetchOptions) (TileFetchResult, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	type layer struct {
		tileID string
		url    string
		path   string
	}

	var wanted []layer
	var res TileFetchResult
	for _, e := range entries {
		for _, l := range []layer{
			{tileID: e.TileID, url: e.DensityURL, path: e.DensityPath},
			{tileID: e.TileID, url: e.LeafURL, path: e.LeafPath},
		} {
			if !opts.Force && fileExists(l.path) {
				res.Skipped++
				continue
			}
			if l.url == "" {
				zap.L().Warn("fetch: layer missing locally and manifest has no url",
					zap.String("tile", l.tileID),
					zap.String("path", l.path),
				)
				res.Missing++
				continue
			}
			wanted = append(wanted, l)
		}
	}

	var fetched, failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, l := range wanted {
		g.Go(func() error {
			if err := fetchLayer(ctx, f, l.url, l.path); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed.Add(1)
				zap.L().Warn("fetch: layer download failed",
					zap.String("tile", l.tileID),
					zap.String("url", l.url),
					zap.Error(err),
				)
				return nil
			}
			fetched.Add(1)
			zap.L().Info("fetch: layer downloaded",
				zap.String("tile", l.tileID),
				zap.String("path", l.path),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, eris.Wrap(err, "fetch: tiles")
	}

	res.Fetched = int(fetched.Load())
	res.Failed = int(failed.Load())
	return res, nil
}

// fetchLayer downloads one layer. Zip URLs are pulled to a temp archive
// and extracted next to the destination; the manifest path must be among
// the extracted files.
func fetchLayer(ctx context.Context, f Fetcher, rawURL, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return eris.Wrap(err, "fetch: create layer directory")
	}

	if !strings.HasSuffix(strings.ToLower(rawURL), ".zip") {
		_, err := f.DownloadToFile(ctx, rawURL, destPath)
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".tile-*.zip")
	if err != nil {
		return eris.Wrap(err, "fetch: create temp archive")
	}
	tmpPath := tmp.Name()
	tmp.Close()              //nolint:errcheck
	defer os.Remove(tmpPath) //nolint:errcheck

	if _, err := f.DownloadToFile(ctx, rawURL, tmpPath); err != nil {
		return err
	}

	extracted, err := ExtractZIP(tmpPath, filepath.Dir(destPath))
	if err != nil {
		return err
	}
	for _, p := range extracted {
		if filepath.Clean(p) == filepath.Clean(destPath) {
			return nil
		}
	}
	return eris.Errorf("fetch: archive %s did not contain %s", rawURL, filepath.Base(destPath))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
