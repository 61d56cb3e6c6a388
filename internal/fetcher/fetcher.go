// Package fetcher downloads raster tiles and boundary layers from the
// HTTP and FTP mirrors named in the tile manifest.
package fetcher

import (
	"context"
	"io"
	"net/url"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Mux routes downloads to a scheme-specific fetcher. Density and leaf-type
// tiles come off HTTPS mirrors while some national cover mirrors still
// serve plain FTP.
type Mux struct {
	http Fetcher
	ftp  Fetcher
}

// NewMux creates a Mux over the given HTTP and FTP fetchers.
func NewMux(http, ftp Fetcher) *Mux {
	return &Mux{http: http, ftp: ftp}
}

func (m *Mux) fetcherFor(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse url %s", rawURL)
	}
	switch u.Scheme {
	case "http", "https":
		return m.http, nil
	case "ftp":
		return m.ftp, nil
	default:
		return nil, eris.Errorf("fetch: unsupported scheme %q in %s", u.Scheme, rawURL)
	}
}

// Download fetches the URL with the fetcher matching its scheme.
func (m *Mux) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := m.fetcherFor(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

// DownloadToFile fetches the URL to a local file with the fetcher matching
// its scheme.
func (m *Mux) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	f, err := m.fetcherFor(rawURL)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, rawURL, path)
}
