// Package raster serves single-band byte rasters through windowed reads,
// so the pipeline never materializes a full-resolution layer in memory.
package raster

import (
	"errors"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ErrNoOverlap reports that a requested region lies entirely outside a
// layer's extent. Callers treat it as a missing spatial match, not an
// I/O failure.
var ErrNoOverlap = errors.New("raster: region outside layer extent")

// Window is a rectangular pixel region with a top-left origin.
type Window struct {
	Col    int
	Row    int
	Width  int
	Height int
}

// Empty reports whether the window covers no pixels.
func (w Window) Empty() bool {
	return w.Width <= 0 || w.Height <= 0
}

// Layer is a single-band byte raster served through windowed reads.
// Implementations must be safe for concurrent readers: every Read
// materializes its own pixel buffer, so workers never share a cursor.
type Layer interface {
	Size() (cols, rows int)
	Transform() GeoTransform
	NoData() (byte, bool)
	Read(w Window) ([]byte, error)
	Close() error
}

// Extent returns the layer's bounding box in world coordinates.
func Extent(l Layer) *geom.Bounds {
	cols, rows := l.Size()
	gt := l.Transform()
	x0, y0 := gt.PixelToWorld(0, 0)
	x1, y1 := gt.PixelToWorld(float64(cols), float64(rows))
	return geom.NewBounds(geom.XY).Set(
		math.Min(x0, x1), math.Min(y0, y1),
		math.Max(x0, x1), math.Max(y0, y1),
	)
}

// WindowFor returns the smallest pixel window covering b, clipped to the
// layer extent. It returns ErrNoOverlap when nothing of b falls on the
// layer.
func WindowFor(l Layer, b *geom.Bounds) (Window, error) {
	gt := l.Transform()
	c0, r0, err := gt.WorldToPixel(b.Min(0), b.Min(1))
	if err != nil {
		return Window{}, err
	}
	c1, r1, err := gt.WorldToPixel(b.Max(0), b.Max(1))
	if err != nil {
		return Window{}, err
	}

	// A hair of tolerance keeps region edges that sit exactly on a pixel
	// boundary from grabbing the neighboring pixel.
	const eps = 1e-9
	colLo := int(math.Floor(math.Min(c0, c1) + eps))
	colHi := int(math.Ceil(math.Max(c0, c1) - eps))
	rowLo := int(math.Floor(math.Min(r0, r1) + eps))
	rowHi := int(math.Ceil(math.Max(r0, r1) - eps))

	cols, rows := l.Size()
	colLo = max(colLo, 0)
	rowLo = max(rowLo, 0)
	colHi = min(colHi, cols)
	rowHi = min(rowHi, rows)
	if colHi <= colLo || rowHi <= rowLo {
		return Window{}, ErrNoOverlap
	}
	return Window{Col: colLo, Row: rowLo, Width: colHi - colLo, Height: rowHi - rowLo}, nil
}

// ReadRegion reads the pixels under the world-coordinate bounds b.
func ReadRegion(l Layer, b *geom.Bounds) ([]byte, error) {
	w, err := WindowFor(l, b)
	if err != nil {
		return nil, err
	}
	px, err := l.Read(w)
	if err != nil {
		return nil, eris.Wrap(err, "raster: read region")
	}
	return px, nil
}
