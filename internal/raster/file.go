package raster

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
)

// Header describes the shape and georeferencing of a raw byte-band file.
// It lives next to the band as <path>.json.
type Header struct {
	Cols      int          `json:"cols"`
	Rows      int          `json:"rows"`
	Transform GeoTransform `json:"transform"`
	NoData    *byte        `json:"nodata,omitempty"`
	SRID      int          `json:"srid,omitempty"`
}

// FileLayer is a Layer backed by a raw single-band byte file, row-major
// from the top-left pixel. Reads go straight to the file with ReadAt, so
// one open layer serves any number of concurrent workers.
type FileLayer struct {
	f   *os.File
	hdr Header
}

// Open maps the band file at path using its JSON sidecar header.
func Open(path string) (*FileLayer, error) {
	raw, err := os.ReadFile(path + ".json")
	if err != nil {
		return nil, eris.Wrapf(err, "raster: read header for %s", path)
	}
	var hdr Header
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil, eris.Wrapf(err, "raster: parse header for %s", path)
	}
	if hdr.Cols <= 0 || hdr.Rows <= 0 {
		return nil, eris.Errorf("raster: %s: invalid dimensions %dx%d", path, hdr.Cols, hdr.Rows)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open band %s", path)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, eris.Wrapf(err, "raster: stat band %s", path)
	}
	if fi.Size() < int64(hdr.Cols)*int64(hdr.Rows) {
		f.Close()
		return nil, eris.Errorf("raster: %s: band holds %d bytes, header declares %dx%d",
			path, fi.Size(), hdr.Cols, hdr.Rows)
	}
	return &FileLayer{f: f, hdr: hdr}, nil
}

// Size returns the band dimensions in pixels.
func (l *FileLayer) Size() (cols, rows int) {
	return l.hdr.Cols, l.hdr.Rows
}

// Transform returns the pixel-to-world affine transform.
func (l *FileLayer) Transform() GeoTransform {
	return l.hdr.Transform
}

// NoData returns the declared nodata value, if any.
func (l *FileLayer) NoData() (byte, bool) {
	if l.hdr.NoData == nil {
		return 0, false
	}
	return *l.hdr.NoData, true
}

// SRID returns the declared spatial reference id, or zero.
func (l *FileLayer) SRID() int {
	return l.hdr.SRID
}

// Read materializes the pixels of w into a fresh buffer.
func (l *FileLayer) Read(w Window) ([]byte, error) {
	if w.Empty() {
		return nil, eris.Errorf("raster: empty window %+v", w)
	}
	if w.Col < 0 || w.Row < 0 || w.Col+w.Width > l.hdr.Cols || w.Row+w.Height > l.hdr.Rows {
		return nil, eris.Errorf("raster: window %+v outside %dx%d band", w, l.hdr.Cols, l.hdr.Rows)
	}
	buf := make([]byte, w.Width*w.Height)
	for r := 0; r < w.Height; r++ {
		off := int64(w.Row+r)*int64(l.hdr.Cols) + int64(w.Col)
		if _, err := l.f.ReadAt(buf[r*w.Width:(r+1)*w.Width], off); err != nil {
			return nil, eris.Wrapf(err, "raster: read row %d of %s", w.Row+r, l.f.Name())
		}
	}
	return buf, nil
}

// Close releases the band file.
func (l *FileLayer) Close() error {
	return l.f.Close()
}

// Write materializes l as a band file plus sidecar header at path.
// Mainly used to build fixtures and small derived layers.
func Write(path string, l Layer) error {
	cols, rows := l.Size()
	px, err := l.Read(Window{Width: cols, Height: rows})
	if err != nil {
		return eris.Wrapf(err, "raster: read layer for %s", path)
	}
	hdr := Header{Cols: cols, Rows: rows, Transform: l.Transform()}
	if nd, ok := l.NoData(); ok {
		hdr.NoData = &nd
	}
	raw, err := json.Marshal(hdr)
	if err != nil {
		return eris.Wrap(err, "raster: marshal header")
	}
	if err := os.WriteFile(path, px, 0o644); err != nil {
		return eris.Wrapf(err, "raster: write band %s", path)
	}
	if err := os.WriteFile(path+".json", raw, 0o644); err != nil {
		return eris.Wrapf(err, "raster: write header for %s", path)
	}
	return nil
}
