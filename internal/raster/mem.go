package raster

import (
	"github.com/rotisserie/eris"
)

// Mem is an in-memory Layer, used for tests and synthetic fixtures.
type Mem struct {
	cols, rows int
	gt         GeoTransform
	px         []byte
	nodata     *byte
}

// NewMem returns a zero-filled in-memory layer.
func NewMem(cols, rows int, gt GeoTransform) *Mem {
	return &Mem{cols: cols, rows: rows, gt: gt, px: make([]byte, cols*rows)}
}

// SetNoData declares v as the layer's nodata value.
func (m *Mem) SetNoData(v byte) *Mem {
	m.nodata = &v
	return m
}

// SetAll fills every pixel with v.
func (m *Mem) SetAll(v byte) *Mem {
	for i := range m.px {
		m.px[i] = v
	}
	return m
}

// Set assigns one pixel. Out-of-range coordinates are ignored.
func (m *Mem) Set(col, row int, v byte) *Mem {
	if col < 0 || row < 0 || col >= m.cols || row >= m.rows {
		return m
	}
	m.px[row*m.cols+col] = v
	return m
}

// Fill assigns v to every pixel of w that falls on the layer.
func (m *Mem) Fill(w Window, v byte) *Mem {
	for r := w.Row; r < w.Row+w.Height; r++ {
		for c := w.Col; c < w.Col+w.Width; c++ {
			m.Set(c, r, v)
		}
	}
	return m
}

// Size returns the layer dimensions in pixels.
func (m *Mem) Size() (cols, rows int) {
	return m.cols, m.rows
}

// Transform returns the pixel-to-world affine transform.
func (m *Mem) Transform() GeoTransform {
	return m.gt
}

// NoData returns the declared nodata value, if any.
func (m *Mem) NoData() (byte, bool) {
	if m.nodata == nil {
		return 0, false
	}
	return *m.nodata, true
}

// Read materializes the pixels of w into a fresh buffer.
func (m *Mem) Read(w Window) ([]byte, error) {
	if w.Empty() {
		return nil, eris.Errorf("raster: empty window %+v", w)
	}
	if w.Col < 0 || w.Row < 0 || w.Col+w.Width > m.cols || w.Row+w.Height > m.rows {
		return nil, eris.Errorf("raster: window %+v outside %dx%d band", w, m.cols, m.rows)
	}
	buf := make([]byte, w.Width*w.Height)
	for r := 0; r < w.Height; r++ {
		src := (w.Row+r)*m.cols + w.Col
		copy(buf[r*w.Width:(r+1)*w.Width], m.px[src:src+w.Width])
	}
	return buf, nil
}

// Close is a no-op for in-memory layers.
func (m *Mem) Close() error {
	return nil
}
