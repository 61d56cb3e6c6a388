package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// GeoTransform maps pixel coordinates to world coordinates using the
// six-parameter affine convention:
//
//	x = GT[0] + col*GT[1] + row*GT[2]
//	y = GT[3] + col*GT[4] + row*GT[5]
//
// The origin (GT[0], GT[3]) is the outer corner of the top-left pixel.
// North-up rasters have GT[2] = GT[4] = 0 and a negative GT[5].
type GeoTransform [6]float64

// NorthUp builds the transform for an axis-aligned raster whose top-left
// corner is (x0, y0) with square pixels of the given size.
func NorthUp(x0, y0, pixel float64) GeoTransform {
	return GeoTransform{x0, pixel, 0, y0, 0, -pixel}
}

// PixelToWorld converts fractional pixel coordinates to world coordinates.
func (gt GeoTransform) PixelToWorld(col, row float64) (x, y float64) {
	x = gt[0] + col*gt[1] + row*gt[2]
	y = gt[3] + col*gt[4] + row*gt[5]
	return x, y
}

// WorldToPixel inverts the affine transform, returning fractional pixel
// coordinates. Callers decide how to snap them to the pixel lattice.
func (gt GeoTransform) WorldToPixel(x, y float64) (col, row float64, err error) {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 {
		return 0, 0, eris.New("raster: transform is not invertible")
	}
	dx := x - gt[0]
	dy := y - gt[3]
	col = (dx*gt[5] - dy*gt[2]) / det
	row = (dy*gt[1] - dx*gt[4]) / det
	return col, row, nil
}

// Resolution returns the absolute pixel size along each axis.
func (gt GeoTransform) Resolution() (rx, ry float64) {
	return math.Abs(gt[1]), math.Abs(gt[5])
}
