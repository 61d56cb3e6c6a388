package raster

// Mean averages the pixels in px, skipping the layer's declared nodata
// value. The returned count says how many pixels contributed, so callers
// can tell an empty window from a zero mean.
func Mean(l Layer, px []byte) (float64, int) {
	nodata, skip := l.NoData()
	var sum int64
	n := 0
	for _, v := range px {
		if skip && v == nodata {
			continue
		}
		sum += int64(v)
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return float64(sum) / float64(n), n
}

// Tabulate counts pixels by value, skipping the layer's declared nodata
// value.
func Tabulate(l Layer, px []byte) map[byte]int {
	nodata, skip := l.NoData()
	counts := make(map[byte]int)
	for _, v := range px {
		if skip && v == nodata {
			continue
		}
		counts[v]++
	}
	return counts
}
