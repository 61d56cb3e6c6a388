package region

import (
	"math"
)

// SegmentIntersectsRect reports whether the segment (x1,y1)-(x2,y2)
// touches the closed axis-aligned rectangle.
func SegmentIntersectsRect(x1, y1, x2, y2, minX, minY, maxX, maxY float64) bool {
	// Bounding-box reject first; boundary rings are long and most
	// segments are nowhere near a given cell.
	if math.Max(x1, x2) < minX || math.Min(x1, x2) > maxX ||
		math.Max(y1, y2) < minY || math.Min(y1, y2) > maxY {
		return false
	}
	if pointInRect(x1, y1, minX, minY, maxX, maxY) || pointInRect(x2, y2, minX, minY, maxX, maxY) {
		return true
	}
	// Both endpoints outside: the segment intersects iff it crosses an edge.
	return segmentsIntersect(x1, y1, x2, y2, minX, minY, maxX, minY) ||
		segmentsIntersect(x1, y1, x2, y2, maxX, minY, maxX, maxY) ||
		segmentsIntersect(x1, y1, x2, y2, maxX, maxY, minX, maxY) ||
		segmentsIntersect(x1, y1, x2, y2, minX, maxY, minX, minY)
}

func pointInRect(x, y, minX, minY, maxX, maxY float64) bool {
	return x >= minX && x <= maxX && y >= minY && y <= maxY
}

func orientation(ax, ay, bx, by, cx, cy float64) float64 {
	return (bx-ax)*(cy-ay) - (by-ay)*(cx-ax)
}

func onSegment(ax, ay, bx, by, px, py float64) bool {
	return math.Min(ax, bx) <= px && px <= math.Max(ax, bx) &&
		math.Min(ay, by) <= py && py <= math.Max(ay, by)
}

func segmentsIntersect(p1x, p1y, p2x, p2y, q1x, q1y, q2x, q2y float64) bool {
	o1 := orientation(p1x, p1y, p2x, p2y, q1x, q1y)
	o2 := orientation(p1x, p1y, p2x, p2y, q2x, q2y)
	o3 := orientation(q1x, q1y, q2x, q2y, p1x, p1y)
	o4 := orientation(q1x, q1y, q2x, q2y, p2x, p2y)

	if ((o1 > 0 && o2 < 0) || (o1 < 0 && o2 > 0)) &&
		((o3 > 0 && o4 < 0) || (o3 < 0 && o4 > 0)) {
		return true
	}

	// Collinear touch cases.
	if o1 == 0 && onSegment(p1x, p1y, p2x, p2y, q1x, q1y) {
		return true
	}
	if o2 == 0 && onSegment(p1x, p1y, p2x, p2y, q2x, q2y) {
		return true
	}
	if o3 == 0 && onSegment(q1x, q1y, q2x, q2y, p1x, p1y) {
		return true
	}
	if o4 == 0 && onSegment(q1x, q1y, q2x, q2y, p2x, p2y) {
		return true
	}
	return false
}
