// Package facematch provides the bounding-box geometry shared by the tracking
// cache, the recognition pipeline and enrollment.
package facematch

// Box is a face bounding box [x1, y1, x2, y2] in frame pixel coordinates.
type Box [4]float64

// Width returns x2 - x1.
func (b Box) Width() float64 { return b[2] - b[0] }

// Height returns y2 - y1.
func (b Box) Height() float64 { return b[3] - b[1] }

// Area returns the box area, zero for degenerate boxes.
func (b Box) Area() float64 {
	if !b.Valid() {
		return 0
	}
	return b.Width() * b.Height()
}

// Valid reports whether x1 < x2 and y1 < y2.
func (b Box) Valid() bool {
	return b[0] < b[2] && b[1] < b[3]
}

// Ints returns the box rounded to integer pixel coordinates for API responses.
func (b Box) Ints() [4]int {
	return [4]int{int(b[0] + 0.5), int(b[1] + 0.5), int(b[2] + 0.5), int(b[3] + 0.5)}
}

// Detection is a single face reported by the external detector.
type Detection struct {
	Box        Box
	Confidence float64
}
