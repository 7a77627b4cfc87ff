package facematch

import "image"

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// Both boxes are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(a, b Box) float64 {
	if !a.Valid() || !b.Valid() {
		return 0
	}

	// Calculate intersection.
	x1 := max(a[0], b[0])
	y1 := max(a[1], b[1])
	x2 := min(a[2], b[2])
	y2 := min(a[3], b[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}

// PadBox grows a box by padding pixels on every side and clamps it to the
// frame. The result is the region handed to the feature extractor.
func PadBox(b Box, padding, frameWidth, frameHeight int) image.Rectangle {
	p := float64(padding)
	r := image.Rect(
		int(max(0, b[0]-p)),
		int(max(0, b[1]-p)),
		int(min(float64(frameWidth), b[2]+p)),
		int(min(float64(frameHeight), b[3]+p)),
	)
	return r.Canon()
}

// Largest returns the index of the detection with the biggest box area,
// or -1 if there are none. Enrollment uses it to pick the subject's face.
func Largest(detections []Detection) int {
	best := -1
	var bestArea float64
	for i, d := range detections {
		if area := d.Box.Area(); area > bestArea {
			best = i
			bestArea = area
		}
	}
	return best
}
