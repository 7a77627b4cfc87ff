package facematch

import (
	"image"
	"math"
	"testing"
)

func TestComputeIoU(t *testing.T) {
	tests := []struct {
		name     string
		a        Box
		b        Box
		expected float64
	}{
		{
			name:     "identical boxes",
			a:        Box{0, 0, 10, 10},
			b:        Box{0, 0, 10, 10},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			a:        Box{0, 0, 10, 10},
			b:        Box{20, 20, 30, 30},
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			a:        Box{0, 0, 10, 10},
			b:        Box{5, 5, 15, 15},
			expected: 25.0 / 175.0, // intersection=25, union=100+100-25=175
		},
		{
			name:     "one inside other",
			a:        Box{0, 0, 20, 20},
			b:        Box{5, 5, 15, 15},
			expected: 100.0 / 400.0,
		},
		{
			name:     "tracking drift between frames",
			a:        Box{10, 10, 50, 50},
			b:        Box{12, 11, 51, 49},
			expected: 1444.0 / 1638.0, // 38*38 over 1600+1482-1444
		},
		{
			name:     "degenerate box",
			a:        Box{10, 10, 10, 20},
			b:        Box{0, 0, 30, 30},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ComputeIoU(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("ComputeIoU(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestPadBox(t *testing.T) {
	tests := []struct {
		name     string
		box      Box
		padding  int
		width    int
		height   int
		expected image.Rectangle
	}{
		{
			name:     "interior box",
			box:      Box{100, 100, 200, 220},
			padding:  20,
			width:    640,
			height:   480,
			expected: image.Rect(80, 80, 220, 240),
		},
		{
			name:     "clamped to frame corner",
			box:      Box{5, 10, 60, 70},
			padding:  20,
			width:    64,
			height:   80,
			expected: image.Rect(0, 0, 64, 80),
		},
		{
			name:     "no padding",
			box:      Box{1, 2, 3, 4},
			padding:  0,
			width:    10,
			height:   10,
			expected: image.Rect(1, 2, 3, 4),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PadBox(tt.box, tt.padding, tt.width, tt.height)
			if got != tt.expected {
				t.Errorf("PadBox() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLargest(t *testing.T) {
	if got := Largest(nil); got != -1 {
		t.Errorf("expected -1 for no detections, got %d", got)
	}

	detections := []Detection{
		{Box: Box{0, 0, 10, 10}, Confidence: 0.9},
		{Box: Box{0, 0, 40, 30}, Confidence: 0.6},
		{Box: Box{5, 5, 20, 20}, Confidence: 0.99},
	}
	if got := Largest(detections); got != 1 {
		t.Errorf("expected index 1, got %d", got)
	}
}

func TestBoxInts(t *testing.T) {
	b := Box{10.4, 10.6, 49.5, 50}
	if got := b.Ints(); got != [4]int{10, 11, 50, 50} {
		t.Errorf("Ints() = %v", got)
	}
}
