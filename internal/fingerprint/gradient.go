package fingerprint

import (
	"context"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// GradientExtractorName is reported by the fallback extractor.
const GradientExtractorName = "hog"

const (
	descriptorSize  = 64 // crops are normalized to descriptorSize x descriptorSize
	cellSize        = 8
	orientationBins = 9
	minCropSize     = 16

	// GradientDim is the length of the fallback descriptor.
	GradientDim = (descriptorSize / cellSize) * (descriptorSize / cellSize) * orientationBins
)

// GradientExtractor computes a histogram of oriented gradients over an
// equalized grayscale crop. It needs no model and works offline.
type GradientExtractor struct{}

var _ Extractor = GradientExtractor{}

// NewGradientExtractor creates the fallback extractor
func NewGradientExtractor() GradientExtractor {
	return GradientExtractor{}
}

// Name identifies the extractor
func (GradientExtractor) Name() string {
	return GradientExtractorName
}

// Extract returns a unit-length GradientDim vector, or nil when the crop is
// too small or has no texture at all.
func (GradientExtractor) Extract(_ context.Context, crop image.Image) ([]float32, error) {
	if crop == nil {
		return nil, nil
	}
	b := crop.Bounds()
	if b.Dx() < minCropSize || b.Dy() < minCropSize {
		return nil, nil
	}

	gray := toGrayscale(resizeImage(crop, descriptorSize, descriptorSize))
	equalize(gray)

	hist := make([]float64, GradientDim)
	cellsPerRow := descriptorSize / cellSize
	binWidth := math.Pi / orientationBins
	var total float64

	for x := 1; x < descriptorSize-1; x++ {
		for y := 1; y < descriptorSize-1; y++ {
			gx := gray[x+1][y] - gray[x-1][y]
			gy := gray[x][y+1] - gray[x][y-1]
			mag := math.Hypot(gx, gy)
			if mag == 0 {
				continue
			}
			// Unsigned orientation in [0, pi).
			angle := math.Atan2(gy, gx)
			if angle < 0 {
				angle += math.Pi
			}
			bin := int(angle / binWidth)
			if bin >= orientationBins {
				bin = 0 // angle == pi folds onto 0
			}
			cell := (y/cellSize)*cellsPerRow + x/cellSize
			hist[cell*orientationBins+bin] += mag
			total += mag
		}
	}

	if total == 0 {
		return nil, nil
	}

	var norm float64
	for _, v := range hist {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, GradientDim)
	for i, v := range hist {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toGrayscale converts an image to a 2D array of grayscale values (0-255).
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}

	return gray
}

// equalize spreads the intensity histogram over 0-255 in place so that
// lighting changes between enrollment and recognition matter less.
// A single-intensity image is left unchanged.
func equalize(gray [][]float64) {
	var counts [256]int
	n := 0
	for x := range gray {
		for y := range gray[x] {
			counts[clampByte(gray[x][y])]++
			n++
		}
	}

	var cdf [256]int
	running, cdfMin := 0, 0
	for i, c := range counts {
		running += c
		cdf[i] = running
		if cdfMin == 0 && running > 0 {
			cdfMin = running
		}
	}
	if n == cdfMin {
		return
	}

	scale := 255 / float64(n-cdfMin)
	for x := range gray {
		for y := range gray[x] {
			gray[x][y] = float64(cdf[clampByte(gray[x][y])]-cdfMin) * scale
		}
	}
}

func clampByte(v float64) int {
	return int(min(max(v, 0), 255))
}
