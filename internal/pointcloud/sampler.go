package pointcloud

import (
	"fmt"
	"math/rand"
)

// PixelSample is a single accepted pixel with normalized channel values.
// X and Y are image coordinates (column, row); R, G, B are in [0,1].
type PixelSample struct {
	X, Y    int
	R, G, B float64
}

// Brightness is the mean of the normalized RGB channels.
func (s PixelSample) Brightness() float64 {
	return (s.R + s.G + s.B) / 3
}

// ColorVariance is the max pairwise channel difference. A low variance
// indicates a gray pixel regardless of brightness.
func (s PixelSample) ColorVariance() float64 {
	return maxAbsDiff(s.R, s.G, s.B)
}

func maxAbsDiff(r, g, b float64) float64 {
	v := abs(r - g)
	if d := abs(g - b); d > v {
		v = d
	}
	if d := abs(b - r); d > v {
		v = d
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Sample picks pixels uniformly at random from an RGBA buffer until either
// th.TargetPointsPerFrame pixels are accepted or th.MaxAttemptsPerFrame
// picks have been spent, whichever comes first. Rejected picks consume
// attempt budget but produce no sample. Running out of attempts is not an
// error; the frame simply contributes fewer points.
//
// The returned attempt count includes both accepted and rejected picks.
func Sample(pixels []byte, width, height int, th Thresholds, rng *rand.Rand) (samples []PixelSample, attempts int, err error) {
	if width <= 0 || height <= 0 {
		return nil, 0, fmt.Errorf("invalid frame dimensions %dx%d", width, height)
	}
	if want := width * height * 4; len(pixels) < want {
		return nil, 0, fmt.Errorf("pixel buffer too short: have %d bytes, need %d for %dx%d RGBA", len(pixels), want, width, height)
	}

	samples = make([]PixelSample, 0, th.TargetPointsPerFrame)
	for attempts = 0; attempts < th.MaxAttemptsPerFrame && len(samples) < th.TargetPointsPerFrame; attempts++ {
		x := rng.Intn(width)
		y := rng.Intn(height)
		off := (y*width + x) * 4

		s := PixelSample{
			X: x,
			Y: y,
			R: float64(pixels[off]) / 255,
			G: float64(pixels[off+1]) / 255,
			B: float64(pixels[off+2]) / 255,
			// Alpha at off+3 is ignored.
		}

		if s.Brightness() > th.BrightnessRejectAbove {
			continue
		}
		if s.ColorVariance() < th.ColorVarianceRejectBelow {
			continue
		}
		samples = append(samples, s)
	}
	return samples, attempts, nil
}
