package video

import (
	"context"
	"fmt"
	"math"
)

// SyntheticSource generates deterministic frames without touching ffmpeg.
// Used in dev mode and in tests. Each frame contains a saturated color
// gradient that drifts with time, a pure white band (rejected as too
// bright), and a mid-gray band (rejected as too low variance), so the
// sampling heuristics are exercised end to end.
type SyntheticSource struct {
	width    int
	height   int
	duration float64
}

// NewSyntheticSource creates a synthetic video of the given dimensions and
// duration in seconds.
func NewSyntheticSource(width, height int, duration float64) *SyntheticSource {
	return &SyntheticSource{width: width, height: height, duration: duration}
}

// Duration returns the configured duration in seconds.
func (s *SyntheticSource) Duration() float64 { return s.duration }

// Bounds returns the configured frame dimensions.
func (s *SyntheticSource) Bounds() (int, int) { return s.width, s.height }

// DecodeAt renders the frame for the given timestamp. Deterministic: the
// same timestamp always produces identical pixels.
func (s *SyntheticSource) DecodeAt(ctx context.Context, seconds float64) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if seconds < 0 || seconds > s.duration {
		return nil, fmt.Errorf("timestamp %.3fs outside video duration %.3fs", seconds, s.duration)
	}

	pixels := make([]byte, s.width*s.height*4)
	phase := seconds * 2 * math.Pi / s.duration

	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			off := (y*s.width + x) * 4

			switch {
			case y < s.height/8:
				// White band: rejected by the brightness heuristic.
				pixels[off], pixels[off+1], pixels[off+2] = 255, 255, 255
			case y < s.height/4:
				// Gray band: rejected by the variance heuristic.
				pixels[off], pixels[off+1], pixels[off+2] = 128, 128, 128
			default:
				// Drifting saturated gradient: mostly accepted.
				fx := float64(x) / float64(s.width)
				fy := float64(y) / float64(s.height)
				r := 0.5 + 0.5*math.Sin(2*math.Pi*fx+phase)
				g := 0.5 + 0.5*math.Cos(2*math.Pi*fy+phase)
				pixels[off] = byte(r * 255)
				pixels[off+1] = byte(g * 255)
				pixels[off+2] = 64
			}
			pixels[off+3] = 255
		}
	}

	return &Frame{
		Pixels:    pixels,
		Width:     s.width,
		Height:    s.height,
		Timestamp: seconds,
	}, nil
}

// Close is a no-op for the synthetic source.
func (s *SyntheticSource) Close() error { return nil }
