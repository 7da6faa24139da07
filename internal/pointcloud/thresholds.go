// Package pointcloud implements the frame-to-point-cloud sampling pipeline:
// random pixel sampling with brightness/variance heuristics, mapping of
// accepted pixels into normalized 3D coordinates, and an append-only point
// buffer consumed by the viewer.
package pointcloud

import "fmt"

// Thresholds control the accept/reject heuristics applied to each sampled
// pixel and the per-frame sampling budgets. They are constant for the
// duration of a run.
type Thresholds struct {
	// BrightnessRejectAbove rejects pixels whose mean channel value exceeds
	// this bound. Filters near-white pixels.
	BrightnessRejectAbove float64 `json:"brightness_reject_above"`

	// ColorVarianceRejectBelow rejects pixels whose max pairwise channel
	// difference falls below this bound. Filters near-gray pixels.
	ColorVarianceRejectBelow float64 `json:"color_variance_reject_below"`

	// TargetPointsPerFrame stops sampling a frame once this many pixels
	// have been accepted.
	TargetPointsPerFrame int `json:"target_points_per_frame"`

	// MaxAttemptsPerFrame bounds the total picks per frame, accepted or not.
	MaxAttemptsPerFrame int `json:"max_attempts_per_frame"`
}

// DefaultThresholds returns the standard sampling thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BrightnessRejectAbove:    0.9,
		ColorVarianceRejectBelow: 0.1,
		TargetPointsPerFrame:     100,
		MaxAttemptsPerFrame:      300,
	}
}

// Validate checks that the thresholds describe a usable sampling budget.
func (t Thresholds) Validate() error {
	if t.BrightnessRejectAbove < 0 || t.BrightnessRejectAbove > 1 {
		return fmt.Errorf("brightness_reject_above must be in [0,1], got %v", t.BrightnessRejectAbove)
	}
	if t.ColorVarianceRejectBelow < 0 || t.ColorVarianceRejectBelow > 1 {
		return fmt.Errorf("color_variance_reject_below must be in [0,1], got %v", t.ColorVarianceRejectBelow)
	}
	if t.TargetPointsPerFrame <= 0 {
		return fmt.Errorf("target_points_per_frame must be positive, got %d", t.TargetPointsPerFrame)
	}
	if t.MaxAttemptsPerFrame < t.TargetPointsPerFrame {
		return fmt.Errorf("max_attempts_per_frame (%d) must be >= target_points_per_frame (%d)",
			t.MaxAttemptsPerFrame, t.TargetPointsPerFrame)
	}
	return nil
}
