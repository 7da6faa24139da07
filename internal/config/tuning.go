// Package config loads framecloud tuning parameters from JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/framecloud/internal/pointcloud"
)

// TuningConfig represents the optional tuning file. All fields are pointers
// so a partial config only overrides what it names; omitted fields keep
// their defaults.
type TuningConfig struct {
	// Sampling thresholds
	BrightnessRejectAbove    *float64 `json:"brightness_reject_above,omitempty"`
	ColorVarianceRejectBelow *float64 `json:"color_variance_reject_below,omitempty"`
	TargetPointsPerFrame     *int     `json:"target_points_per_frame,omitempty"`
	MaxAttemptsPerFrame      *int     `json:"max_attempts_per_frame,omitempty"`

	// Scheduler params
	SampleRate *int    `json:"sample_rate,omitempty"`
	FrameDelay *string `json:"frame_delay,omitempty"` // duration string like "10ms"

	// Service params
	Listen *string `json:"listen,omitempty"`
	DBPath *string `json:"db_path,omitempty"`
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the size cap. Partial configs are
// safe; the Get* methods fall back to defaults for unset fields.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Thresholds returns the sampling thresholds with any overrides applied to
// the defaults.
func (c *TuningConfig) Thresholds() pointcloud.Thresholds {
	th := pointcloud.DefaultThresholds()
	if c == nil {
		return th
	}
	if c.BrightnessRejectAbove != nil {
		th.BrightnessRejectAbove = *c.BrightnessRejectAbove
	}
	if c.ColorVarianceRejectBelow != nil {
		th.ColorVarianceRejectBelow = *c.ColorVarianceRejectBelow
	}
	if c.TargetPointsPerFrame != nil {
		th.TargetPointsPerFrame = *c.TargetPointsPerFrame
	}
	if c.MaxAttemptsPerFrame != nil {
		th.MaxAttemptsPerFrame = *c.MaxAttemptsPerFrame
	}
	return th
}

// GetSampleRate returns the nominal sampling rate in fps.
func (c *TuningConfig) GetSampleRate() int {
	if c == nil || c.SampleRate == nil {
		return pointcloud.DefaultSampleRate
	}
	return *c.SampleRate
}

// GetFrameDelay returns the inter-frame pacing delay. Invalid duration
// strings fall back to zero (no pacing).
func (c *TuningConfig) GetFrameDelay() time.Duration {
	if c == nil || c.FrameDelay == nil {
		return 0
	}
	d, err := time.ParseDuration(*c.FrameDelay)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// GetListen returns the HTTP listen address.
func (c *TuningConfig) GetListen() string {
	if c == nil || c.Listen == nil {
		return ":8080"
	}
	return *c.Listen
}

// GetDBPath returns the sqlite database path.
func (c *TuningConfig) GetDBPath() string {
	if c == nil || c.DBPath == nil {
		return "framecloud.db"
	}
	return *c.DBPath
}
