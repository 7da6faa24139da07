package pointcloud

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

// RunStats tracks per-frame sampling statistics with thread-safe operations.
// One instance covers one run; Reset is called when a new run starts.
type RunStats struct {
	mu            sync.Mutex
	framesDone    int64
	attempts      int64
	accepted      int64
	perFrameCount []float64
}

// NewRunStats creates an empty RunStats instance.
func NewRunStats() *RunStats {
	return &RunStats{}
}

// Reset clears all counters for a new run.
func (rs *RunStats) Reset() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.framesDone = 0
	rs.attempts = 0
	rs.accepted = 0
	rs.perFrameCount = rs.perFrameCount[:0]
}

// AddFrame records the outcome of one processed frame.
func (rs *RunStats) AddFrame(accepted, attempts int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.framesDone++
	rs.attempts += int64(attempts)
	rs.accepted += int64(accepted)
	rs.perFrameCount = append(rs.perFrameCount, float64(accepted))
}

// StatsSnapshot is a point-in-time copy of run statistics for display.
type StatsSnapshot struct {
	FramesDone     int64     `json:"frames_done"`
	Attempts       int64     `json:"attempts"`
	Accepted       int64     `json:"accepted"`
	AcceptanceRate float64   `json:"acceptance_rate"`
	MeanPerFrame   float64   `json:"mean_per_frame"`
	StdDevPerFrame float64   `json:"stddev_per_frame"`
	PerFrame       []float64 `json:"per_frame,omitempty"`
}

// Snapshot returns current statistics. The per-frame series is copied so
// callers can plot it without racing the scheduler.
func (rs *RunStats) Snapshot() StatsSnapshot {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	snap := StatsSnapshot{
		FramesDone: rs.framesDone,
		Attempts:   rs.attempts,
		Accepted:   rs.accepted,
	}
	if rs.attempts > 0 {
		snap.AcceptanceRate = float64(rs.accepted) / float64(rs.attempts)
	}
	if len(rs.perFrameCount) > 0 {
		snap.MeanPerFrame = stat.Mean(rs.perFrameCount, nil)
		if len(rs.perFrameCount) > 1 {
			snap.StdDevPerFrame = stat.StdDev(rs.perFrameCount, nil)
		}
		snap.PerFrame = make([]float64, len(rs.perFrameCount))
		copy(snap.PerFrame, rs.perFrameCount)
	}
	return snap
}
