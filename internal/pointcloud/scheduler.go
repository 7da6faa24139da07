package pointcloud

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/banshee-data/framecloud/internal/monitoring"
	"github.com/banshee-data/framecloud/internal/timeutil"
	"github.com/banshee-data/framecloud/internal/video"
)

// DefaultSampleRate is the nominal sampling rate in frames per second.
// Frame timestamps are derived from this rate regardless of the video's
// encoded frame rate; changing it changes observable point density.
const DefaultSampleRate = 30

// State is the scheduler's run state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrAlreadyRunning is returned by Start while a run is in progress.
var ErrAlreadyRunning = errors.New("a processing run is already in progress")

// Progress is the user-visible processing state, updated once per frame.
type Progress struct {
	State        State   `json:"-"`
	StateName    string  `json:"state"`
	CurrentFrame int     `json:"current_frame"`
	TotalFrames  int     `json:"total_frames"`
	Percent      float64 `json:"percent"`
	Stage        string  `json:"stage"`
	Processing   bool    `json:"processing"`
	PointCount   int     `json:"point_count"`
	Err          string  `json:"error,omitempty"`
}

// SchedulerConfig holds configuration for the frame scheduler.
type SchedulerConfig struct {
	// Thresholds are the sampling heuristics for the run.
	Thresholds Thresholds

	// SampleRate is the nominal sampling rate in fps (default 30).
	SampleRate int

	// FrameDelay is an optional pause between frames so the viewer can
	// observe the cloud growing. Zero means no pacing.
	FrameDelay time.Duration

	// Clock drives pacing; defaults to the real clock.
	Clock timeutil.Clock

	// Seed seeds the sampling RNG. Zero selects a time-based seed.
	Seed int64

	// OnProgress, if set, is invoked after every processed frame and once
	// on the terminal transition. Called from the run goroutine.
	OnProgress func(Progress)
}

// Scheduler drives sequential per-frame processing of a video: seek, decode,
// sample, map, accumulate, report. One frame at a time, strictly in
// increasing temporal order.
//
// State machine: Idle -> Running -> (Completed | Failed). Cancelling the
// run context transitions to Failed. Each run owns a fresh Buffer, so a
// stale in-flight decode from an abandoned run can never corrupt a newer
// run's points.
type Scheduler struct {
	cfg SchedulerConfig

	mu       sync.Mutex
	state    State
	progress Progress
	buffer   *Buffer
	stats    *RunStats
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates an idle scheduler with the given configuration.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Scheduler{
		cfg:    cfg,
		state:  StateIdle,
		buffer: NewBuffer(),
		stats:  NewRunStats(),
		progress: Progress{
			State:     StateIdle,
			StateName: StateIdle.String(),
			Stage:     "Waiting for video",
		},
	}
}

// Buffer returns the point buffer of the current (or most recent) run.
func (s *Scheduler) Buffer() *Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer
}

// Stats returns the statistics of the current (or most recent) run.
func (s *Scheduler) Stats() *RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Thresholds returns the sampling thresholds the scheduler runs with.
func (s *Scheduler) Thresholds() Thresholds { return s.cfg.Thresholds }

// SampleRate returns the nominal sampling rate in fps.
func (s *Scheduler) SampleRate() int { return s.cfg.SampleRate }

// Progress returns a copy of the current processing state.
func (s *Scheduler) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// State returns the current run state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins a processing run over src. The run executes on its own
// goroutine; Start returns immediately. Returns ErrAlreadyRunning if a run
// is active, or a validation error for unusable inputs.
//
// Starting a run resets the point buffer and processing state before the
// first frame is touched.
func (s *Scheduler) Start(ctx context.Context, src video.FrameSource) error {
	if err := s.cfg.Thresholds.Validate(); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}

	duration := src.Duration()
	if duration <= 0 {
		return fmt.Errorf("video duration must be positive, got %v", duration)
	}
	width, height := src.Bounds()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid video dimensions %dx%d", width, height)
	}
	totalFrames := int(duration * float64(s.cfg.SampleRate))
	if totalFrames == 0 {
		return fmt.Errorf("video too short to sample: %.3fs at %dfps", duration, s.cfg.SampleRate)
	}

	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)

	// A fresh buffer per run isolates late appends from abandoned runs.
	s.buffer = NewBuffer()
	s.stats = NewRunStats()
	s.state = StateRunning
	s.cancel = cancel
	s.done = make(chan struct{})
	s.progress = Progress{
		State:       StateRunning,
		StateName:   StateRunning.String(),
		TotalFrames: totalFrames,
		Stage:       "Processing frames",
		Processing:  true,
	}

	buffer := s.buffer
	stats := s.stats
	done := s.done
	s.mu.Unlock()

	monitoring.Logf("[Scheduler] starting run: %d frames (%.2fs at %dfps), %dx%d",
		totalFrames, duration, s.cfg.SampleRate, width, height)

	go func() {
		defer cancel()
		defer close(done)
		s.run(runCtx, src, buffer, stats, totalFrames, duration)
	}()
	return nil
}

// Cancel aborts the active run, if any. The run transitions to Failed with
// a cancellation error once the in-flight frame is abandoned.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current run reaches a terminal state. Returns
// immediately if no run was started.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// run executes the per-frame loop. It owns buffer and stats for this run;
// the scheduler fields may already point at a newer run's instances by the
// time a cancelled decode returns.
func (s *Scheduler) run(ctx context.Context, src video.FrameSource, buffer *Buffer, stats *RunStats, totalFrames int, duration float64) {
	seed := s.cfg.Seed
	if seed == 0 {
		seed = s.cfg.Clock.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	started := s.cfg.Clock.Now()

	for idx := 0; idx < totalFrames; idx++ {
		select {
		case <-ctx.Done():
			s.fail(buffer, fmt.Errorf("run cancelled at frame %d: %w", idx, ctx.Err()))
			return
		default:
		}

		t := float64(idx) / float64(s.cfg.SampleRate)

		// The only suspension point: seek and decode must complete (or
		// fail) before sampling proceeds.
		frame, err := src.DecodeAt(ctx, t)
		if err != nil {
			s.fail(buffer, fmt.Errorf("decoding frame %d at %.3fs: %w", idx, t, err))
			return
		}

		samples, attempts, err := Sample(frame.Pixels, frame.Width, frame.Height, s.cfg.Thresholds, rng)
		if err != nil {
			s.fail(buffer, fmt.Errorf("sampling frame %d: %w", idx, err))
			return
		}

		pts := make([]Point, len(samples))
		for i, sm := range samples {
			pts[i] = MapToPoint(sm, frame.Width, frame.Height, t, duration)
		}
		buffer.AppendBatch(pts)
		stats.AddFrame(len(samples), attempts)

		s.advance(idx+1, totalFrames, buffer.Len())

		// Cooperative pacing between frames keeps the growing cloud
		// observable; decode latency already yields the scheduler.
		if s.cfg.FrameDelay > 0 && idx+1 < totalFrames {
			s.cfg.Clock.Sleep(s.cfg.FrameDelay)
		}
	}

	s.complete(buffer)
	monitoring.Logf("[Scheduler] run complete: %d frames, %d points in %s",
		totalFrames, buffer.Len(), s.cfg.Clock.Since(started).Round(time.Millisecond))
}

// advance publishes per-frame progress.
func (s *Scheduler) advance(currentFrame, totalFrames, pointCount int) {
	s.mu.Lock()
	s.progress.CurrentFrame = currentFrame
	s.progress.Percent = float64(currentFrame) / float64(totalFrames) * 100
	s.progress.PointCount = pointCount
	p := s.progress
	s.mu.Unlock()

	if s.cfg.OnProgress != nil {
		s.cfg.OnProgress(p)
	}
}

// complete transitions Running -> Completed.
func (s *Scheduler) complete(buffer *Buffer) {
	s.mu.Lock()
	if s.buffer != buffer {
		// A newer run has taken over; this one's terminal state is moot.
		s.mu.Unlock()
		return
	}
	s.state = StateCompleted
	s.progress.State = StateCompleted
	s.progress.StateName = StateCompleted.String()
	s.progress.Stage = "Processing complete"
	s.progress.Processing = false
	p := s.progress
	s.mu.Unlock()

	if s.cfg.OnProgress != nil {
		s.cfg.OnProgress(p)
	}
}

// fail transitions Running -> Failed and records the error. The frame in
// progress is abandoned; there is no retry.
func (s *Scheduler) fail(buffer *Buffer, err error) {
	monitoring.Logf("[Scheduler] run failed: %v", err)

	s.mu.Lock()
	if s.buffer != buffer {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.progress.State = StateFailed
	s.progress.StateName = StateFailed.String()
	s.progress.Stage = "Processing failed"
	s.progress.Processing = false
	s.progress.Err = err.Error()
	p := s.progress
	s.mu.Unlock()

	if s.cfg.OnProgress != nil {
		s.cfg.OnProgress(p)
	}
}
