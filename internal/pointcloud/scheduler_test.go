package pointcloud

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/framecloud/internal/timeutil"
	"github.com/banshee-data/framecloud/internal/video"
)

// fakeSource serves solid-color frames and records every requested
// timestamp so tests can assert strict ordering.
type fakeSource struct {
	width    int
	height   int
	duration float64
	r, g, b  byte

	failAtFrame int // fail the Nth decode (0-based); -1 disables
	decodeDelay time.Duration

	mu         sync.Mutex
	timestamps []float64
	closed     bool
}

func newFakeSource(duration float64, r, g, b byte) *fakeSource {
	return &fakeSource{width: 8, height: 8, duration: duration, r: r, g: g, b: b, failAtFrame: -1}
}

func (f *fakeSource) Duration() float64    { return f.duration }
func (f *fakeSource) Bounds() (int, int)   { return f.width, f.height }
func (f *fakeSource) Close() error         { f.mu.Lock(); defer f.mu.Unlock(); f.closed = true; return nil }
func (f *fakeSource) requested() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.timestamps))
	copy(out, f.timestamps)
	return out
}

func (f *fakeSource) DecodeAt(ctx context.Context, seconds float64) (*video.Frame, error) {
	if f.decodeDelay > 0 {
		select {
		case <-time.After(f.decodeDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	idx := len(f.timestamps)
	f.timestamps = append(f.timestamps, seconds)
	f.mu.Unlock()

	if f.failAtFrame >= 0 && idx == f.failAtFrame {
		return nil, fmt.Errorf("decoder exploded at %.3fs", seconds)
	}

	pixels := make([]byte, f.width*f.height*4)
	for i := 0; i < len(pixels); i += 4 {
		pixels[i], pixels[i+1], pixels[i+2], pixels[i+3] = f.r, f.g, f.b, 255
	}
	return &video.Frame{Pixels: pixels, Width: f.width, Height: f.height, Timestamp: seconds}, nil
}

func newTestScheduler(onProgress func(Progress)) *Scheduler {
	return NewScheduler(SchedulerConfig{
		Thresholds: DefaultThresholds(),
		Seed:       1,
		OnProgress: onProgress,
	})
}

func TestScheduler_RunToCompletion(t *testing.T) {
	src := newFakeSource(1.0, 255, 0, 0) // red frames, fully accepted
	s := newTestScheduler(nil)

	if err := s.Start(context.Background(), src); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Wait()

	if got := s.State(); got != StateCompleted {
		t.Fatalf("State = %v, want Completed", got)
	}

	p := s.Progress()
	if p.TotalFrames != 30 {
		t.Errorf("TotalFrames = %d, want 30 for 1s at 30fps", p.TotalFrames)
	}
	if p.CurrentFrame != 30 {
		t.Errorf("CurrentFrame = %d, want 30", p.CurrentFrame)
	}
	if p.Percent != 100 {
		t.Errorf("Percent = %v, want 100", p.Percent)
	}
	if p.Processing {
		t.Error("Processing must be false after completion")
	}

	// Red frames accept the full 100-point target per frame.
	if got := s.Buffer().Len(); got != 30*100 {
		t.Errorf("Buffer holds %d points, want 3000", got)
	}
}

func TestScheduler_FrameCountFloorsDuration(t *testing.T) {
	// 1.99s at 30fps is 59.7 nominal frames; partial frames are dropped.
	src := newFakeSource(1.99, 255, 0, 0)
	s := newTestScheduler(nil)

	if err := s.Start(context.Background(), src); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Wait()

	if got := s.Progress().TotalFrames; got != 59 {
		t.Errorf("TotalFrames = %d, want 59", got)
	}
}

func TestScheduler_StrictFrameOrdering(t *testing.T) {
	src := newFakeSource(0.5, 255, 0, 0)
	s := newTestScheduler(nil)

	if err := s.Start(context.Background(), src); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Wait()

	ts := src.requested()
	if len(ts) != 15 {
		t.Fatalf("Decoded %d frames, want 15", len(ts))
	}
	for i, want := range ts {
		if got := float64(i) / 30.0; want != got {
			t.Errorf("Frame %d requested at %v, want %v", i, want, got)
		}
		if i > 0 && ts[i] <= ts[i-1] {
			t.Errorf("Timestamps must be strictly increasing: ts[%d]=%v ts[%d]=%v", i-1, ts[i-1], i, ts[i])
		}
	}
}

func TestScheduler_GrayVideoYieldsNoPoints(t *testing.T) {
	src := newFakeSource(0.5, 128, 128, 128)
	s := newTestScheduler(nil)

	if err := s.Start(context.Background(), src); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Wait()

	if got := s.State(); got != StateCompleted {
		t.Errorf("State = %v, want Completed; empty output is not a failure", got)
	}
	if got := s.Buffer().Len(); got != 0 {
		t.Errorf("Buffer holds %d points, want 0 for an all-gray video", got)
	}
}

func TestScheduler_DecodeFailureStopsRun(t *testing.T) {
	src := newFakeSource(1.0, 255, 0, 0)
	src.failAtFrame = 5
	s := newTestScheduler(nil)

	if err := s.Start(context.Background(), src); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Wait()

	if got := s.State(); got != StateFailed {
		t.Fatalf("State = %v, want Failed", got)
	}
	p := s.Progress()
	if !strings.Contains(p.Err, "frame 5") {
		t.Errorf("Error should name the failing frame: %q", p.Err)
	}
	// Frames before the failure keep their points.
	if got := s.Buffer().Len(); got != 5*100 {
		t.Errorf("Buffer holds %d points, want 500 from the frames before the failure", got)
	}
	// No decode past the failing frame.
	if got := len(src.requested()); got != 6 {
		t.Errorf("Decoded %d frames, want 6 (failure aborts the run)", got)
	}
}

func TestScheduler_Cancel(t *testing.T) {
	src := newFakeSource(10, 255, 0, 0)
	src.decodeDelay = 5 * time.Millisecond
	s := newTestScheduler(nil)

	if err := s.Start(context.Background(), src); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	s.Cancel()
	s.Wait()

	if got := s.State(); got != StateFailed {
		t.Errorf("State after cancel = %v, want Failed", got)
	}
	if got := len(src.requested()); got >= 300 {
		t.Errorf("Cancel did not stop decoding: %d frames", got)
	}
}

func TestScheduler_StartWhileRunning(t *testing.T) {
	src := newFakeSource(10, 255, 0, 0)
	src.decodeDelay = 5 * time.Millisecond
	s := newTestScheduler(nil)

	if err := s.Start(context.Background(), src); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { s.Cancel(); s.Wait() }()

	if err := s.Start(context.Background(), newFakeSource(1, 255, 0, 0)); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Second Start returned %v, want ErrAlreadyRunning", err)
	}
}

func TestScheduler_SecondRunResetsBuffer(t *testing.T) {
	s := newTestScheduler(nil)

	if err := s.Start(context.Background(), newFakeSource(0.5, 255, 0, 0)); err != nil {
		t.Fatalf("First Start failed: %v", err)
	}
	s.Wait()
	first := s.Buffer().Len()
	if first == 0 {
		t.Fatal("First run produced no points")
	}

	// A shorter second run must not inherit the first run's points.
	if err := s.Start(context.Background(), newFakeSource(0.2, 0, 0, 255)); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}
	s.Wait()

	if got, want := s.Buffer().Len(), 6*100; got != want {
		t.Errorf("Second run buffer holds %d points, want %d", got, want)
	}
}

func TestScheduler_RejectsInvalidSource(t *testing.T) {
	s := newTestScheduler(nil)

	if err := s.Start(context.Background(), newFakeSource(0, 255, 0, 0)); err == nil {
		t.Error("Expected error for zero duration")
	}

	short := newFakeSource(0.01, 255, 0, 0) // under one frame at 30fps
	if err := s.Start(context.Background(), short); err == nil {
		t.Error("Expected error for video shorter than one frame")
	}

	bad := newFakeSource(1, 255, 0, 0)
	bad.width = 0
	if err := s.Start(context.Background(), bad); err == nil {
		t.Error("Expected error for zero width")
	}
}

func TestScheduler_ProgressCallback(t *testing.T) {
	var mu sync.Mutex
	var updates []Progress
	s := newTestScheduler(func(p Progress) {
		mu.Lock()
		updates = append(updates, p)
		mu.Unlock()
	})

	if err := s.Start(context.Background(), newFakeSource(0.5, 255, 0, 0)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Wait()

	mu.Lock()
	defer mu.Unlock()

	// 15 per-frame updates plus the terminal transition.
	if len(updates) != 16 {
		t.Fatalf("Got %d progress updates, want 16", len(updates))
	}
	for i := 0; i < 15; i++ {
		if updates[i].CurrentFrame != i+1 {
			t.Errorf("Update %d has CurrentFrame=%d, want %d", i, updates[i].CurrentFrame, i+1)
		}
		if !updates[i].Processing {
			t.Errorf("Update %d should still be processing", i)
		}
	}
	last := updates[len(updates)-1]
	if last.State != StateCompleted || last.Processing {
		t.Errorf("Terminal update wrong: %+v", last)
	}
}

func TestScheduler_FrameDelayPacing(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC))
	s := NewScheduler(SchedulerConfig{
		Thresholds: DefaultThresholds(),
		FrameDelay: 33 * time.Millisecond,
		Clock:      clock,
		Seed:       1,
	})

	if err := s.Start(context.Background(), newFakeSource(0.5, 255, 0, 0)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Wait()

	// 15 frames pace 14 times; there is no delay after the last frame.
	sleeps := clock.Sleeps()
	if len(sleeps) != 14 {
		t.Fatalf("Got %d sleeps, want 14", len(sleeps))
	}
	for _, d := range sleeps {
		if d != 33*time.Millisecond {
			t.Fatalf("Sleep of %v, want 33ms", d)
		}
	}
}

func TestScheduler_SeedDeterminism(t *testing.T) {
	run := func() ([]float32, []float32) {
		s := newTestScheduler(nil)
		if err := s.Start(context.Background(), newFakeSource(0.2, 200, 30, 90)); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		s.Wait()
		return s.Buffer().Snapshot()
	}

	pos1, col1 := run()
	pos2, col2 := run()

	if len(pos1) != len(pos2) {
		t.Fatalf("Runs produced different point counts: %d vs %d", len(pos1)/3, len(pos2)/3)
	}
	for i := range pos1 {
		if pos1[i] != pos2[i] || col1[i] != col2[i] {
			t.Fatalf("Seeded runs diverged at index %d", i)
		}
	}
}
