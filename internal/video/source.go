// Package video provides decoded-frame access for the sampling pipeline.
// A FrameSource wraps whatever can seek to a timestamp and hand back raw
// RGBA pixels: an ffmpeg-backed file source in production, a synthetic
// generator in dev mode and tests.
package video

import (
	"context"
	"errors"
)

// ErrNoVideoStream indicates the input container holds no video stream.
var ErrNoVideoStream = errors.New("no video stream in input")

// Frame is one decoded video frame. Pixels is tightly packed RGBA, 8 bits
// per channel, Width*Height*4 bytes, row-major from the top-left corner.
type Frame struct {
	Pixels    []byte
	Width     int
	Height    int
	Timestamp float64 // seconds from the start of the video
}

// FrameSource exposes a video as seekable decoded frames.
//
// DecodeAt is the scheduler's single suspension point: it blocks until the
// seek and decode complete or ctx is cancelled. Implementations must return
// frames sized to the source's native Bounds.
type FrameSource interface {
	// Duration returns the length of the video in seconds.
	Duration() float64

	// Bounds returns the native pixel dimensions of the video.
	Bounds() (width, height int)

	// DecodeAt seeks to the given time and decodes one frame.
	DecodeAt(ctx context.Context, seconds float64) (*Frame, error)

	// Close releases decoder resources.
	Close() error
}
