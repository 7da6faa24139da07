package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// FFmpegSource decodes frames from a local video file by shelling out to
// ffmpeg: one probe at open time for duration and dimensions, then one
// seek+decode invocation per requested frame, reading rawvideo RGBA from a
// pipe. Frame rate of the encoded stream is irrelevant here; the scheduler
// decides which timestamps to request.
type FFmpegSource struct {
	path     string
	duration float64
	width    int
	height   int
}

// probeFormat mirrors the subset of ffprobe JSON output we consume.
type probeFormat struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// NewFFmpegSource probes the file and returns a source ready for decoding.
// Fails if ffmpeg is not installed, the file cannot be probed, or the
// container has no video stream.
func NewFFmpegSource(path string) (*FFmpegSource, error) {
	// make sure ffmpeg is in the path before doing anything else
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	out, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", path, err)
	}

	src := &FFmpegSource{path: path}
	if err := src.applyProbe([]byte(out)); err != nil {
		return nil, fmt.Errorf("probing %s: %w", path, err)
	}
	return src, nil
}

// applyProbe parses ffprobe JSON output into the source. Split out so the
// parsing is testable without an ffmpeg binary.
func (s *FFmpegSource) applyProbe(probeJSON []byte) error {
	var pf probeFormat
	if err := json.Unmarshal(probeJSON, &pf); err != nil {
		return fmt.Errorf("parsing probe output: %w", err)
	}

	found := false
	for _, st := range pf.Streams {
		if st.CodecType == "video" && st.Width > 0 && st.Height > 0 {
			s.width = st.Width
			s.height = st.Height
			found = true
			break
		}
	}
	if !found {
		return ErrNoVideoStream
	}

	d, err := strconv.ParseFloat(pf.Format.Duration, 64)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", pf.Format.Duration, err)
	}
	if d <= 0 {
		return fmt.Errorf("non-positive duration %v", d)
	}
	s.duration = d
	return nil
}

// Duration returns the probed video length in seconds.
func (s *FFmpegSource) Duration() float64 { return s.duration }

// Bounds returns the native width and height of the video stream.
func (s *FFmpegSource) Bounds() (int, int) { return s.width, s.height }

// DecodeAt seeks to the given time and decodes exactly one frame to RGBA.
func (s *FFmpegSource) DecodeAt(ctx context.Context, seconds float64) (*Frame, error) {
	buf := &bytes.Buffer{}

	stream := ffmpeg.Input(s.path, ffmpeg.KwArgs{
		"ss": fmt.Sprintf("%.6f", seconds),
	}).Output("pipe:", ffmpeg.KwArgs{
		"frames:v": 1,
		"format":   "rawvideo",
		"pix_fmt":  "rgba",
	}).WithOutput(buf).Silent(true)
	stream.Context = ctx

	if err := stream.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("decoding frame at %.3fs: %w", seconds, err)
	}

	want := s.width * s.height * 4
	if buf.Len() < want {
		return nil, fmt.Errorf("decoding frame at %.3fs: short read, got %d bytes, want %d", seconds, buf.Len(), want)
	}

	return &Frame{
		Pixels:    buf.Bytes()[:want],
		Width:     s.width,
		Height:    s.height,
		Timestamp: seconds,
	}, nil
}

// Close releases resources. The ffmpeg source holds no persistent process.
func (s *FFmpegSource) Close() error { return nil }
