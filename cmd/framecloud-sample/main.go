// framecloud-sample runs the sampling pipeline over one video and writes
// the resulting point cloud to a file, without the HTTP service. Useful
// for batch conversion and for comparing tuning configs offline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/banshee-data/framecloud/internal/config"
	"github.com/banshee-data/framecloud/internal/monitor"
	"github.com/banshee-data/framecloud/internal/pointcloud"
	"github.com/banshee-data/framecloud/internal/video"
)

func main() {
	videoPath := flag.String("video", "", "Video file to process, or synthetic:WIDTHxHEIGHT:SECONDS")
	output := flag.String("out", "pointcloud.asc", "Output file path")
	format := flag.String("format", "asc", "Output format: asc or ply")
	configPath := flag.String("config", "", "Optional JSON tuning config")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	plots := flag.Bool("plots", false, "Write acceptance plots next to the output")
	plotDir := flag.String("plot-dir", "plots", "Base directory for plots")
	flag.Parse()

	if *videoPath == "" {
		fmt.Fprintln(os.Stderr, "usage: framecloud-sample -video <path> [-out pointcloud.asc]")
		os.Exit(2)
	}
	if *format != "asc" && *format != "ply" {
		fmt.Fprintf(os.Stderr, "unknown format %q (want asc or ply)\n", *format)
		os.Exit(2)
	}

	var tuning *config.TuningConfig
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	src, err := openSource(*videoPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open video: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	sched := pointcloud.NewScheduler(pointcloud.SchedulerConfig{
		Thresholds: tuning.Thresholds(),
		SampleRate: tuning.GetSampleRate(),
		Seed:       *seed,
	})

	started := time.Now()
	if err := sched.Start(context.Background(), src); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start run: %v\n", err)
		os.Exit(1)
	}
	sched.Wait()

	progress := sched.Progress()
	if progress.State == pointcloud.StateFailed {
		fmt.Fprintf(os.Stderr, "run failed: %s\n", progress.Err)
		os.Exit(1)
	}

	if err := pointcloud.ExportFile(sched.Buffer(), *output, *format); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", *output, err)
		os.Exit(1)
	}

	snap := sched.Stats().Snapshot()
	fmt.Printf("%s: %d frames, %d points (%.1f/frame, %.1f%% acceptance) in %s -> %s\n",
		*videoPath, snap.FramesDone, progress.PointCount, snap.MeanPerFrame,
		snap.AcceptanceRate*100, time.Since(started).Round(time.Millisecond), *output)

	if *plots {
		dir := monitor.MakePlotOutputDir(*plotDir, *videoPath)
		n, err := monitor.GenerateRunPlots(snap, dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to write plots: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %d plots to %s\n", n, dir)
	}
}

func openSource(path string) (video.FrameSource, error) {
	if spec, ok := strings.CutPrefix(path, "synthetic:"); ok {
		var width, height int
		var duration float64
		if _, err := fmt.Sscanf(spec, "%dx%d:%f", &width, &height, &duration); err != nil {
			return nil, fmt.Errorf("invalid synthetic source %q: %w", spec, err)
		}
		return video.NewSyntheticSource(width, height, duration), nil
	}
	return video.NewFFmpegSource(path)
}
