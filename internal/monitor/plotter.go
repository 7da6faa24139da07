package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/framecloud/internal/pointcloud"
)

// GenerateRunPlots writes PNG plots of a run's sampling behavior into
// outputDir: accepted points per frame and the cumulative point total.
// Returns the number of plots written.
func GenerateRunPlots(snap pointcloud.StatsSnapshot, outputDir string) (int, error) {
	if len(snap.PerFrame) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	perFrame := make(plotter.XYs, len(snap.PerFrame))
	cumulative := make(plotter.XYs, len(snap.PerFrame))
	total := 0.0
	for i, v := range snap.PerFrame {
		total += v
		perFrame[i] = plotter.XY{X: float64(i), Y: v}
		cumulative[i] = plotter.XY{X: float64(i), Y: total}
	}

	pAcc := plot.New()
	pAcc.Title.Text = "Accepted Points per Frame"
	pAcc.X.Label.Text = "Frame"
	pAcc.Y.Label.Text = "Accepted"

	accLine, err := plotter.NewLine(perFrame)
	if err != nil {
		return 0, err
	}
	accLine.Width = vg.Points(1)
	pAcc.Add(accLine)
	pAcc.Legend.Add(fmt.Sprintf("mean=%.1f", snap.MeanPerFrame), accLine)
	pAcc.Legend.Top = true

	accFile := filepath.Join(outputDir, "accepted_per_frame.png")
	if err := pAcc.Save(14*vg.Inch, 6*vg.Inch, accFile); err != nil {
		return 0, fmt.Errorf("save acceptance plot: %w", err)
	}

	pCum := plot.New()
	pCum.Title.Text = "Cumulative Point Count"
	pCum.X.Label.Text = "Frame"
	pCum.Y.Label.Text = "Points"

	cumLine, err := plotter.NewLine(cumulative)
	if err != nil {
		return 1, err
	}
	cumLine.Width = vg.Points(1)
	pCum.Add(cumLine)

	cumFile := filepath.Join(outputDir, "cumulative_points.png")
	if err := pCum.Save(14*vg.Inch, 6*vg.Inch, cumFile); err != nil {
		return 1, fmt.Errorf("save cumulative plot: %w", err)
	}

	return 2, nil
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir builds a timestamped plot directory for a source
// video: plots/<video_basename>/<timestamp>.
func MakePlotOutputDir(baseDir, videoFile string) string {
	ts := FormatTimestamp(time.Now())
	if videoFile != "" {
		base := filepath.Base(videoFile)
		ext := filepath.Ext(base)
		name := base[:len(base)-len(ext)]
		return filepath.Join(baseDir, name, ts)
	}
	return filepath.Join(baseDir, "run_"+ts)
}
