// Package monitor provides debugging-only visual endpoints and offline
// plot generation for sampling runs. None of these routes are meant for
// the viewer UI; they exist so run behavior can be inspected without
// loading the three.js frontend.
package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/framecloud/internal/db"
	"github.com/banshee-data/framecloud/internal/pointcloud"
)

// viridis is the color ramp used for value-mapped scatter charts.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// Monitor serves debug charts for the active scheduler and the run history.
type Monitor struct {
	sched *pointcloud.Scheduler
	runs  *db.RunStore
}

// New creates a Monitor over the given scheduler and run store. The run
// store may be nil; history charts then return 503.
func New(sched *pointcloud.Scheduler, runs *db.RunStore) *Monitor {
	return &Monitor{sched: sched, runs: runs}
}

// AttachRoutes registers the debug chart endpoints on mux.
func (m *Monitor) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/charts/acceptance", m.handleAcceptanceChart)
	mux.HandleFunc("/debug/charts/cloud", m.handleCloudChart)
	mux.HandleFunc("/debug/charts/runs", m.handleRunsChart)
}

// handleAcceptanceChart renders a line chart of accepted points per frame
// for the current (or most recent) run.
func (m *Monitor) handleAcceptanceChart(w http.ResponseWriter, r *http.Request) {
	snap := m.sched.Stats().Snapshot()
	if len(snap.PerFrame) == 0 {
		m.writeJSONError(w, http.StatusNotFound, "no frames processed yet")
		return
	}

	x := make([]string, len(snap.PerFrame))
	y := make([]opts.LineData, len(snap.PerFrame))
	for i, v := range snap.PerFrame {
		x[i] = strconv.Itoa(i)
		y[i] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Acceptance per Frame", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Accepted Points per Frame",
			Subtitle: fmt.Sprintf("frames=%d mean=%.1f stddev=%.1f rate=%.1f%%", snap.FramesDone, snap.MeanPerFrame, snap.StdDevPerFrame, snap.AcceptanceRate*100),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Accepted"}),
	)
	line.SetXAxis(x).AddSeries("accepted", y)

	m.renderChart(w, line)
}

// handleCloudChart renders the current point buffer as an XY scatter
// colored by depth, a cheap sanity check on the mapping without WebGL.
// Query params:
//   - max_points (optional; default 8000) to reduce payload size
func (m *Monitor) handleCloudChart(w http.ResponseWriter, r *http.Request) {
	positions, _ := m.sched.Buffer().Snapshot()
	if len(positions) == 0 {
		m.writeJSONError(w, http.StatusNotFound, "point buffer is empty")
		return
	}

	maxPoints := 8000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	count := len(positions) / 3
	stride := 1
	if count > maxPoints {
		stride = int(math.Ceil(float64(count) / float64(maxPoints)))
	}

	data := make([]opts.ScatterData, 0, count/stride+1)
	minZ, maxZ := math.Inf(1), math.Inf(-1)
	for i := 0; i < count; i += stride {
		x := float64(positions[i*3])
		y := float64(positions[i*3+1])
		z := float64(positions[i*3+2])
		if z < minZ {
			minZ = z
		}
		if z > maxZ {
			maxZ = z
		}
		data = append(data, opts.ScatterData{Value: []interface{}{x, y, z}})
	}
	if maxZ <= minZ {
		maxZ = minZ + 1e-6
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Point Cloud (XY)", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Point Cloud Projection", Subtitle: fmt.Sprintf("points=%d stride=%d", len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -2.2, Max: 2.2, Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -2.2, Max: 2.2, Name: "Y", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minZ),
			Max:        float32(maxZ),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("points", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	m.renderChart(w, scatter)
}

// handleRunsChart renders a bar chart of point counts for recent runs.
func (m *Monitor) handleRunsChart(w http.ResponseWriter, r *http.Request) {
	if m.runs == nil {
		m.writeJSONError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}

	limit := 25
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	records, err := m.runs.ListRuns(limit)
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	if len(records) == 0 {
		m.writeJSONError(w, http.StatusNotFound, "no runs recorded")
		return
	}

	x := make([]string, len(records))
	y := make([]opts.BarData, len(records))
	for i, rec := range records {
		label := rec.RunID
		if len(label) > 8 {
			label = label[:8]
		}
		x[i] = label
		y[i] = opts.BarData{Value: rec.PointCount}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Run History", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Points per Run", Subtitle: fmt.Sprintf("showing %d most recent", len(records))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("points", y,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	m.renderChart(w, bar)
}

// renderable is the common surface of go-echarts chart types.
type renderable interface {
	Render(w io.Writer) error
}

func (m *Monitor) renderChart(w http.ResponseWriter, c renderable) {
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (m *Monitor) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
