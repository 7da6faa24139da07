package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/framecloud/internal/pointcloud"
	"github.com/banshee-data/framecloud/internal/video"
)

// ranScheduler returns a scheduler that has completed one synthetic run.
func ranScheduler(t *testing.T) *pointcloud.Scheduler {
	t.Helper()
	sched := pointcloud.NewScheduler(pointcloud.SchedulerConfig{
		Thresholds: pointcloud.DefaultThresholds(),
		Seed:       1,
	})
	if err := sched.Start(context.Background(), video.NewSyntheticSource(64, 48, 0.5)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sched.Wait()
	return sched
}

func chartMux(t *testing.T, sched *pointcloud.Scheduler) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	New(sched, nil).AttachRoutes(mux)
	return mux
}

func TestAcceptanceChart(t *testing.T) {
	mux := chartMux(t, ranScheduler(t))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/charts/acceptance", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Acceptance chart returned %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if !strings.Contains(w.Body.String(), "echarts") {
		t.Error("Chart body does not reference echarts")
	}
}

func TestAcceptanceChart_NoFrames(t *testing.T) {
	idle := pointcloud.NewScheduler(pointcloud.SchedulerConfig{Thresholds: pointcloud.DefaultThresholds()})
	mux := chartMux(t, idle)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/charts/acceptance", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Chart with no frames returned %d, want 404", w.Code)
	}
}

func TestCloudChart(t *testing.T) {
	mux := chartMux(t, ranScheduler(t))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/charts/cloud?max_points=500", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Cloud chart returned %d: %s", w.Code, w.Body.String())
	}
}

func TestRunsChart_NoStore(t *testing.T) {
	mux := chartMux(t, ranScheduler(t))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/charts/runs", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Runs chart without a store returned %d, want 503", w.Code)
	}
}
