// Package api exposes the framecloud HTTP surface: run control, point
// buffer snapshots, progress reporting, and point cloud exports.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/framecloud/internal/db"
	"github.com/banshee-data/framecloud/internal/pointcloud"
	"github.com/banshee-data/framecloud/internal/video"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// SourceFactory builds a FrameSource from a user-supplied source string.
// The default factory opens local video files with ffmpeg; tests and dev
// mode substitute synthetic sources.
type SourceFactory func(source string) (video.FrameSource, error)

// ServerConfig contains configuration options for the API server.
type ServerConfig struct {
	Thresholds pointcloud.Thresholds
	SampleRate int
	FrameDelay time.Duration
	Sources    SourceFactory
	Runs       *db.RunStore
	Clouds     *db.CloudStore
}

// Server glues the frame scheduler to HTTP and to the run history store.
type Server struct {
	sched  *pointcloud.Scheduler
	runs   *db.RunStore
	clouds *db.CloudStore

	sources SourceFactory

	mu          sync.Mutex
	activeRunID string
	activeSrc   video.FrameSource
}

// NewServer creates an API server and its scheduler.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		runs:    cfg.Runs,
		clouds:  cfg.Clouds,
		sources: cfg.Sources,
	}
	s.sched = pointcloud.NewScheduler(pointcloud.SchedulerConfig{
		Thresholds: cfg.Thresholds,
		SampleRate: cfg.SampleRate,
		FrameDelay: cfg.FrameDelay,
		OnProgress: s.onProgress,
	})
	return s
}

// Scheduler returns the server's frame scheduler.
func (s *Server) Scheduler() *pointcloud.Scheduler { return s.sched }

// ServeMux returns the mux with all API routes registered.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.handleRunByID)
	mux.HandleFunc("/api/cancel", s.handleCancel)
	mux.HandleFunc("/api/points", s.handlePoints)
	mux.HandleFunc("/api/progress", s.handleProgress)
	mux.HandleFunc("/api/export", s.handleExport)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// onProgress is the scheduler's per-frame callback. It mirrors progress
// into the run store and persists the finished cloud on completion.
func (s *Server) onProgress(p pointcloud.Progress) {
	s.mu.Lock()
	runID := s.activeRunID
	src := s.activeSrc
	s.mu.Unlock()
	if runID == "" || s.runs == nil {
		return
	}

	// A row update per frame would hammer sqlite at 30fps; every 30th
	// frame matches the once-per-sampled-second cadence.
	if p.Processing {
		if p.CurrentFrame%30 == 0 {
			if err := s.runs.UpdateRunProgress(runID, p.CurrentFrame, p.PointCount); err != nil {
				log.Printf("[API] failed to update run %s: %v", runID, err)
			}
		}
		return
	}

	// Terminal transition.
	status := db.RunStatusCompleted
	if p.State == pointcloud.StateFailed {
		status = db.RunStatusFailed
	}
	if err := s.runs.CompleteRun(runID, status, p.CurrentFrame, p.PointCount, p.Err, time.Now()); err != nil {
		log.Printf("[API] failed to complete run %s: %v", runID, err)
	}
	if status == db.RunStatusCompleted && s.clouds != nil {
		positions, colors := s.sched.Buffer().Snapshot()
		if err := s.clouds.SaveCloud(runID, positions, colors); err != nil {
			log.Printf("[API] failed to save cloud for run %s: %v", runID, err)
		}
	}
	if src != nil {
		if err := src.Close(); err != nil {
			log.Printf("[API] failed to close video source: %v", err)
		}
	}
	s.mu.Lock()
	if s.activeRunID == runID {
		s.activeSrc = nil
	}
	s.mu.Unlock()
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] failed to encode response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "framecloud", "timestamp": "%s"}`,
		time.Now().UTC().Format(time.RFC3339))
}
