package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/framecloud/internal/db"
	"github.com/banshee-data/framecloud/internal/pointcloud"
)

// startRunRequest is the POST /api/runs payload.
type startRunRequest struct {
	Source string `json:"source"`
}

// handleRuns lists runs (GET) or starts a new one (POST).
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := 50
		if l := r.URL.Query().Get("limit"); l != "" {
			parsed, err := strconv.Atoi(l)
			if err != nil || parsed < 1 {
				s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
				return
			}
			limit = parsed
		}
		records, err := s.runs.ListRuns(limit)
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, records)

	case http.MethodPost:
		var req startRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Source == "" {
			s.writeJSONError(w, http.StatusBadRequest, "Missing 'source'")
			return
		}
		rec, err := s.startRun(req.Source)
		if err != nil {
			s.writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		w.WriteHeader(http.StatusAccepted)
		s.writeJSON(w, rec)

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// startRun opens the source, cancels any active run, and begins processing.
// Starting a new run is the only way to abandon one in progress.
func (s *Server) startRun(source string) (*db.RunRecord, error) {
	src, err := s.sources(source)
	if err != nil {
		return nil, fmt.Errorf("opening video: %w", err)
	}

	// Abandon the previous run before touching shared state. The old
	// run's buffer is private to it, so a late decode cannot corrupt the
	// new run's points.
	s.sched.Cancel()
	s.sched.Wait()

	runID := uuid.NewString()
	s.mu.Lock()
	s.activeRunID = runID
	s.activeSrc = src
	s.mu.Unlock()

	if err := s.sched.Start(context.Background(), src); err != nil {
		s.mu.Lock()
		s.activeRunID = ""
		s.activeSrc = nil
		s.mu.Unlock()
		src.Close()
		return nil, err
	}

	progress := s.sched.Progress()
	rec := db.RunRecord{
		RunID:       runID,
		Source:      source,
		Status:      db.RunStatusRunning,
		Thresholds:  marshalOrEmpty(s.sched.Thresholds()),
		SampleRate:  s.sched.SampleRate(),
		TotalFrames: progress.TotalFrames,
		StartedAt:   time.Now(),
	}
	if s.runs != nil {
		if err := s.runs.InsertRun(rec); err != nil {
			return nil, fmt.Errorf("recording run: %w", err)
		}
	}
	return &rec, nil
}

func marshalOrEmpty(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// handleRunByID serves GET /api/runs/{id} and GET /api/runs/{id}/cloud.
func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	runID, sub, _ := strings.Cut(rest, "/")
	if runID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing run id")
		return
	}

	switch sub {
	case "":
		rec, err := s.runs.GetRun(runID)
		if err != nil {
			s.writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeJSON(w, rec)

	case "cloud":
		positions, colors, err := s.clouds.LoadCloud(runID)
		if err != nil {
			s.writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeJSON(w, pointsResponse{
			Count:     len(positions) / 3,
			Positions: positions,
			Colors:    colors,
		})

	default:
		http.NotFound(w, r)
	}
}

// handleCancel aborts the active run.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.sched.Cancel()
	s.writeJSON(w, map[string]string{"status": "cancelling"})
}

// pointsResponse carries the flat arrays the viewer uploads to the GPU.
type pointsResponse struct {
	Count     int       `json:"count"`
	Positions []float32 `json:"positions"`
	Colors    []float32 `json:"colors"`
}

// handlePoints returns a snapshot of the active (or most recent) run's
// point buffer. Polled by the viewer while the cloud grows.
func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	positions, colors := s.sched.Buffer().Snapshot()
	s.writeJSON(w, pointsResponse{
		Count:     len(positions) / 3,
		Positions: positions,
		Colors:    colors,
	})
}

// progressResponse combines scheduler progress with sampling statistics.
type progressResponse struct {
	pointcloud.Progress
	Stats pointcloud.StatsSnapshot `json:"stats"`
}

// handleProgress returns the user-visible processing state.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	stats := s.sched.Stats().Snapshot()
	stats.PerFrame = nil // heavyweight; served by the monitor endpoints
	s.writeJSON(w, progressResponse{
		Progress: s.sched.Progress(),
		Stats:    stats,
	})
}

// handleExport streams the current buffer as an ASC or PLY download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "asc"
	}
	if format != "asc" && format != "ply" {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Unknown format %q", format))
		return
	}

	positions, colors := s.sched.Buffer().Snapshot()
	if len(positions) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "No points to export")
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=pointcloud.%s", format))

	var err error
	if format == "ply" {
		err = pointcloud.WritePLY(w, positions, colors)
	} else {
		err = pointcloud.WriteASC(w, positions, colors)
	}
	if err != nil {
		// Headers are gone; all we can do is log.
		log.Printf("[API] export failed: %v", err)
	}
}
