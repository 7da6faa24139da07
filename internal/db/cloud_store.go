package db

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/gob"
	"fmt"
	"io"
)

// cloudSnapshot is the gob-encoded payload stored in the point_clouds
// table: the flat parallel arrays exactly as the viewer consumes them.
type cloudSnapshot struct {
	Positions []float32
	Colors    []float32
}

// CloudStore persists completed point clouds as gzip-compressed gob blobs.
// Point clouds compress well (repeated float patterns) and a blob per run
// keeps the schema simple.
type CloudStore struct {
	db *sql.DB
}

// NewCloudStore creates a new CloudStore.
func NewCloudStore(db *DB) *CloudStore {
	return &CloudStore{db: db.DB}
}

// SaveCloud stores the point cloud for a run, replacing any previous
// snapshot for the same run_id.
func (s *CloudStore) SaveCloud(runID string, positions, colors []float32) error {
	if len(positions) != len(colors) {
		return fmt.Errorf("position/color length mismatch: %d vs %d", len(positions), len(colors))
	}

	blob, err := encodeCloud(cloudSnapshot{Positions: positions, Colors: colors})
	if err != nil {
		return fmt.Errorf("encoding cloud for run %s: %w", runID, err)
	}

	query := `
		INSERT INTO point_clouds (run_id, point_count, snapshot) VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET point_count = excluded.point_count, snapshot = excluded.snapshot
	`
	err = retryOnBusy(func() error {
		_, err := s.db.Exec(query, runID, len(positions)/3, blob)
		return err
	})
	if err != nil {
		return fmt.Errorf("saving cloud for run %s: %w", runID, err)
	}
	return nil
}

// LoadCloud fetches the point cloud stored for a run.
func (s *CloudStore) LoadCloud(runID string) (positions, colors []float32, err error) {
	var blob []byte
	row := s.db.QueryRow(`SELECT snapshot FROM point_clouds WHERE run_id = ?`, runID)
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, fmt.Errorf("no point cloud stored for run %s", runID)
		}
		return nil, nil, fmt.Errorf("loading cloud for run %s: %w", runID, err)
	}

	snap, err := decodeCloud(blob)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding cloud for run %s: %w", runID, err)
	}
	return snap.Positions, snap.Colors, nil
}

func encodeCloud(snap cloudSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(zw).Encode(snap); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeCloud(blob []byte) (cloudSnapshot, error) {
	var snap cloudSnapshot
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return snap, err
	}
	defer zr.Close()
	if err := gob.NewDecoder(zr).Decode(&snap); err != nil && err != io.EOF {
		return snap, err
	}
	return snap, nil
}
