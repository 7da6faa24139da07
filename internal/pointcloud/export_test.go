package pointcloud

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func exportTestBuffer() *Buffer {
	b := NewBuffer()
	b.Append(Point{X: -2, Y: 2, Z: -0.1, R: 1, G: 0, B: 0})
	b.Append(Point{X: 0.5, Y: -1.5, Z: 0.05, R: 0.25, G: 0.5, B: 0.75})
	return b
}

func TestWriteASC(t *testing.T) {
	var sb strings.Builder
	positions, colors := exportTestBuffer().Snapshot()
	if err := WriteASC(&sb, positions, colors); err != nil {
		t.Fatalf("WriteASC failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Got %d lines, want 2", len(lines))
	}
	if lines[0] != "-2.000000 2.000000 -0.100000 1.0000 0.0000 0.0000" {
		t.Errorf("First line wrong: %q", lines[0])
	}
	fields := strings.Fields(lines[1])
	if len(fields) != 6 {
		t.Errorf("Each line must have 6 fields, got %d", len(fields))
	}
}

func TestWritePLY(t *testing.T) {
	var sb strings.Builder
	positions, colors := exportTestBuffer().Snapshot()
	if err := WritePLY(&sb, positions, colors); err != nil {
		t.Fatalf("WritePLY failed: %v", err)
	}

	out := sb.String()
	if !strings.HasPrefix(out, "ply\nformat ascii 1.0\nelement vertex 2\n") {
		t.Errorf("Bad PLY header:\n%s", out)
	}
	if !strings.Contains(out, "end_header\n") {
		t.Error("Missing end_header")
	}
	// First vertex: red as uchar.
	if !strings.Contains(out, "-2.000000 2.000000 -0.100000 255 0 0") {
		t.Errorf("Missing first vertex line:\n%s", out)
	}
}

func TestWriteASC_LengthMismatch(t *testing.T) {
	if err := WriteASC(&strings.Builder{}, []float32{1, 2, 3}, []float32{1}); err == nil {
		t.Error("Expected error for mismatched array lengths")
	}
	if err := WriteASC(&strings.Builder{}, []float32{1, 2}, []float32{1, 2}); err == nil {
		t.Error("Expected error for non-multiple-of-3 length")
	}
}

func TestExportFile(t *testing.T) {
	dir := t.TempDir()
	b := exportTestBuffer()

	ascPath := filepath.Join(dir, "cloud.asc")
	if err := ExportFile(b, ascPath, "asc"); err != nil {
		t.Fatalf("ExportFile asc failed: %v", err)
	}
	data, err := os.ReadFile(ascPath)
	if err != nil {
		t.Fatalf("Reading export: %v", err)
	}
	if len(strings.Split(strings.TrimSpace(string(data)), "\n")) != 2 {
		t.Errorf("ASC export has wrong line count:\n%s", data)
	}

	plyPath := filepath.Join(dir, "cloud.ply")
	if err := ExportFile(b, plyPath, "ply"); err != nil {
		t.Fatalf("ExportFile ply failed: %v", err)
	}

	if err := ExportFile(b, filepath.Join(dir, "cloud.xyz"), "xyz"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestExportFile_RejectsEscapingPath(t *testing.T) {
	if err := ExportFile(exportTestBuffer(), "/etc/pointcloud.asc", "asc"); err == nil {
		t.Error("Expected error for a path outside temp and working directories")
	}
}

func TestColorByte(t *testing.T) {
	cases := []struct {
		in   float32
		want int
	}{
		{-0.5, 0}, {0, 0}, {0.5, 128}, {1, 255}, {1.5, 255},
	}
	for _, tc := range cases {
		if got := colorByte(tc.in); got != tc.want {
			t.Errorf("colorByte(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
