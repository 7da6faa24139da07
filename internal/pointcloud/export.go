package pointcloud

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/banshee-data/framecloud/internal/security"
)

// WriteASC writes the point cloud as ASC text: one "x y z r g b" line per
// point, colors normalized to [0,1]. Both slices must have length 3*count.
func WriteASC(w io.Writer, positions, colors []float32) error {
	if len(positions) != len(colors) {
		return fmt.Errorf("position/color length mismatch: %d vs %d", len(positions), len(colors))
	}
	if len(positions)%3 != 0 {
		return fmt.Errorf("flat array length %d is not a multiple of 3", len(positions))
	}

	bw := bufio.NewWriter(w)
	for i := 0; i < len(positions); i += 3 {
		_, err := fmt.Fprintf(bw, "%.6f %.6f %.6f %.4f %.4f %.4f\n",
			positions[i], positions[i+1], positions[i+2],
			colors[i], colors[i+1], colors[i+2])
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WritePLY writes the point cloud in ASCII PLY format with uchar colors,
// which most point cloud tools open directly.
func WritePLY(w io.Writer, positions, colors []float32) error {
	if len(positions) != len(colors) {
		return fmt.Errorf("position/color length mismatch: %d vs %d", len(positions), len(colors))
	}
	if len(positions)%3 != 0 {
		return fmt.Errorf("flat array length %d is not a multiple of 3", len(positions))
	}

	count := len(positions) / 3
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "ply\nformat ascii 1.0\nelement vertex %d\n", count)
	fmt.Fprint(bw, "property float x\nproperty float y\nproperty float z\n")
	fmt.Fprint(bw, "property uchar red\nproperty uchar green\nproperty uchar blue\n")
	fmt.Fprint(bw, "end_header\n")

	for i := 0; i < len(positions); i += 3 {
		_, err := fmt.Fprintf(bw, "%.6f %.6f %.6f %d %d %d\n",
			positions[i], positions[i+1], positions[i+2],
			colorByte(colors[i]), colorByte(colors[i+1]), colorByte(colors[i+2]))
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

func colorByte(v float32) int {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 255
	}
	return int(v*255 + 0.5)
}

// ExportFile writes the buffer to a file in the given format ("asc" or
// "ply"). The path is restricted by the shared export path validation to
// avoid writing outside controlled locations.
func ExportFile(b *Buffer, path, format string) error {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("cannot resolve export path: %w", err)
	}
	if err := security.ValidateExportPath(abs); err != nil {
		return fmt.Errorf("invalid export path: %w", err)
	}

	f, err := os.Create(abs)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	positions, colors := b.Snapshot()
	switch format {
	case "asc":
		err = WriteASC(f, positions, colors)
	case "ply":
		err = WritePLY(f, positions, colors)
	default:
		err = fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return err
	}
	return f.Close()
}
