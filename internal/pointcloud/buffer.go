package pointcloud

import "sync"

// Buffer is an append-only point store for a single processing run. Points
// are held as parallel flat float32 slices (3 values per point) in insertion
// order, which is the layout the viewer uploads directly to the GPU.
//
// The scheduler is the only writer; the viewer and API read snapshots
// concurrently, so access is guarded by a RWMutex.
type Buffer struct {
	mu        sync.RWMutex
	positions []float32
	colors    []float32
}

// NewBuffer returns an empty point buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Reset clears all points. Called once when a new run begins, never mid-run.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions = b.positions[:0]
	b.colors = b.colors[:0]
}

// Append adds a single point to the end of the buffer.
func (b *Buffer) Append(p Point) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appendLocked(p)
}

// AppendBatch adds all points of one frame, preserving their order.
func (b *Buffer) AppendBatch(pts []Point) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range pts {
		b.appendLocked(p)
	}
}

func (b *Buffer) appendLocked(p Point) {
	b.positions = append(b.positions, float32(p.X), float32(p.Y), float32(p.Z))
	b.colors = append(b.colors, float32(p.R), float32(p.G), float32(p.B))
}

// Len returns the number of points in the buffer.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions) / 3
}

// Snapshot returns copies of the flat position and color arrays, each of
// length 3*Len(). Copy-on-demand keeps readers isolated from later appends.
func (b *Buffer) Snapshot() (positions, colors []float32) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	positions = make([]float32, len(b.positions))
	copy(positions, b.positions)
	colors = make([]float32, len(b.colors))
	copy(colors, b.colors)
	return positions, colors
}
