package pointcloud

// Point is an accepted pixel mapped into viewer space. Position components
// are in [-2,2] for X/Y and [-0.1,0.1] for Z; colors are normalized RGB.
// Immutable once created.
type Point struct {
	X, Y, Z float64
	R, G, B float64
}

// MapToPoint converts an accepted pixel sample into a 3D point.
//
// Image columns map onto X in [-2,2] and rows onto Y in [-2,2] with the sign
// flipped so that row 0 (top of the image) lands at +Y. The frame's temporal
// position maps onto a shallow Z offset in [-0.1,0.1] so that successive
// frames fan out in depth order instead of overlapping exactly. Colors pass
// through unchanged.
//
// Pure and deterministic: identical inputs always yield identical points.
func MapToPoint(s PixelSample, width, height int, currentTime, totalDuration float64) Point {
	return Point{
		X: (float64(s.X)/float64(width))*4 - 2,
		Y: -((float64(s.Y)/float64(height))*4 - 2),
		Z: (currentTime/totalDuration)*0.2 - 0.1,
		R: s.R,
		G: s.G,
		B: s.B,
	}
}
