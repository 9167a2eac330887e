// Package geometry holds the pure 3D math used by the spatial matcher.
// Coordinates follow the scene convention: X/Z span the floor plane and Y is
// height. Rotations are radians, field-of-view angles are degrees.
package geometry

import "math"

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func Distance(a, b Vec3) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	dz := b.Z - a.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// WithinFieldOfView reports whether target is visible from a camera at pos
// with the given rotation (pitch around X, yaw around Y), fov in degrees and
// maximum view distance. A target exactly at the camera position is always
// visible.
func WithinFieldOfView(pos Vec3, rotation Vec3, fovDegrees float64, target Vec3, maxDistance float64) bool {
	distance := Distance(pos, target)
	if distance > maxDistance {
		return false
	}
	if distance == 0 {
		return true
	}

	dx := target.X - pos.X
	dy := target.Y - pos.Y
	dz := target.Z - pos.Z

	horizontalAngle := math.Atan2(dx, dz)

	horizontalDist := math.Sqrt(dx*dx + dz*dz)
	verticalAngle := 0.0
	if horizontalDist > 0 {
		verticalAngle = math.Atan2(dy, horizontalDist)
	}

	angleDiffH := math.Abs(horizontalAngle - rotation.Y)
	angleDiffV := math.Abs(verticalAngle - rotation.X)

	// Fold into [0, pi] so that facing directions on either side of the
	// +-pi seam compare correctly.
	if angleDiffH > math.Pi {
		angleDiffH = 2*math.Pi - angleDiffH
	}
	if angleDiffV > math.Pi {
		angleDiffV = 2*math.Pi - angleDiffV
	}

	halfFOV := fovDegrees / 2 * math.Pi / 180

	return angleDiffH <= halfFOV && angleDiffV <= halfFOV
}

// BoxContains reports whether p lies inside the axis-aligned box spanned by
// min and max, boundaries included.
func BoxContains(min, max, p Vec3) bool {
	return p.X >= min.X && p.X <= max.X &&
		p.Y >= min.Y && p.Y <= max.Y &&
		p.Z >= min.Z && p.Z <= max.Z
}
