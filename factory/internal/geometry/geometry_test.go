package geometry

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: 4, Y: 6, Z: 3}

	if got := Distance(a, b); got != 5 {
		t.Fatalf("Distance = %v, want 5", got)
	}
	if got, want := Distance(b, a), Distance(a, b); got != want {
		t.Fatalf("Distance not symmetric: %v vs %v", got, want)
	}
	if got := Distance(a, a); got != 0 {
		t.Fatalf("Distance to self = %v, want 0", got)
	}
}

func TestWithinFieldOfViewStraightAhead(t *testing.T) {
	camera := Vec3{}
	noRotation := Vec3{}

	cases := []struct {
		name   string
		target Vec3
		want   bool
	}{
		{"directly ahead in range", Vec3{Z: 10}, true},
		{"ahead but out of range", Vec3{Z: 100}, false},
		{"in range but outside cone", Vec3{X: 50}, false},
		{"edge of cone at 45 degrees", Vec3{X: 10, Z: 10}, true},
		{"just past the cone edge", Vec3{X: 10.01, Z: 10}, false},
		{"behind the camera", Vec3{Z: -10}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := WithinFieldOfView(camera, noRotation, 90, tc.target, 50)
			if got != tc.want {
				t.Fatalf("WithinFieldOfView(%+v) = %v, want %v", tc.target, got, tc.want)
			}
		})
	}
}

func TestWithinFieldOfViewZeroDistance(t *testing.T) {
	p := Vec3{X: 3, Y: 1, Z: -2}
	rotated := Vec3{X: 0.5, Y: math.Pi / 2}

	if !WithinFieldOfView(p, rotated, 60, p, 50) {
		t.Fatalf("target at camera position must be visible regardless of rotation")
	}
	if !WithinFieldOfView(p, rotated, 60, p, 0) {
		t.Fatalf("zero max distance still covers the camera position itself")
	}
}

func TestWithinFieldOfViewYawRotation(t *testing.T) {
	camera := Vec3{}
	// Yaw pi/2 turns the camera to face +X.
	facingX := Vec3{Y: math.Pi / 2}

	if !WithinFieldOfView(camera, facingX, 90, Vec3{X: 10}, 50) {
		t.Fatalf("target on +X should be visible to a camera facing +X")
	}
	if WithinFieldOfView(camera, facingX, 90, Vec3{Z: 10}, 50) {
		t.Fatalf("target on +Z should not be visible to a camera facing +X")
	}
}

func TestWithinFieldOfViewWrapAround(t *testing.T) {
	camera := Vec3{}
	// Facing -Z, where atan2 flips sign across the seam.
	facingBack := Vec3{Y: math.Pi}

	if !WithinFieldOfView(camera, facingBack, 90, Vec3{X: -1, Z: -10}, 50) {
		t.Fatalf("target just across the +-pi seam should be visible")
	}
	if !WithinFieldOfView(camera, facingBack, 90, Vec3{X: 1, Z: -10}, 50) {
		t.Fatalf("target just on the other side of the seam should be visible")
	}
}

func TestWithinFieldOfViewVerticalCone(t *testing.T) {
	camera := Vec3{}
	noRotation := Vec3{}

	if !WithinFieldOfView(camera, noRotation, 90, Vec3{Y: 5, Z: 10}, 50) {
		t.Fatalf("target 26 degrees up should be inside a 90 degree cone")
	}
	if WithinFieldOfView(camera, noRotation, 40, Vec3{Y: 5, Z: 10}, 50) {
		t.Fatalf("target 26 degrees up should be outside a 40 degree cone")
	}
}

func TestBoxContains(t *testing.T) {
	min := Vec3{X: 0, Y: 0, Z: 0}
	max := Vec3{X: 10, Y: 5, Z: 10}

	cases := []struct {
		name string
		p    Vec3
		want bool
	}{
		{"interior", Vec3{X: 5, Y: 2, Z: 5}, true},
		{"min corner", min, true},
		{"max corner", max, true},
		{"outside x", Vec3{X: 10.1, Y: 2, Z: 5}, false},
		{"outside y", Vec3{X: 5, Y: -0.1, Z: 5}, false},
		{"outside z", Vec3{X: 5, Y: 2, Z: 11}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BoxContains(min, max, tc.p); got != tc.want {
				t.Fatalf("BoxContains(%+v) = %v, want %v", tc.p, got, tc.want)
			}
		})
	}
}
