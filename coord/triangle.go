package coord

import (
	"math"
)

const (
	// Epsilon is the max error when checking containment.
	Epsilon   = 0.001
	epsilonSq = Epsilon * Epsilon
)

type Triangle struct{ A, B, C Point }

// normal returns the (unnormalized) plane normal of the triangle.
func (t Triangle) normal() Point {
	return t.C.Sub(t.A).Cross(t.B.Sub(t.A))
}

// Degenerate reports whether the XY projection of the triangle has no area.
func (t Triangle) Degenerate() bool {
	return math.Abs(t.normal().Z) < epsilonSq
}

// Z will give the Z-coordinate on the plane defined by the triangle
// where it intersects x,y.
func (t Triangle) Z(x, y float64) float64 {
	n := t.normal()
	d := n.Dot(t.C)
	return (d - n.X*x - n.Y*y) / n.Z
}

// ContainsXY returns true if the 2D projection of the triangle
// has the point x,y, allowing for Epsilon of error along the edges.
//
// adapted from https://totologic.blogspot.com/2014/01/accurate-point-in-triangle-test.html
func (t Triangle) ContainsXY(x, y float64) bool {
	if !t.boxContainsXY(x, y) {
		return false
	}

	a, b, c := t.A, t.B, t.C
	if side(a, b, x, y) >= 0 && side(b, c, x, y) >= 0 && side(c, a, x, y) >= 0 {
		return true
	}
	// winding order from the triangulation is not guaranteed
	if side(a, b, x, y) <= 0 && side(b, c, x, y) <= 0 && side(c, a, x, y) <= 0 {
		return true
	}

	return segmentDistanceSq(a, b, x, y) <= epsilonSq ||
		segmentDistanceSq(b, c, x, y) <= epsilonSq ||
		segmentDistanceSq(c, a, x, y) <= epsilonSq
}

func (t Triangle) boxContainsXY(x, y float64) bool {
	xMin := math.Min(t.A.X, math.Min(t.B.X, t.C.X)) - Epsilon
	xMax := math.Max(t.A.X, math.Max(t.B.X, t.C.X)) + Epsilon
	yMin := math.Min(t.A.Y, math.Min(t.B.Y, t.C.Y)) - Epsilon
	yMax := math.Max(t.A.Y, math.Max(t.B.Y, t.C.Y)) + Epsilon

	return xMin <= x && x <= xMax && yMin <= y && y <= yMax
}

func side(p1, p2 Point, x, y float64) float64 {
	return (p2.Y-p1.Y)*(x-p1.X) + (-p2.X+p1.X)*(y-p1.Y)
}

func segmentDistanceSq(p1, p2 Point, x, y float64) float64 {
	lenSq := (p2.X-p1.X)*(p2.X-p1.X) + (p2.Y-p1.Y)*(p2.Y-p1.Y)
	dot := ((x-p1.X)*(p2.X-p1.X) + (y-p1.Y)*(p2.Y-p1.Y)) / lenSq
	switch {
	case dot < 0:
		return (x-p1.X)*(x-p1.X) + (y-p1.Y)*(y-p1.Y)
	case dot <= 1:
		distSq := (p1.X-x)*(p1.X-x) + (p1.Y-y)*(p1.Y-y)
		return distSq - dot*dot*lenSq
	}
	return (x-p2.X)*(x-p2.X) + (y-p2.Y)*(y-p2.Y)
}
