package meshlevel

import (
	"errors"

	"github.com/fogleman/delaunay"
	"github.com/mats19/pcb-bridge/coord"
)

// Mesh interpolates heights linearly over a Delaunay triangulation of
// probed points.
type Mesh struct {
	min, max  coord.Point
	triangles []coord.Triangle
}

var _ ZOffsetter = &Mesh{}

func NewMesh(points []coord.Point) (*Mesh, error) {
	if len(points) < 3 {
		return nil, errors.New("need at least 3 points to create a mesh")
	}

	points2d := make([]delaunay.Point, len(points))
	m := make(map[delaunay.Point]coord.Point, len(points))

	mesh := &Mesh{}
	mesh.min, mesh.max, _ = coord.Bounds(points)
	mesh.min.X -= coord.Epsilon
	mesh.min.Y -= coord.Epsilon
	mesh.max.X += coord.Epsilon
	mesh.max.Y += coord.Epsilon

	var d delaunay.Point
	for i, p := range points {
		d.X = p.X
		d.Y = p.Y
		m[d] = p
		points2d[i] = d
	}

	tri, err := delaunay.Triangulate(points2d)
	if err != nil {
		return nil, err
	}

	mesh.triangles = make([]coord.Triangle, 0, len(tri.Triangles)/3)

	for i := 0; i < len(tri.Triangles); i += 3 {
		t := coord.Triangle{
			A: m[tri.Points[tri.Triangles[i]]],
			B: m[tri.Points[tri.Triangles[i+1]]],
			C: m[tri.Points[tri.Triangles[i+2]]],
		}
		if t.Degenerate() {
			continue
		}
		mesh.triangles = append(mesh.triangles, t)
	}
	if len(mesh.triangles) == 0 {
		return nil, errors.New("points are collinear")
	}

	return mesh, nil
}

// OffsetZ returns the interpolated height at x,y. ok is false outside the
// probed area.
func (m Mesh) OffsetZ(x, y float64) (bool, float64) {
	if x < m.min.X || m.max.X < x || y < m.min.Y || m.max.Y < y {
		return false, 0
	}
	for _, t := range m.triangles {
		if !t.ContainsXY(x, y) {
			continue
		}
		return true, t.Z(x, y)
	}

	return false, 0
}
