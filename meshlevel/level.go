package meshlevel

import (
	"fmt"
	"io"

	"github.com/mats19/pcb-bridge/coord"
	"github.com/mats19/pcb-bridge/gcode"
)

// ZOffsetter reports the surface height at x, y. ok is false outside the
// known surface.
type ZOffsetter interface {
	OffsetZ(x, y float64) (ok bool, z float64)
}

type flatSurface struct{}

func (flatSurface) OffsetZ(x, y float64) (bool, float64) { return false, 0 }

// OffsetFrom returns a copy of points with z subtracted from every height.
func OffsetFrom(z float64, points []coord.Point) []coord.Point {
	p := make([]coord.Point, len(points))
	for i, pt := range points {
		p[i] = coord.Point{X: pt.X, Y: pt.Y, Z: pt.Z - z}
	}
	return p
}

// Level rewrites src so every move follows the surface described by points.
// Moves outside the probed area are copied unchanged.
func Level(src string, points []coord.Point, granularity float64) (string, error) {
	blocks, err := gcode.Parse(src)
	if err != nil {
		return "", err
	}
	mesh, err := NewMesh(points)
	if err != nil {
		return "", err
	}

	l := New(Config{
		ZOffsetter:  mesh,
		Granularity: granularity,
		Reader:      &gcode.BlocksReader{Blocks: blocks},
	})
	data, err := io.ReadAll(gcode.NewBuffer(l))
	if err != nil {
		return "", fmt.Errorf("level: %w", err)
	}
	return string(data), nil
}
