package store

import (
	"fmt"
	"math"

	"github.com/mats19/pcb-bridge/coord"
	"github.com/mats19/pcb-bridge/gcode"
	"github.com/mats19/pcb-bridge/machine"
)

// Wireframe renders a height map as G-code: each row, then each column, is
// a rapid move to its first point followed by feed moves through the rest,
// with Z at the surface height.
func Wireframe(cfg machine.GridConfig, points []coord.Point) (string, error) {
	if len(points) != cfg.PointsX*cfg.PointsY {
		return "", fmt.Errorf("got %d points for a %dx%d grid", len(points), cfg.PointsX, cfg.PointsY)
	}

	blocks := []gcode.Block{
		{{W: 'G', Arg: 21}},
		{{W: 'G', Arg: 90}},
	}
	line := func(idx func(i int) int, n int) {
		for i := 0; i < n; i++ {
			p := points[idx(i)]
			g := 1.0
			if i == 0 {
				g = 0
			}
			blocks = append(blocks, gcode.Block{
				{W: 'G', Arg: g},
				{W: 'X', Arg: p.X},
				{W: 'Y', Arg: p.Y},
				{W: 'Z', Arg: round(p.Z)},
			})
		}
	}

	for y := 0; y < cfg.PointsY; y++ {
		line(func(i int) int { return y*cfg.PointsX + i }, cfg.PointsX)
	}
	for x := 0; x < cfg.PointsX; x++ {
		line(func(i int) int { return i*cfg.PointsX + x }, cfg.PointsY)
	}

	return gcode.Format(blocks), nil
}

func round(f float64) float64 { return math.Round(f*1e4) / 1e4 }
