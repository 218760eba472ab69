package store

import (
	"math"

	"github.com/mats19/pcb-bridge/coord"
	"github.com/mats19/pcb-bridge/machine"
	"github.com/mats19/pcb-bridge/meshlevel"
)

// SimulateSurface returns a normalized height map of a board that is tilted
// and has a bump in the middle, as a probe of cfg would see it.
func SimulateSurface(cfg machine.GridConfig) ([]coord.Point, error) {
	grid, err := machine.Plan(cfg)
	if err != nil {
		return nil, err
	}

	cx, cy := cfg.Width/2, cfg.Height/2
	sigma := math.Min(cfg.Width, cfg.Height) / 4

	raw := grid.Points()
	for i, p := range raw {
		dx, dy := p.X-cx, p.Y-cy
		bump := 0.05 * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
		raw[i].Z = -1 + 0.002*p.X - 0.001*p.Y + bump
	}

	return meshlevel.OffsetFrom(raw[0].Z, raw), nil
}
