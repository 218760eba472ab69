package machine

import (
	"context"

	"github.com/mats19/pcb-bridge/coord"
)

// A Persister stores a finished height map and returns G-code that renders it.
type Persister interface {
	Save(ctx context.Context, cfg GridConfig, points []coord.Point) (vizGCode string, err error)
}

// Result is a completed grid probe.
type Result struct {
	Config GridConfig `json:"config"`
	HeightMap
	VizGCode string `json:"viz_gcode,omitempty"`
}

// Export hands the height map to p.
//
// The returned Result is always usable; if saving failed the error is a
// *PersistenceError and VizGCode is empty.
func Export(ctx context.Context, p Persister, cfg GridConfig, hm *HeightMap) (*Result, error) {
	res := &Result{Config: cfg, HeightMap: *hm}

	viz, err := p.Save(ctx, cfg, hm.Points)
	if err != nil {
		return res, &PersistenceError{Err: err}
	}
	res.VizGCode = viz
	return res, nil
}
