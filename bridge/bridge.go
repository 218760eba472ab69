// Package bridge speaks the height map backend protocol: fetch the latest
// session, reset it, simulate a surface and save a probed height map.
package bridge

import (
	"context"

	"github.com/mats19/pcb-bridge/coord"
	"github.com/mats19/pcb-bridge/machine"
)

const (
	StatusSuccess = "success"
	StatusNone    = "none"
)

// Snapshot is the last saved session. Config and Points are unset when
// Status is StatusNone.
type Snapshot struct {
	Status   string              `json:"status"`
	Config   *machine.GridConfig `json:"config,omitempty"`
	Points   []coord.Point       `json:"points,omitempty"`
	VizGCode string              `json:"viz_gcode,omitempty"`
}

// Simulation is a synthetic height map.
type Simulation struct {
	Points   []coord.Point `json:"points"`
	VizGCode string        `json:"viz_gcode"`
}

type saveRequest struct {
	Config machine.GridConfig `json:"config"`
	Points []coord.Point      `json:"points"`
}

type saveResponse struct {
	VizGCode string `json:"viz_gcode"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// A Backend stores height maps and renders them as G-code.
type Backend interface {
	machine.Persister

	Latest(ctx context.Context) (*Snapshot, error)
	Reset(ctx context.Context) error
	Simulate(ctx context.Context, cfg machine.GridConfig) (*Simulation, error)
}
