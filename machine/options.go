package machine

import (
	"errors"
	"time"

	"github.com/mats19/pcb-bridge/coord"
	"github.com/mats19/pcb-bridge/gcode"
)

// ProbeOptions configure the motion of a grid probe.
type ProbeOptions struct {
	// SafeZ is the clearance height for travel moves and the final retract.
	SafeZ float64 `json:"safe_z" yaml:"safe_z"`

	// MinZ is the lowest height a probe move may reach.
	MinZ float64 `json:"min_z" yaml:"min_z"`

	FeedRate float64 `json:"feed_rate" yaml:"feed_rate"`

	// Timeout bounds the wait for each probe report. Zero waits forever.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultProbeOptions returns 2mm clearance, -5mm depth at 100mm/min.
func DefaultProbeOptions() ProbeOptions {
	return ProbeOptions{
		SafeZ:    2,
		MinZ:     -5,
		FeedRate: 100,
	}
}

func (opt ProbeOptions) Validate() error {
	if opt.FeedRate <= 0 {
		return errors.New("feed rate must be positive")
	}
	if opt.MinZ >= opt.SafeZ {
		return errors.New("probe depth must be below the safe height")
	}
	if opt.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

// ProbeCommand returns the blocks to move to p at safe height and probe down.
func (opt ProbeOptions) ProbeCommand(p coord.Point) Command {
	return Command{
		{
			{W: 'G', Arg: 90},
		},
		{
			{W: 'G', Arg: 0},
			{W: 'Z', Arg: opt.SafeZ},
		},
		{
			{W: 'G', Arg: 0},
			{W: 'X', Arg: p.X},
			{W: 'Y', Arg: p.Y},
		},
		{
			{W: 'G', Arg: 38.2},
			{W: 'Z', Arg: opt.MinZ},
			{W: 'F', Arg: opt.FeedRate},
		},
	}
}

// RetractCommand returns the block that lifts the tool to the safe height.
func (opt ProbeOptions) RetractCommand() Command {
	return Command{
		gcode.Block{
			{W: 'G', Arg: 90},
			{W: 'G', Arg: 0},
			{W: 'Z', Arg: opt.SafeZ},
		},
	}
}
