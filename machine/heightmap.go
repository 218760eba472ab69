package machine

import (
	"fmt"

	"github.com/mats19/pcb-bridge/coord"
	"github.com/mats19/pcb-bridge/meshlevel"
	"gonum.org/v1/gonum/floats"
)

// Stats summarize the heights of a height map.
type Stats struct {
	MinZ   float64 `json:"min_z"`
	MaxZ   float64 `json:"max_z"`
	DeltaZ float64 `json:"delta_z"`
}

func (s Stats) String() string {
	return fmt.Sprintf("Min Z: %.4f mm | Max Z: %.4f mm | Delta: %.4f mm", s.MinZ, s.MaxZ, s.DeltaZ)
}

// HeightMap holds surface heights relative to the first probed point.
type HeightMap struct {
	Points []coord.Point `json:"points"`
	Stats  Stats         `json:"stats"`
}

// Normalize converts samples from a successful session into a height map.
//
// The first sample in scan order is the reference: its height becomes 0 and
// every other point is expressed relative to it.
func Normalize(samples []Sample) (*HeightMap, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	raw := make([]coord.Point, len(samples))
	for i, s := range samples {
		raw[i] = coord.Point{X: s.X, Y: s.Y, Z: s.ZRaw}
	}
	points := meshlevel.OffsetFrom(samples[0].ZRaw, raw)
	stats, _ := ComputeStats(points)

	return &HeightMap{Points: points, Stats: stats}, nil
}

// ComputeStats returns the Z range of points. ok is false if there are no
// points, in which case the stats are meaningless.
func ComputeStats(points []coord.Point) (stats Stats, ok bool) {
	if len(points) == 0 {
		return Stats{}, false
	}
	z := make([]float64, len(points))
	for i, p := range points {
		z[i] = p.Z
	}
	stats.MinZ = floats.Min(z)
	stats.MaxZ = floats.Max(z)
	stats.DeltaZ = stats.MaxZ - stats.MinZ
	return stats, true
}
