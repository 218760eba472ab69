package machine

import (
	"math"
	"strconv"
	"strings"

	"github.com/mats19/pcb-bridge/coord"
)

// GridConfig describes the probed area, starting at the work origin.
type GridConfig struct {
	Width   float64 `json:"width" yaml:"width"`
	Height  float64 `json:"height" yaml:"height"`
	PointsX int     `json:"points_x" yaml:"points_x"`
	PointsY int     `json:"points_y" yaml:"points_y"`
}

// DefaultGridConfig returns a 50x30mm area with 5x3 points.
func DefaultGridConfig() GridConfig {
	return GridConfig{Width: 50, Height: 30, PointsX: 5, PointsY: 3}
}

// ParseGridConfig parses form values into a GridConfig.
func ParseGridConfig(width, height, pointsX, pointsY string) (cfg GridConfig, err error) {
	parseFloat := func(name, val string) float64 {
		if err != nil {
			return 0
		}
		var f float64
		f, err = strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			err = invalidConfig("%s: %q is not a number", name, val)
		}
		return f
	}
	parseInt := func(name, val string) int {
		if err != nil {
			return 0
		}
		var n int
		n, err = strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			err = invalidConfig("%s: %q is not a whole number", name, val)
		}
		return n
	}

	cfg.Width = parseFloat("width", width)
	cfg.Height = parseFloat("height", height)
	cfg.PointsX = parseInt("points_x", pointsX)
	cfg.PointsY = parseInt("points_y", pointsY)
	if err != nil {
		return GridConfig{}, err
	}
	return cfg, cfg.Validate()
}

func (cfg GridConfig) Validate() error {
	switch {
	case math.IsNaN(cfg.Width) || math.IsInf(cfg.Width, 0) || cfg.Width <= 0:
		return invalidConfig("width must be positive, got %v", cfg.Width)
	case math.IsNaN(cfg.Height) || math.IsInf(cfg.Height, 0) || cfg.Height <= 0:
		return invalidConfig("height must be positive, got %v", cfg.Height)
	case cfg.PointsX < 2:
		return invalidConfig("need at least 2 points along X, got %d", cfg.PointsX)
	case cfg.PointsY < 2:
		return invalidConfig("need at least 2 points along Y, got %d", cfg.PointsY)
	}
	return nil
}

// Grid is a planned scan path. Points are computed on demand in scan order:
// X advances within a row, then Y advances.
type Grid struct {
	cfg          GridConfig
	stepX, stepY float64
}

// Plan validates cfg and returns its scan path.
func Plan(cfg GridConfig) (Grid, error) {
	if err := cfg.Validate(); err != nil {
		return Grid{}, err
	}
	return Grid{
		cfg:   cfg,
		stepX: cfg.Width / float64(cfg.PointsX-1),
		stepY: cfg.Height / float64(cfg.PointsY-1),
	}, nil
}

func (g Grid) Config() GridConfig { return g.cfg }

func (g Grid) Len() int { return g.cfg.PointsX * g.cfg.PointsY }

// Step returns the spacing between neighbouring points.
func (g Grid) Step() (x, y float64) { return g.stepX, g.stepY }

// At returns the i-th point in scan order. It panics if i is out of range.
func (g Grid) At(i int) coord.Point {
	if i < 0 || i >= g.Len() {
		panic("grid index out of range: " + strconv.Itoa(i))
	}
	xi, yi := i%g.cfg.PointsX, i/g.cfg.PointsX

	p := coord.Point{X: float64(xi) * g.stepX, Y: float64(yi) * g.stepY}
	// pin the far edges so rounding never leaves the area
	if xi == g.cfg.PointsX-1 {
		p.X = g.cfg.Width
	}
	if yi == g.cfg.PointsY-1 {
		p.Y = g.cfg.Height
	}
	return p
}

// Points returns the whole scan path.
func (g Grid) Points() []coord.Point {
	points := make([]coord.Point, g.Len())
	for i := range points {
		points[i] = g.At(i)
	}
	return points
}
