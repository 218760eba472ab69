package meshlevel

import (
	"io"
	"testing"

	"github.com/mats19/pcb-bridge/coord"
	"github.com/mats19/pcb-bridge/gcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// probes indicate a rise of 30mm over 100mm, or .3mm Z for every 1mm X
var slope = []coord.Point{
	{X: 0, Y: 0, Z: 0},
	{X: 0, Y: 100, Z: 0},
	{X: 100, Y: 0, Z: 30},
	{X: 100, Y: 100, Z: 30},
}

func readAll(t *testing.T, r gcode.Reader) []string {
	t.Helper()
	var res []string
	for {
		b, err := r.Read()
		if err == io.EOF {
			return res
		}
		require.NoError(t, err)
		res = append(res, b.String())
	}
}

func TestMeshLeveler_Relative(t *testing.T) {
	mesh, err := NewMesh(slope)
	require.NoError(t, err)

	m := New(Config{
		ZOffsetter:  mesh,
		MPos:        coord.Point{X: 50, Y: 50, Z: -1},
		Granularity: 1,
		Reader:      &gcode.BlocksReader{Blocks: gcode.MustParse(`G91 G0 X3`)},
	})

	assert.Equal(t, []string{"G91G0X1Z0.3", "G91G0X1Z0.3", "G91G0X1Z0.3"}, readAll(t, m))
}

func TestMeshLeveler_Absolute(t *testing.T) {
	mesh, err := NewMesh(slope)
	require.NoError(t, err)

	m := New(Config{
		ZOffsetter:  mesh,
		MPos:        coord.Point{X: 0, Y: 50},
		Granularity: 5,
		Reader:      &gcode.BlocksReader{Blocks: gcode.MustParse("G90 G1 X10 Z-0.1 F100")},
	})

	assert.Equal(t, []string{"G90G1X5Z1.45F100", "G90G1X10Z2.9F100"}, readAll(t, m))
}

func TestMeshLeveler_OffMesh(t *testing.T) {
	mesh, err := NewMesh(slope)
	require.NoError(t, err)

	m := New(Config{
		ZOffsetter: mesh,
		MPos:       coord.Point{X: 0, Y: 50},
		Reader:     &gcode.BlocksReader{Blocks: gcode.MustParse("G0 X500\nG0 X0\nG0 Y500")},
	})

	assert.Equal(t, []string{"G0X500", "G0X0", "G0Y500"}, readAll(t, m))
}

func TestMeshLeveler_WCO(t *testing.T) {
	mesh, err := NewMesh(slope)
	require.NoError(t, err)

	// machine position is irrelevant once work coordinates are known
	m := New(Config{
		ZOffsetter: mesh,
		MPos:       coord.Point{X: -600, Y: -700, Z: -5},
		WCO:        coord.Point{X: -650, Y: -750, Z: -5},
		Reader:     &gcode.BlocksReader{Blocks: gcode.MustParse(`G1 X20 Y50 Z0`)},
	})
	assert.Equal(t, []string{"G1X20Y50Z6"}, readAll(t, m))
}

func TestLevel(t *testing.T) {
	out, err := Level("G21\nG90\n(engrave)\nG1 X10 Y50 Z-0.1 F100\n", slope, 0)
	require.NoError(t, err)
	assert.Equal(t, "G21\nG90\nG1X10Y50Z2.9F100\n", out)

	_, err = Level("G2 X1 Y1 I1 J0", slope, 0)
	assert.Error(t, err)

	_, err = Level("G0 X1", slope[:2], 0)
	assert.Error(t, err)
}

func TestNewMesh_Collinear(t *testing.T) {
	_, err := NewMesh([]coord.Point{{X: 0}, {X: 1}, {X: 2}})
	assert.Error(t, err)
}

func TestOffsetFrom(t *testing.T) {
	in := []coord.Point{{Z: 1}, {X: 1, Z: 1.5}}
	out := OffsetFrom(1, in)
	assert.Equal(t, []coord.Point{{Z: 0}, {X: 1, Z: 0.5}}, out)
	assert.Equal(t, 1.0, in[0].Z)
}
