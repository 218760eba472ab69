package grbl

import (
	"testing"

	"github.com/mats19/pcb-bridge/coord"
	"github.com/mats19/pcb-bridge/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbe(t *testing.T) {
	check := func(line string, exp machine.Event) {
		t.Helper()
		e, err := ParseProbe(line)
		require.NoError(t, err, line)
		assert.Equal(t, exp, e, line)
	}

	check("[PRB:-88.000,-95.000,-1.234:1]", machine.ProbeCompleted{Z: -1.234})
	check("ok [PRB:10.000,20.000,0.125:1] \r", machine.ProbeCompleted{Z: 0.125})
	check("[PRB:0.000,0.000,-5.000:0]", machine.ProbeFailed{Reason: "no contact"})

	for _, line := range []string{
		"[GC:G0 G54 G17 G21 G90]",
		"[PRB:1.000,2.000:1]",
		"[PRB:1.000,2.000,abc:1]",
		"[PRB:1.000,2.000,3.000:1",
		"[PRB:1.000,2.000,3.000]",
	} {
		_, err := ParseProbe(line)
		assert.Error(t, err, line)
	}
}

func TestParseStatus(t *testing.T) {
	stat, err := parseStatus(Status{WCO: coord.Point{X: 1}}, "<Idle|MPos:-10.000,-20.000,-3.000|FS:0,0>")
	require.NoError(t, err)
	assert.Equal(t, "Idle", stat.State)
	assert.Equal(t, coord.Point{X: -10, Y: -20, Z: -3}, stat.MPos)
	assert.Equal(t, coord.Point{X: -11, Y: -20, Z: -3}, stat.WPos())

	_, err = parseStatus(Status{}, "<Run|MPos:1,2>")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	e, ok := classify("ALARM:5")
	assert.True(t, ok)
	assert.Equal(t, machine.ProbeFailed{Reason: "ALARM:5"}, e)

	e, ok = classify("Grbl 1.1h ['$' for help]")
	assert.True(t, ok)
	assert.Equal(t, machine.ChannelLost{Err: ErrGrblReset}, e)

	e, ok = classify("[PRB:0,0,bad:1]")
	assert.True(t, ok)
	assert.IsType(t, machine.ProbeFailed{}, e)

	_, ok = classify("ok")
	assert.False(t, ok)
}
