package metrics

import (
	"testing"
	"time"

	"github.com/mats19/pcb-bridge/machine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSession(t *testing.T) {
	m := New(prometheus.NewRegistry())
	clock := time.Unix(0, 0)
	m.now = func() time.Time { return clock }

	s := m.Start()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))

	for i := 0; i < 3; i++ {
		clock = clock.Add(2 * time.Second)
		s.Progress(machine.Progress{Collected: i + 1, Total: 3, Sample: &machine.Sample{}, Status: machine.StatusRunning})
	}
	s.Progress(machine.Progress{Collected: 3, Total: 3, Status: machine.StatusSucceeded})
	s.End(&machine.Result{HeightMap: machine.HeightMap{Stats: machine.Stats{DeltaZ: 0.042}}})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PointsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("succeeded")))
	assert.Equal(t, 0.042, testutil.ToFloat64(m.LastDeltaZ))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PointDuration))
}

func TestSession_Rejected(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Start().End(nil)
	s := m.Start()
	s.Progress(machine.Progress{Status: machine.StatusAborted})
	s.End(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("aborted")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LastDeltaZ))
}
