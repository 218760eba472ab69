// Package metrics instruments probe sessions.
package metrics

import (
	"time"

	"github.com/mats19/pcb-bridge/machine"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles probe session metrics.
type Metrics struct {
	SessionsTotal  *prometheus.CounterVec
	PointsTotal    prometheus.Counter
	PointDuration  prometheus.Histogram
	ActiveSessions prometheus.Gauge
	LastDeltaZ     prometheus.Gauge

	now func() time.Time
}

// New constructs metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pcbprobe_sessions_total",
				Help: "Total probe sessions by final status",
			},
			[]string{"status"},
		),
		PointsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pcbprobe_points_total",
			Help: "Total grid points probed successfully",
		}),
		PointDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pcbprobe_point_duration_seconds",
			Help:    "Time from dispatching a point to its probe report",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pcbprobe_active_sessions",
			Help: "Probe sessions currently running",
		}),
		LastDeltaZ: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pcbprobe_last_delta_z_mm",
			Help: "Height range of the last successful height map",
		}),
		now: time.Now,
	}
	reg.MustRegister(
		m.SessionsTotal,
		m.PointsTotal,
		m.PointDuration,
		m.ActiveSessions,
		m.LastDeltaZ,
	)
	return m
}

// Session records one probe session.
type Session struct {
	m      *Metrics
	last   time.Time
	status string
}

// Start records a session about to run. End must be called when it returns.
func (m *Metrics) Start() *Session {
	m.ActiveSessions.Inc()
	return &Session{m: m, last: m.now()}
}

// Progress is a machine progress callback.
func (s *Session) Progress(p machine.Progress) {
	if p.Sample != nil {
		now := s.m.now()
		s.m.PointsTotal.Inc()
		s.m.PointDuration.Observe(now.Sub(s.last).Seconds())
		s.last = now
	}
	if p.Status.Terminal() {
		s.status = p.Status.String()
	}
}

// End records the outcome. A session that never ran is counted as rejected.
func (s *Session) End(res *machine.Result) {
	s.m.ActiveSessions.Dec()
	status := s.status
	if status == "" {
		status = "rejected"
	}
	s.m.SessionsTotal.WithLabelValues(status).Inc()
	if res != nil {
		s.m.LastDeltaZ.Set(res.Stats.DeltaZ)
	}
}
