package main

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mats19/pcb-bridge/coord"
	"github.com/mats19/pcb-bridge/machine"
	"github.com/mats19/pcb-bridge/machine/grbl"
	"github.com/mats19/pcb-bridge/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice answers every probe block with the next scripted event.
type fakeDevice struct {
	machine.Hub

	mx     sync.Mutex
	probes int
	reply  func(i int) machine.Event
}

func (d *fakeDevice) Send(cmd machine.Command) error {
	if !cmd.Probes() {
		return nil
	}
	d.mx.Lock()
	e := d.reply(d.probes)
	d.probes++
	d.mx.Unlock()
	d.Publish(e)
	return nil
}

func (d *fakeDevice) LastStatus() grbl.Status {
	return grbl.Status{State: "Idle", MPos: coord.Point{X: 1, Y: 2, Z: 3}}
}

func newTestAPI(t *testing.T, dev *fakeDevice) *httptest.Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "heightmaps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := apiConfig{
		Backend:      st,
		ServeBackend: true,
		Profile:      defaultProfile(),
		Registry:     prometheus.NewRegistry(),
	}
	if dev != nil {
		cfg.Device = dev
		cfg.Machine = machine.NewMachine(dev, st)
	}
	srv := httptest.NewServer(newAPI(cfg))
	t.Cleanup(srv.Close)
	return srv
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestAPI_ProbeLatestLevel(t *testing.T) {
	dev := &fakeDevice{reply: func(i int) machine.Event {
		return machine.ProbeCompleted{Z: 1 + float64(i)*0.01}
	}}
	srv := newTestAPI(t, dev)

	resp, err := http.Post(srv.URL+"/api/level", "text/plain", strings.NewReader("G1X5Y5F100\n"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/probe", "application/json",
		strings.NewReader(`{"width":10,"height":10,"points_x":2,"points_y":2}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var probed struct {
		SessionID string        `json:"session_id"`
		Points    []coord.Point `json:"points"`
		VizGCode  string        `json:"viz_gcode"`
	}
	decodeBody(t, resp, &probed)
	assert.NotEmpty(t, probed.SessionID)
	assert.NotEmpty(t, probed.VizGCode)
	require.Len(t, probed.Points, 4)
	assert.Equal(t, 0.0, probed.Points[0].Z)
	assert.InDelta(t, 0.03, probed.Points[3].Z, 1e-9)

	resp, err = http.Get(srv.URL + "/api/latest")
	require.NoError(t, err)
	var latest struct {
		Status string `json:"status"`
		Stats  struct {
			DeltaZ float64 `json:"delta_z"`
		} `json:"stats"`
	}
	decodeBody(t, resp, &latest)
	assert.Equal(t, "success", latest.Status)
	assert.InDelta(t, 0.03, latest.Stats.DeltaZ, 1e-9)

	resp, err = http.Post(srv.URL+"/api/level?granularity=0", "text/plain", strings.NewReader("G90\nG1X5Y5Z0F100\n"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(out), "X5Y5Z0.015")
}

func TestAPI_ProbeForm(t *testing.T) {
	dev := &fakeDevice{reply: func(i int) machine.Event {
		return machine.ProbeCompleted{Z: -1}
	}}
	srv := newTestAPI(t, dev)

	resp, err := http.PostForm(srv.URL+"/api/probe", url.Values{"points_x": {"3"}, "points_y": {"2"}})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res machine.Result
	decodeBody(t, resp, &res)
	assert.Equal(t, machine.GridConfig{Width: 50, Height: 30, PointsX: 3, PointsY: 2}, res.Config)
	assert.Len(t, res.Points, 6)
}

func TestAPI_ProbeErrors(t *testing.T) {
	dev := &fakeDevice{reply: func(i int) machine.Event {
		if i == 2 {
			return machine.ProbeFailed{Reason: "ALARM:5"}
		}
		return machine.ProbeCompleted{Z: 0}
	}}
	srv := newTestAPI(t, dev)

	resp, err := http.PostForm(srv.URL+"/api/probe", url.Values{"points_x": {"1"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/probe", "application/json", strings.NewReader(`{"width":`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.PostForm(srv.URL+"/api/probe", url.Values{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var body errorBody
	decodeBody(t, resp, &body)
	require.NotNil(t, body.Index)
	assert.Equal(t, 2, *body.Index)
	assert.Equal(t, 2, *body.Collected)
	assert.Contains(t, body.Error, "ALARM:5")

	resp, err = http.Get(srv.URL + "/api/latest")
	require.NoError(t, err)
	var latest map[string]interface{}
	decodeBody(t, resp, &latest)
	assert.Equal(t, "none", latest["status"])
}

func TestAPI_NoDevice(t *testing.T) {
	srv := newTestAPI(t, nil)

	resp, err := http.PostForm(srv.URL+"/api/probe", url.Values{})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/probe/latest")
	require.NoError(t, err)
	var snap map[string]interface{}
	decodeBody(t, resp, &snap)
	assert.Equal(t, "none", snap["status"])
}

func TestAPI_StateAbortMetrics(t *testing.T) {
	dev := &fakeDevice{reply: func(i int) machine.Event { return machine.ProbeCompleted{} }}
	srv := newTestAPI(t, dev)

	resp, err := http.Get(srv.URL + "/api/state")
	require.NoError(t, err)
	var stat grbl.Status
	decodeBody(t, resp, &stat)
	assert.Equal(t, dev.LastStatus(), stat)

	resp, err = http.Post(srv.URL+"/api/abort", "", nil)
	require.NoError(t, err)
	var aborted map[string]bool
	decodeBody(t, resp, &aborted)
	assert.Equal(t, map[string]bool{"aborted": false}, aborted)

	resp, err = http.PostForm(srv.URL+"/api/probe", url.Values{})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `pcbprobe_sessions_total{status="succeeded"} 1`)
	assert.Contains(t, string(data), "pcbprobe_points_total 15")
}
