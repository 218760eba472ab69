package main

import (
	"encoding/json"
	"errors"
	"io"
	"io/ioutil"
	"log"
	"mime"
	"net/http"
	"strconv"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mats19/pcb-bridge/bridge"
	"github.com/mats19/pcb-bridge/machine"
	"github.com/mats19/pcb-bridge/machine/grbl"
	"github.com/mats19/pcb-bridge/meshlevel"
	"github.com/mats19/pcb-bridge/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// statusReporter is implemented by devices that poll the controller state.
type statusReporter interface {
	LastStatus() grbl.Status
}

type apiConfig struct {
	Machine *machine.Machine
	Device  machine.Channel
	Backend bridge.Backend

	// ServeBackend mounts Backend under /probe/ for other clients.
	ServeBackend bool

	Profile  Profile
	Registry *prometheus.Registry
}

type api struct {
	http.Handler
	m       *machine.Machine
	device  machine.Channel
	backend bridge.Backend
	profile Profile
	metrics *metrics.Metrics
	sse     *sse.Server
}

func newAPI(cfg apiConfig) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		m:       cfg.Machine,
		device:  cfg.Device,
		backend: cfg.Backend,
		profile: cfg.Profile,
		metrics: metrics.New(cfg.Registry),
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(ioutil.Discard, "", 0),
		}),
	}

	r.HandleFunc("/api/latest", a.latest).Methods("GET")
	r.HandleFunc("/api/probe", a.probe).Methods("POST")
	r.HandleFunc("/api/abort", a.abort).Methods("POST")
	r.HandleFunc("/api/level", a.level).Methods("POST")
	r.HandleFunc("/api/state", a.state).Methods("GET")

	if cfg.ServeBackend {
		r.PathPrefix("/probe/").Handler(http.StripPrefix("/probe", bridge.NewHandler(cfg.Backend)))
	}
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	r.PathPrefix("/events/").Handler(a.sse)

	if rep, ok := cfg.Device.(statusReporter); ok {
		go a.pumpState(rep)
	}

	return a
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		log.Println("ERROR: encode:", err)
	}
}

type errorBody struct {
	Error     string `json:"error"`
	Index     *int   `json:"index,omitempty"`
	Collected *int   `json:"collected,omitempty"`
	Timeout   bool   `json:"timeout,omitempty"`
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Error: err.Error()})
}

// writeProbeError maps a failed session to a response.
func writeProbeError(w http.ResponseWriter, err error) {
	var pf *machine.ProbeFailure
	var ce *machine.ChannelError
	switch {
	case errors.Is(err, machine.ErrInvalidConfiguration):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, machine.ErrBusy), errors.Is(err, machine.ErrAborted):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &pf):
		writeJSON(w, http.StatusBadGateway, errorBody{
			Error:     err.Error(),
			Index:     &pf.Index,
			Collected: &pf.Collected,
			Timeout:   pf.Timeout,
		})
	case errors.As(err, &ce):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type latestResponse struct {
	*bridge.Snapshot
	Stats *machine.Stats `json:"stats,omitempty"`
}

func (a *api) latest(w http.ResponseWriter, req *http.Request) {
	snap, err := a.backend.Latest(req.Context())
	if err != nil {
		log.Println("ERROR: latest:", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if snap == nil {
		snap = &bridge.Snapshot{Status: bridge.StatusNone}
	}
	res := latestResponse{Snapshot: snap}
	if stats, ok := machine.ComputeStats(snap.Points); ok {
		res.Stats = &stats
	}
	writeJSON(w, http.StatusOK, res)
}

// gridConfig reads the grid from a JSON body or form values. Missing values
// come from the profile.
func (a *api) gridConfig(req *http.Request) (machine.GridConfig, error) {
	cfg := a.profile.Grid
	ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if ct == "application/json" {
		err := json.NewDecoder(req.Body).Decode(&cfg)
		if err != nil && err != io.EOF {
			return cfg, err
		}
		return cfg, cfg.Validate()
	}

	val := func(name, def string) string {
		if v := req.FormValue(name); v != "" {
			return v
		}
		return def
	}
	return machine.ParseGridConfig(
		val("width", strconv.FormatFloat(cfg.Width, 'f', -1, 64)),
		val("height", strconv.FormatFloat(cfg.Height, 'f', -1, 64)),
		val("points_x", strconv.Itoa(cfg.PointsX)),
		val("points_y", strconv.Itoa(cfg.PointsY)),
	)
}

type progressEvent struct {
	SessionID string          `json:"session_id"`
	Collected int             `json:"collected"`
	Total     int             `json:"total"`
	Sample    *machine.Sample `json:"sample,omitempty"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
}

type probeResponse struct {
	SessionID string `json:"session_id"`
	*machine.Result
	PersistError string `json:"persist_error,omitempty"`
}

func (a *api) probe(w http.ResponseWriter, req *http.Request) {
	if a.m == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no device configured"))
		return
	}
	cfg, err := a.gridConfig(req)
	if err != nil {
		if !errors.Is(err, machine.ErrInvalidConfiguration) {
			err = &invalidRequest{err}
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := uuid.New().String()
	session := a.metrics.Start()
	progress := func(p machine.Progress) {
		session.Progress(p)
		ev := progressEvent{
			SessionID: id,
			Collected: p.Collected,
			Total:     p.Total,
			Sample:    p.Sample,
			Status:    p.Status.String(),
		}
		if p.Err != nil {
			ev.Error = p.Err.Error()
		}
		a.publish("/events/session", ev)
	}

	log.Printf("probe %s: %+v", id, cfg)
	res, err := a.m.ProbeGrid(req.Context(), cfg, a.profile.Probe, progress)
	session.End(res)

	var pe *machine.PersistenceError
	if errors.As(err, &pe) {
		log.Printf("ERROR: probe %s: %v", id, err)
		writeJSON(w, http.StatusOK, probeResponse{SessionID: id, Result: res, PersistError: pe.Error()})
		return
	}
	if err != nil {
		writeProbeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, probeResponse{SessionID: id, Result: res})
}

type invalidRequest struct{ err error }

func (e *invalidRequest) Error() string { return "invalid request: " + e.err.Error() }

func (a *api) abort(w http.ResponseWriter, req *http.Request) {
	if a.m == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no device configured"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"aborted": a.m.Abort()})
}

func (a *api) level(w http.ResponseWriter, req *http.Request) {
	granularity := 1.0
	if g := req.FormValue("granularity"); g != "" {
		var err error
		granularity, err = strconv.ParseFloat(g, 64)
		if err != nil || granularity < 0 {
			writeError(w, http.StatusBadRequest, errors.New("granularity must be a non-negative number"))
			return
		}
	}

	src, err := ioutil.ReadAll(req.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap, err := a.backend.Latest(req.Context())
	if err != nil {
		log.Println("ERROR: latest:", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if snap == nil || snap.Status != bridge.StatusSuccess {
		writeError(w, http.StatusConflict, errors.New("no height map"))
		return
	}

	out, err := meshlevel.Level(string(src), snap.Points, granularity)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, out)
}

func (a *api) state(w http.ResponseWriter, req *http.Request) {
	rep, ok := a.device.(statusReporter)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("device does not report state"))
		return
	}
	writeJSON(w, http.StatusOK, rep.LastStatus())
}

func (a *api) publish(channel string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("ERROR: marshal json: %+v", err)
		return
	}
	a.sse.SendMessage(channel, sse.SimpleMessage(string(data)))
}

func (a *api) pumpState(rep statusReporter) {
	var last grbl.Status
	for range time.Tick(500 * time.Millisecond) {
		stat := rep.LastStatus()
		if stat == last {
			continue
		}
		last = stat
		a.publish("/events/state", stat)
	}
}
