package bridge

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mats19/pcb-bridge/machine"
)

type handler struct {
	b Backend
}

// NewHandler serves b over HTTP with the routes Client expects, relative to
// the handler's mount point.
func NewHandler(b Backend) http.Handler {
	h := &handler{b: b}

	r := mux.NewRouter()
	r.HandleFunc("/latest", h.latest).Methods("GET")
	r.HandleFunc("/reset", h.reset).Methods("DELETE", "POST")
	r.HandleFunc("/simulate", h.simulate).Methods("POST")
	r.HandleFunc("/save", h.save).Methods("POST")

	return r
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		log.Println("ERROR: encode:", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (h *handler) latest(w http.ResponseWriter, req *http.Request) {
	s, err := h.b.Latest(req.Context())
	if err != nil {
		log.Println("ERROR: latest:", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) reset(w http.ResponseWriter, req *http.Request) {
	err := h.b.Reset(req.Context())
	if err != nil {
		log.Println("ERROR: reset:", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: StatusSuccess})
}

func (h *handler) simulate(w http.ResponseWriter, req *http.Request) {
	var cfg machine.GridConfig
	err := json.NewDecoder(req.Body).Decode(&cfg)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s, err := h.b.Simulate(req.Context(), cfg)
	if errors.Is(err, machine.ErrInvalidConfiguration) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		log.Println("ERROR: simulate:", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) save(w http.ResponseWriter, req *http.Request) {
	var body saveRequest
	err := json.NewDecoder(req.Body).Decode(&body)
	if err == nil {
		err = body.Config.Validate()
	}
	if err == nil && len(body.Points) == 0 {
		err = machine.ErrNoSamples
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	viz, err := h.b.Save(req.Context(), body.Config, body.Points)
	if err != nil {
		log.Println("ERROR: save:", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{VizGCode: viz})
}
