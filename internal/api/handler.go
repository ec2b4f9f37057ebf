// internal/api/handler.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mk3-bridge/internal/command"
	"github.com/tamzrod/mk3-bridge/internal/mode"
	"github.com/tamzrod/mk3-bridge/internal/snapshot"
	"github.com/tamzrod/mk3-bridge/internal/status"
)

const maxBody = 4 << 10

type deviceHealth struct {
	Health         string     `json:"health"`
	LastErrorCode  uint16     `json:"last_error_code"`
	SecondsInError uint16     `json:"seconds_in_error"`
	LastError      string     `json:"last_error,omitempty"`
	LastPoll       *time.Time `json:"last_poll,omitempty"`
}

type healthResponse struct {
	Status  string                  `json:"status"`
	Devices map[string]deviceHealth `json:"devices"`
}

type deviceResponse struct {
	ID      string         `json:"id"`
	Health  deviceHealth   `json:"health"`
	Standby *bool          `json:"standby,omitempty"`
	State   *snapshot.View `json:"state,omitempty"`
}

type stateRequest struct {
	Mode         string   `json:"mode"`
	CurrentLimit *float64 `json:"current_limit"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type currentLimitRequest struct {
	CurrentLimit *float64 `json:"current_limit"`
}

type standbyRequest struct {
	Enabled *bool `json:"enabled"`
}

// ---- read ----

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Devices: make(map[string]deviceHealth)}
	for _, id := range s.ids {
		h := s.deviceHealth(id)
		if h.Health != "ok" {
			resp.Status = "degraded"
		}
		resp.Devices[id] = h
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	id, dev, ok := s.device(w, r)
	if !ok {
		return
	}

	resp := deviceResponse{ID: id, Health: s.deviceHealth(id)}
	if v, ok := dev.StandbyIntent(); ok {
		resp.Standby = &v
	}
	if snap, ok := dev.LastSnapshot(); ok {
		view := snap.View()
		resp.State = &view
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deviceHealth(id string) deviceHealth {
	var h deviceHealth

	st, ok := s.board.Get(id)
	if !ok {
		st = status.Snapshot{Health: status.HealthUnknown}
	}
	h.Health = status.HealthName(st.Health)
	h.LastErrorCode = st.LastErrorCode
	h.SecondsInError = st.SecondsInError

	if dev, ok := s.devices[id]; ok {
		last := dev.Last()
		if !last.At.IsZero() {
			at := last.At
			h.LastPoll = &at
		}
		if last.Err != nil {
			h.LastError = last.Err.Error()
		}
	}
	return h
}

// ---- commands ----

func (s *Server) postState(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.device(w, r)
	if !ok {
		return
	}
	var req stateRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := mode.Parse(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err = s.cmd.SetRemotePanelState(r.Context(), id, m, req.CurrentLimit)
	s.finish(w, id, "state", err)
}

func (s *Server) postMode(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.device(w, r)
	if !ok {
		return
	}
	var req modeRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := mode.Parse(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err = s.cmd.SetRemotePanelMode(r.Context(), id, m)
	s.finish(w, id, "mode", err)
}

func (s *Server) postCurrentLimit(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.device(w, r)
	if !ok {
		return
	}
	var req currentLimitRequest
	if !decode(w, r, &req) {
		return
	}
	if req.CurrentLimit == nil {
		writeError(w, http.StatusBadRequest, errors.New("current_limit required"))
		return
	}

	err := s.cmd.SetRemotePanelCurrentLimit(r.Context(), id, *req.CurrentLimit)
	s.finish(w, id, "current_limit", err)
}

func (s *Server) postStandby(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.device(w, r)
	if !ok {
		return
	}
	var req standbyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, errors.New("enabled required"))
		return
	}

	err := s.cmd.SetStandby(id, *req.Enabled)
	s.finish(w, id, "standby", err)
}

func (s *Server) postRefresh(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.device(w, r)
	if !ok {
		return
	}
	err := s.cmd.Refresh(id)
	s.finish(w, id, "refresh", err)
}

func (s *Server) finish(w http.ResponseWriter, id, name string, err error) {
	s.metrics.Command(id, name, err)

	if err == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	s.log.WithError(err).WithFields(logrus.Fields{"unit": id, "command": name}).Warn("command failed")

	switch {
	case errors.Is(err, command.ErrUnknownDevice):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, command.ErrUnavailable):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusBadGateway, err)
	}
}

// ---- helpers ----

func (s *Server) device(w http.ResponseWriter, r *http.Request) (string, Device, bool) {
	id := mux.Vars(r)["id"]
	dev, ok := s.devices[id]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %q", command.ErrUnknownDevice, id))
		return "", nil, false
	}
	return id, dev, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
