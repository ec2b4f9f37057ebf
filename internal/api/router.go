// internal/api/router.go
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mk3-bridge/internal/metrics"
	"github.com/tamzrod/mk3-bridge/internal/mode"
	"github.com/tamzrod/mk3-bridge/internal/poller"
	"github.com/tamzrod/mk3-bridge/internal/snapshot"
	"github.com/tamzrod/mk3-bridge/internal/status"
)

// Device is the read side of one refresh driver. *poller.Poller satisfies it.
type Device interface {
	Last() poller.PollResult
	LastSnapshot() (snapshot.Snapshot, bool)
	StandbyIntent() (bool, bool)
}

// Commander is the write side. *command.Dispatcher satisfies it.
type Commander interface {
	SetRemotePanelState(ctx context.Context, id string, m mode.Mode, currentLimit *float64) error
	SetRemotePanelMode(ctx context.Context, id string, m mode.Mode) error
	SetRemotePanelCurrentLimit(ctx context.Context, id string, currentLimit float64) error
	SetStandby(id string, enabled bool) error
	Refresh(id string) error
}

type Server struct {
	devices map[string]Device
	ids     []string
	cmd     Commander
	board   *status.Board
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

// New builds the control API. ids fixes the listing order.
func New(ids []string, devices map[string]Device, cmd Commander, board *status.Board, m *metrics.Metrics, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		devices: devices,
		ids:     ids,
		cmd:     cmd,
		board:   board,
		metrics: m,
		log:     log.WithField("component", "api"),
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	route := func(path string, h http.HandlerFunc, methods ...string) {
		r.Handle(path, s.metrics.WrapHandler(path, h)).Methods(methods...)
	}

	route("/health", s.health, http.MethodGet)
	route("/devices/{id}", s.getDevice, http.MethodGet)
	route("/devices/{id}/state", s.postState, http.MethodPost)
	route("/devices/{id}/mode", s.postMode, http.MethodPost)
	route("/devices/{id}/current_limit", s.postCurrentLimit, http.MethodPost)
	route("/devices/{id}/standby", s.postStandby, http.MethodPost)
	route("/devices/{id}/refresh", s.postRefresh, http.MethodPost)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	return r
}

// Handler is Router with panic recovery.
func (s *Server) Handler() http.Handler {
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(s.log),
		handlers.PrintRecoveryStack(true),
	)
	return recovery(s.Router())
}
