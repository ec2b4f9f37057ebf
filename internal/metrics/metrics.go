// internal/metrics/metrics.go
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tamzrod/mk3-bridge/internal/mode"
	"github.com/tamzrod/mk3-bridge/internal/poller"
	"github.com/tamzrod/mk3-bridge/internal/session"
	"github.com/tamzrod/mk3-bridge/internal/snapshot"
	"github.com/tamzrod/mk3-bridge/internal/status"
)

const namespace = "mk3"

// Metrics owns its registry so several instances can coexist in tests.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	polls        *prometheus.CounterVec
	pollDuration *prometheus.HistogramVec
	lastSuccess  *prometheus.GaugeVec

	health         *prometheus.GaugeVec
	secondsInError *prometheus.GaugeVec
	mode           *prometheus.GaugeVec
	deviceState    *prometheus.GaugeVec
	reading        *prometheus.GaugeVec

	commands *prometheus.CounterVec
	sinkErrs *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Poll cycles by outcome.",
		}, []string{"unit", "outcome"}),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Wall time of poll cycles.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}, []string{"unit"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful snapshot.",
		}, []string{"unit"}),
		health: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health",
			Help:      "Status block health code (0 unknown, 1 ok, 2 error, 3 asleep, 4 fault).",
		}, []string{"unit"}),
		secondsInError: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seconds_in_error",
			Help:      "Seconds since the device left the OK state.",
		}, []string{"unit"}),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode",
			Help:      "1 for the current mode of each panel, 0 otherwise.",
		}, []string{"unit", "panel", "mode"}),
		deviceState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_state",
			Help:      "Device state reported with AC phase 1.",
		}, []string{"unit"}),
		reading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reading",
			Help:      "Last polled device reading.",
		}, []string{"unit", "quantity", "phase"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "User commands by result.",
		}, []string{"unit", "command", "result"}),
		sinkErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Delivery failures by sink.",
		}, []string{"unit", "sink"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.reg.MustRegister(
		m.polls,
		m.pollDuration,
		m.lastSuccess,
		m.health,
		m.secondsInError,
		m.mode,
		m.deviceState,
		m.reading,
		m.commands,
		m.sinkErrs,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObservePoll records one poll cycle and, on success, its readings.
func (m *Metrics) ObservePoll(res poller.PollResult) {
	if m == nil {
		return
	}

	m.polls.WithLabelValues(res.UnitID, Outcome(res.Err)).Inc()
	m.pollDuration.WithLabelValues(res.UnitID).Observe(res.Duration.Seconds())

	if res.Err != nil {
		return
	}
	m.lastSuccess.WithLabelValues(res.UnitID).Set(float64(res.At.Unix()))
	m.observeSnapshot(res.UnitID, res.Snapshot)
}

// ObserveStatus mirrors the status block.
func (m *Metrics) ObserveStatus(unit string, s status.Snapshot) {
	if m == nil {
		return
	}
	m.health.WithLabelValues(unit).Set(float64(s.Health))
	m.secondsInError.WithLabelValues(unit).Set(float64(s.SecondsInError))
}

// Command counts one user command.
func (m *Metrics) Command(unit, command string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(unit, command, result).Inc()
}

// SinkError counts one failed delivery.
func (m *Metrics) SinkError(unit, sink string) {
	if m == nil {
		return
	}
	m.sinkErrs.WithLabelValues(unit, sink).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts and times requests for one route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

// Outcome is the polls_total label for a cycle error.
func Outcome(err error) string {
	var fault *session.CommunicationFault
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &fault):
		return "fault"
	case errors.Is(err, session.ErrDeviceAsleep):
		return "asleep"
	case errors.Is(err, session.ErrNoDataAvailable):
		return "no_data"
	case errors.Is(err, session.ErrCancelled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, session.ErrClosed):
		return "closed"
	default:
		return "error"
	}
}

// ---- readings ----

func (m *Metrics) observeSnapshot(unit string, s snapshot.Snapshot) {
	set := func(quantity, phase string, v float64) {
		m.reading.WithLabelValues(unit, quantity, phase).Set(v)
	}

	for _, ac := range s.AC {
		if ac == nil {
			continue
		}
		ph := strconv.Itoa(ac.Phase)
		set("ac_input_voltage", ph, ac.MainsVoltage)
		set("ac_input_current", ph, ac.MainsCurrent)
		set("ac_output_voltage", ph, ac.InverterVoltage)
		set("ac_output_current", ph, ac.InverterCurrent)
	}
	if ac := s.AC[0]; ac != nil {
		set("ac_input_frequency", "", ac.MainsFrequency)
		m.deviceState.WithLabelValues(unit).Set(float64(ac.DeviceState))
	}

	if dc := s.DC; dc != nil {
		set("battery_voltage", "", dc.Voltage)
		set("battery_input_current", "", dc.CurrentFromCharger)
		set("battery_output_current", "", dc.CurrentToInverter)
		set("ac_output_frequency", "", dc.InverterFrequency)
	}

	if c := s.Config; c != nil {
		set("ac_input_current_limit", "", c.ActualCurrentLimit)
		set("ac_input_current_limit_minimum", "", c.MinimumCurrentLimit)
		set("ac_input_current_limit_maximum", "", c.MaximumCurrentLimit)
	}

	panels := []struct {
		name string
		get  func() (mode.Mode, bool)
	}{
		{"front", s.FrontPanelMode},
		{"remote", s.RemotePanelMode},
		{"actual", s.ActualMode},
	}
	for _, p := range panels {
		cur, ok := p.get()
		if !ok {
			continue
		}
		for _, md := range mode.Modes() {
			v := 0.0
			if md == cur {
				v = 1
			}
			m.mode.WithLabelValues(unit, p.name, md.String()).Set(v)
		}
	}
}
