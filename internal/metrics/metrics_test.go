// internal/metrics/metrics_test.go
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tamzrod/mk3-bridge/internal/mode"
	"github.com/tamzrod/mk3-bridge/internal/poller"
	"github.com/tamzrod/mk3-bridge/internal/session"
	"github.com/tamzrod/mk3-bridge/internal/snapshot"
	"github.com/tamzrod/mk3-bridge/internal/status"
)

func TestOutcome(t *testing.T) {
	cases := map[string]error{
		"ok":      nil,
		"fault":   fmt.Errorf("x: %w", &session.CommunicationFault{}),
		"asleep":  session.ErrDeviceAsleep,
		"no_data": session.ErrNoDataAvailable,
		"timeout": fmt.Errorf("%w: dc: %w", session.ErrCancelled, context.DeadlineExceeded),
		"closed":  session.ErrClosed,
		"error":   errors.New("other"),
	}
	for want, err := range cases {
		if got := Outcome(err); got != want {
			t.Errorf("Outcome(%v)=%q want %q", err, got, want)
		}
	}
}

func TestObservePoll(t *testing.T) {
	m := New()

	snap := snapshot.Snapshot{
		DC:     &snapshot.DCReading{Voltage: 26.4},
		Config: &snapshot.ConfigReading{ActualCurrentLimit: 16, Switch: mode.SwitchCharge},
	}
	snap.AC[0] = &snapshot.ACReading{Phase: 1, MainsVoltage: 230, DeviceState: snapshot.DeviceCharge}

	m.ObservePoll(poller.PollResult{UnitID: "mp", At: time.Unix(100, 0), Duration: time.Second, Snapshot: snap})
	m.ObservePoll(poller.PollResult{UnitID: "mp", Err: session.ErrDeviceAsleep})

	if got := testutil.ToFloat64(m.polls.WithLabelValues("mp", "ok")); got != 1 {
		t.Fatalf("ok polls=%v", got)
	}
	if got := testutil.ToFloat64(m.polls.WithLabelValues("mp", "asleep")); got != 1 {
		t.Fatalf("asleep polls=%v", got)
	}
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues("mp")); got != 100 {
		t.Fatalf("last success=%v", got)
	}
	if got := testutil.ToFloat64(m.reading.WithLabelValues("mp", "battery_voltage", "")); got != 26.4 {
		t.Fatalf("battery voltage=%v", got)
	}
	if got := testutil.ToFloat64(m.reading.WithLabelValues("mp", "ac_input_voltage", "1")); got != 230 {
		t.Fatalf("ac input voltage=%v", got)
	}
	if got := testutil.ToFloat64(m.deviceState.WithLabelValues("mp")); got != float64(snapshot.DeviceCharge) {
		t.Fatalf("device state=%v", got)
	}
	if got := testutil.ToFloat64(m.mode.WithLabelValues("mp", "actual", "charger_only")); got != 1 {
		t.Fatalf("actual charger_only=%v", got)
	}
	if got := testutil.ToFloat64(m.mode.WithLabelValues("mp", "actual", "on")); got != 0 {
		t.Fatalf("actual on=%v", got)
	}
}

func TestObserveStatusAndCommands(t *testing.T) {
	m := New()

	m.ObserveStatus("mp", status.Snapshot{Health: status.HealthFault, SecondsInError: 12})
	m.Command("mp", "mode", nil)
	m.Command("mp", "mode", errors.New("x"))
	m.SinkError("mp", "mqtt")

	if got := testutil.ToFloat64(m.health.WithLabelValues("mp")); got != float64(status.HealthFault) {
		t.Fatalf("health=%v", got)
	}
	if got := testutil.ToFloat64(m.secondsInError.WithLabelValues("mp")); got != 12 {
		t.Fatalf("seconds=%v", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues("mp", "mode", "error")); got != 1 {
		t.Fatalf("command errors=%v", got)
	}
	if got := testutil.ToFloat64(m.sinkErrs.WithLabelValues("mp", "mqtt")); got != 1 {
		t.Fatalf("sink errors=%v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObservePoll(poller.PollResult{})
	m.ObserveStatus("mp", status.Snapshot{})
	m.Command("mp", "x", nil)
	m.SinkError("mp", "kafka")

	h := m.WrapHandler("r", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()

	wrapped := m.WrapHandler("/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `mk3_http_requests_total{route="/health",status="404"} 1`) {
		t.Fatalf("metrics body missing request counter:\n%s", body)
	}
}
