// internal/command/command.go
package command

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mk3-bridge/internal/mode"
	"github.com/tamzrod/mk3-bridge/internal/snapshot"
)

// ErrUnavailable is returned when a command needs device state that has not been read yet.
var ErrUnavailable = errors.New("device is not available")

// ErrUnknownDevice is returned for an id no pipeline serves.
var ErrUnknownDevice = errors.New("unknown device")

// Target is one device's refresh driver. *poller.Poller satisfies it.
type Target interface {
	SetOverride(ctx context.Context, m mode.Mode, currentLimit *float64) error
	Standby(enabled bool)
	Refresh()
	LastSnapshot() (snapshot.Snapshot, bool)
}

// Dispatcher validates user commands and routes them to a device.
// Every accepted command is followed by a refresh.
type Dispatcher struct {
	targets map[string]Target
	log     logrus.FieldLogger
}

func NewDispatcher(targets map[string]Target, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{targets: targets, log: log}
}

// SetRemotePanelState applies mode and an optional current limit.
func (d *Dispatcher) SetRemotePanelState(ctx context.Context, id string, m mode.Mode, currentLimit *float64) error {
	t, err := d.target(id)
	if err != nil {
		return err
	}
	if !m.Valid() {
		return fmt.Errorf("invalid mode %d", m)
	}
	if currentLimit != nil {
		if err := checkLimit(*currentLimit); err != nil {
			return err
		}
	}

	log := d.log.WithFields(logrus.Fields{"unit": id, "mode": m.String()})
	if currentLimit != nil {
		log = log.WithField("current_limit", *currentLimit)
	}

	if err := t.SetOverride(ctx, m, currentLimit); err != nil {
		log.WithError(err).Warn("set remote panel state failed")
		return fmt.Errorf("%s: set remote panel state: %w", id, err)
	}
	log.Info("remote panel state set")

	t.Refresh()
	return nil
}

// SetRemotePanelMode changes the mode and keeps the actual current limit.
func (d *Dispatcher) SetRemotePanelMode(ctx context.Context, id string, m mode.Mode) error {
	t, err := d.target(id)
	if err != nil {
		return err
	}
	cfg, err := lastConfig(t)
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}

	limit := cfg.ActualCurrentLimit
	return d.SetRemotePanelState(ctx, id, m, &limit)
}

// SetRemotePanelCurrentLimit changes the current limit and keeps the remote panel mode.
func (d *Dispatcher) SetRemotePanelCurrentLimit(ctx context.Context, id string, currentLimit float64) error {
	t, err := d.target(id)
	if err != nil {
		return err
	}
	cfg, err := lastConfig(t)
	if err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}

	m := mode.RemotePanelMode(cfg.Switch)
	return d.SetRemotePanelState(ctx, id, m, &currentLimit)
}

// SetStandby records the standby intent; it is applied by the refresh poll.
func (d *Dispatcher) SetStandby(id string, enabled bool) error {
	t, err := d.target(id)
	if err != nil {
		return err
	}

	t.Standby(enabled)
	d.log.WithFields(logrus.Fields{"unit": id, "standby": enabled}).Info("standby intent set")

	t.Refresh()
	return nil
}

// Refresh requests an out-of-schedule poll.
func (d *Dispatcher) Refresh(id string) error {
	t, err := d.target(id)
	if err != nil {
		return err
	}
	t.Refresh()
	return nil
}

// ---- internal ----

func (d *Dispatcher) target(id string) (Target, error) {
	t, ok := d.targets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	return t, nil
}

func lastConfig(t Target) (*snapshot.ConfigReading, error) {
	snap, ok := t.LastSnapshot()
	if !ok || snap.Config == nil {
		return nil, ErrUnavailable
	}
	return snap.Config, nil
}

func checkLimit(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("invalid current limit %v", v)
	}
	return nil
}
