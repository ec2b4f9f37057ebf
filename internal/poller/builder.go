// internal/poller/builder.go
package poller

import (
	"time"

	"github.com/sirupsen/logrus"

	cfg "github.com/tamzrod/mk3-bridge/internal/config"
	"github.com/tamzrod/mk3-bridge/internal/mk3"
	"github.com/tamzrod/mk3-bridge/internal/session"
)

// Build constructs a Poller and wires the device session lifecycle.
// Session is reused while healthy.
// On a latched fault, Poller discards the session and uses factory on a future tick.
// No retries, no loops, no semantics.
func Build(d cfg.DeviceConfig, log logrus.FieldLogger) (*Poller, func() error, error) {
	// session factory: ONE attempt per call
	factory := func() (Client, error) {
		tr, err := mk3.Open(mk3.Config{
			Port:        d.Source.Port,
			BaudRate:    d.Source.Baud,
			ReadTimeout: time.Duration(d.Source.ReadTimeoutMs) * time.Millisecond,
			IdleTimeout: time.Duration(d.Source.IdleTimeoutMs) * time.Millisecond,
			Logger:      log.WithField("unit", d.ID),
		})
		if err != nil {
			return nil, err
		}

		s, err := session.New(session.Config{
			UnitID:   d.ID,
			ACPhases: d.ACPhases,
			Logger:   log,
		}, tr)
		if err != nil {
			_ = tr.Close()
			return nil, err
		}
		return s, nil
	}

	// initial session (fail fast at startup)
	client, err := factory()
	if err != nil {
		return nil, nil, err
	}

	p, err := New(
		Config{
			UnitID:       d.ID,
			Interval:     time.Duration(d.Poll.IntervalMs) * time.Millisecond,
			CycleTimeout: time.Duration(d.Poll.CycleTimeoutMs) * time.Millisecond,
			Standby:      d.Standby,
			Logger:       log,
		},
		client,
		factory,
	)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return p, p.Close, nil
}
