// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mk3-bridge/internal/mode"
	"github.com/tamzrod/mk3-bridge/internal/session"
	"github.com/tamzrod/mk3-bridge/internal/snapshot"
)

// Client is the device session the poller drives.
// *session.Session satisfies it.
type Client interface {
	Poll(ctx context.Context) (snapshot.Snapshot, error)
	SetOverride(ctx context.Context, m mode.Mode, currentLimit *float64) error
	Standby(enabled bool)
	Close() error
}

// Factory creates a fresh client. ONE attempt per call.
type Factory func() (Client, error)

// Config is the minimal runtime config the poller needs.
type Config struct {
	UnitID       string
	Interval     time.Duration
	CycleTimeout time.Duration
	Standby      *bool // initial standby intent; re-asserted on every new client
	Logger       logrus.FieldLogger
}

// Poller is the clock-driven caller of one device session.
// Operations never overlap. A client that returned a communication fault
// is discarded and the factory is used on the next operation.
type Poller struct {
	cfg     Config
	factory Factory
	log     logrus.FieldLogger
	refresh chan struct{}

	op chan struct{} // one exchange at a time; cap 1

	mu       sync.Mutex
	client   Client
	standby  *bool
	last     PollResult
	lastGood *snapshot.Snapshot
	closed   bool
}

// New creates a poller. client may be nil; factory is then used on first use.
func New(cfg Config, client Client, factory Factory) (*Poller, error) {
	if cfg.UnitID == "" {
		return nil, errors.New("poller: unit id required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.CycleTimeout <= 0 || cfg.CycleTimeout > cfg.Interval {
		cfg.CycleTimeout = cfg.Interval
	}
	if client == nil && factory == nil {
		return nil, errors.New("poller: client or factory required")
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	p := &Poller{
		cfg:     cfg,
		factory: factory,
		log:     log.WithField("unit", cfg.UnitID),
		refresh: make(chan struct{}, 1),
		op:      make(chan struct{}, 1),
		client:  client,
	}
	if cfg.Standby != nil {
		v := *cfg.Standby
		p.standby = &v
		if client != nil {
			client.Standby(v)
		}
	}
	return p, nil
}

// UnitID is the device id this poller serves.
func (p *Poller) UnitID() string { return p.cfg.UnitID }

// PollOnce performs exactly one poll cycle bounded by the cycle timeout.
func (p *Poller) PollOnce(ctx context.Context) (res PollResult) {
	if err := p.lock(ctx); err != nil {
		return PollResult{UnitID: p.cfg.UnitID, At: time.Now(), Err: err}
	}
	defer p.unlock()

	start := time.Now()
	res = PollResult{
		UnitID: p.cfg.UnitID,
		At:     start,
	}
	defer func() {
		res.Duration = time.Since(start)
		p.record(res)
	}()

	cli, err := p.acquire()
	if err != nil {
		res.Err = err
		return res
	}

	cctx, cancel := context.WithTimeout(ctx, p.cfg.CycleTimeout)
	defer cancel()

	snap, err := cli.Poll(cctx)
	if err != nil {
		res.Err = err
		p.discardIfDead(cli, err)
	} else {
		res.Snapshot = snap
		if !snap.At.IsZero() {
			res.At = snap.At
		}
	}

	return res
}

// SetOverride sends a remote panel override, bounded by the cycle timeout.
// It does not refresh; callers request that separately.
// Waiting for a running poll is bounded by ctx.
func (p *Poller) SetOverride(ctx context.Context, m mode.Mode, currentLimit *float64) error {
	if err := p.lock(ctx); err != nil {
		return err
	}
	defer p.unlock()

	cli, err := p.acquire()
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, p.cfg.CycleTimeout)
	defer cancel()

	if err := cli.SetOverride(cctx, m, currentLimit); err != nil {
		p.discardIfDead(cli, err)
		return err
	}
	return nil
}

// Standby records the standby intent. It is applied by the next poll,
// also on a client created after a fault.
func (p *Poller) Standby(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.standby = &enabled
	if p.client != nil {
		p.client.Standby(enabled)
	}
}

// StandbyIntent reports the last standby intent, if any.
func (p *Poller) StandbyIntent() (bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.standby == nil {
		return false, false
	}
	return *p.standby, true
}

// Refresh asks Run for an out-of-schedule poll. Never blocks; requests coalesce.
func (p *Poller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Last returns the most recent poll result.
func (p *Poller) Last() PollResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// LastSnapshot returns the most recent successful snapshot.
func (p *Poller) LastSnapshot() (snapshot.Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastGood == nil {
		return snapshot.Snapshot{}, false
	}
	return *p.lastGood, true
}

// Close releases the current client. Later operations fail.
func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

// ---- internal ----

func (p *Poller) lock(ctx context.Context) error {
	select {
	case p.op <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) unlock() { <-p.op }

func (p *Poller) acquire() (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, session.ErrClosed
	}
	if p.client != nil {
		return p.client, nil
	}
	if p.factory == nil {
		return nil, errors.New("poller: no client and no factory")
	}

	cli, err := p.factory()
	if err != nil {
		return nil, err
	}
	if p.standby != nil {
		cli.Standby(*p.standby)
	}
	p.log.Info("device session created")

	p.client = cli
	return cli, nil
}

// discardIfDead drops a client whose session is latched or closed.
func (p *Poller) discardIfDead(cli Client, err error) {
	var fault *session.CommunicationFault
	if !errors.As(err, &fault) && !errors.Is(err, session.ErrClosed) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != cli {
		return
	}
	p.client = nil

	p.log.WithError(err).Warn("device session discarded; recreating on next cycle")
	if cerr := cli.Close(); cerr != nil {
		p.log.WithError(cerr).Debug("close discarded session")
	}
}

func (p *Poller) record(res PollResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.last = res
	if res.Err == nil {
		snap := res.Snapshot
		p.lastGood = &snap
	}
}
