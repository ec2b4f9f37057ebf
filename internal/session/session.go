// internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mk3-bridge/internal/mode"
	"github.com/tamzrod/mk3-bridge/internal/snapshot"
)

// State is the session health.
type State uint8

const (
	StateActive State = iota
	StateIdle
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// lateReplyWait bounds how long a new exchange waits for the reply
// to a request whose cycle was cancelled.
const lateReplyWait = 2 * time.Second

// Config is the minimal runtime config a session needs.
type Config struct {
	UnitID   string
	ACPhases int // fixed count polled every cycle; device-reported counts are not trusted
	Logger   logrus.FieldLogger
}

// Session owns one device connection.
//
// Exchanges (Poll, SetOverride) hold mu for their full duration so that
// exactly one request is outstanding. Session state has its own lock so
// Standby and the diagnostics accessors never wait behind an exchange.
type Session struct {
	cfg Config
	tr  Transport
	log logrus.FieldLogger
	now func() time.Time

	mu sync.Mutex

	// reply matcher of a request left in flight by a cancelled exchange; guarded by mu
	orphan     func(snapshot.Reading) bool
	orphanStep string
	orphanWait time.Duration

	stateMu sync.Mutex
	fault   *CommunicationFault
	idle    bool
	standby *bool
	version *snapshot.VersionReading
	closed  bool
}

// New creates a session over an open transport. The session owns it.
func New(cfg Config, tr Transport) (*Session, error) {
	if cfg.UnitID == "" {
		return nil, errors.New("session: unit id required")
	}
	if cfg.ACPhases < 1 || cfg.ACPhases > snapshot.MaxACPhases {
		return nil, fmt.Errorf("session: ac phases must be 1..%d, got %d", snapshot.MaxACPhases, cfg.ACPhases)
	}
	if tr == nil {
		return nil, errors.New("session: transport required")
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Session{
		cfg:        cfg,
		tr:         tr,
		log:        log.WithField("unit", cfg.UnitID),
		now:        time.Now,
		orphanWait: lateReplyWait,
	}, nil
}

// Poll runs exactly one poll cycle.
// All-or-nothing: any failure discards the readings gathered so far.
func (s *Session) Poll(ctx context.Context) (snapshot.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return snapshot.Snapshot{}, err
	}

	if flags, ok := s.takeStandby(); ok {
		send := func() error { return s.tr.SendInterfaceRequest(flags) }
		if _, err := s.exchange(ctx, "interface", send, kindIs(snapshot.KindInterface)); err != nil {
			s.restoreStandby(flags)
			return snapshot.Snapshot{}, err
		}
	}

	var snap snapshot.Snapshot

	r, err := s.exchange(ctx, "led", s.tr.SendLEDRequest, kindIs(snapshot.KindLED))
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	snap.LED = r.(*snapshot.LEDReading)

	r, err = s.exchange(ctx, "dc", s.tr.SendDCRequest, kindIs(snapshot.KindDC))
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	snap.DC = r.(*snapshot.DCReading)

	for phase := 1; phase <= s.cfg.ACPhases; phase++ {
		p := phase
		send := func() error { return s.tr.SendACRequest(p) }
		r, err = s.exchange(ctx, fmt.Sprintf("ac%d", p), send, acPhaseIs(p))
		if err != nil {
			return snapshot.Snapshot{}, err
		}
		snap.AC[p-1] = r.(*snapshot.ACReading)
	}

	r, err = s.exchange(ctx, "config", s.tr.SendConfigRequest, kindIs(snapshot.KindConfig))
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	snap.Config = r.(*snapshot.ConfigReading)

	s.stateMu.Lock()
	snap.Version = s.version
	s.stateMu.Unlock()
	snap.At = s.now()

	// Never true after a full sequence.
	if snap.Empty() {
		return snapshot.Snapshot{}, ErrNoDataAvailable
	}
	return snap, nil
}

// SetOverride commands the remote panel state. It does not poll;
// callers request a fresh poll afterwards.
// A nil currentLimit leaves the limit unspecified.
func (s *Session) SetOverride(ctx context.Context, m mode.Mode, currentLimit *float64) error {
	if !m.Valid() {
		return fmt.Errorf("session: invalid mode %d", uint8(m))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}

	state := mode.EncodeCommand(m)
	send := func() error { return s.tr.SendStateRequest(state, currentLimit) }
	if _, err := s.exchange(ctx, "state", send, kindIs(snapshot.KindConfig)); err != nil {
		return err
	}

	entry := s.log.WithField("mode", m.String())
	if currentLimit != nil {
		entry = entry.WithField("current_limit", *currentLimit)
	}
	entry.Info("remote panel state set")
	return nil
}

// Standby queues the standby intent for the start of the next poll.
// The protocol has no out-of-band channel to apply it immediately.
func (s *Session) Standby(enabled bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.standby = &enabled
}

// State reports the current health.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	switch {
	case s.fault != nil:
		return StateFaulted
	case s.idle:
		return StateIdle
	default:
		return StateActive
	}
}

// LastFault returns the latched fault, or nil.
func (s *Session) LastFault() *CommunicationFault {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.fault
}

// Close releases the transport. The session is unusable afterwards.
func (s *Session) Close() error {
	s.stateMu.Lock()
	if s.closed {
		s.stateMu.Unlock()
		return nil
	}
	s.closed = true
	s.stateMu.Unlock()

	return s.tr.Close()
}

// ---- internal ----

// ready applies events that arrived between exchanges, then checks the latch.
// No IO happens when it returns an error.
func (s *Session) ready() error {
	s.drain()

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	switch {
	case s.closed:
		return ErrClosed
	case s.fault != nil:
		return s.fault
	case s.idle:
		return ErrDeviceAsleep
	}
	return nil
}

func (s *Session) drain() {
	for {
		select {
		case ev, ok := <-s.tr.Events():
			if !ok {
				s.latch(FaultOther, "transport event stream closed")
				return
			}
			r, _ := s.handle(ev)
			s.dropIfOrphan(r)
		default:
			return
		}
	}
}

// exchange writes one request and suspends until a matching reply,
// an idle notice, a fault, or cancellation.
func (s *Session) exchange(
	ctx context.Context,
	step string,
	send func() error,
	match func(snapshot.Reading) bool,
) (snapshot.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCancelled, step, err)
	}

	if err := s.settle(ctx, step); err != nil {
		return nil, err
	}

	if err := send(); err != nil {
		return nil, s.latch(FaultOther, fmt.Sprintf("%s request: %v", step, err))
	}

	for {
		select {
		case <-ctx.Done():
			s.log.WithField("step", step).Debug("cycle cancelled")
			s.orphan, s.orphanStep = match, step
			return nil, fmt.Errorf("%w: %s: %w", ErrCancelled, step, ctx.Err())

		case ev, ok := <-s.tr.Events():
			if !ok {
				return nil, s.latch(FaultOther, "transport event stream closed")
			}
			r, err := s.handle(ev)
			if err != nil {
				return nil, err
			}
			if r != nil && match(r) {
				return r, nil
			}
			if r != nil && r.Kind() != snapshot.KindVersion {
				s.log.WithField("step", step).WithField("kind", r.Kind().String()).Debug("unmatched reply dropped")
			}
		}
	}
}

// settle consumes the late reply to a cancelled request before a new one is sent,
// so it cannot be taken for the new request's reply.
// Gives up after orphanWait.
func (s *Session) settle(ctx context.Context, step string) error {
	if s.orphan == nil {
		return nil
	}

	timer := time.NewTimer(s.orphanWait)
	defer timer.Stop()

	for s.orphan != nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrCancelled, step, ctx.Err())

		case <-timer.C:
			s.log.WithField("step", s.orphanStep).Debug("late reply never arrived")
			s.orphan = nil

		case ev, ok := <-s.tr.Events():
			if !ok {
				s.orphan = nil
				return s.latch(FaultOther, "transport event stream closed")
			}
			r, err := s.handle(ev)
			if err != nil {
				s.orphan = nil
				return err
			}
			s.dropIfOrphan(r)
		}
	}
	return nil
}

func (s *Session) dropIfOrphan(r snapshot.Reading) {
	if r == nil || s.orphan == nil || !s.orphan(r) {
		return
	}
	s.log.WithField("step", s.orphanStep).Debug("late reply discarded")
	s.orphan = nil
}

// handle applies one event to session state.
// Returns the reading for frames and a classified error for idle/fault.
func (s *Session) handle(ev Event) (snapshot.Reading, error) {
	switch ev.Kind {
	case EventFrame:
		if ev.Reading == nil {
			return nil, nil
		}
		s.stateMu.Lock()
		if s.idle {
			s.log.Info("device active")
		}
		s.idle = false
		if v, ok := ev.Reading.(*snapshot.VersionReading); ok {
			s.version = v
		}
		s.stateMu.Unlock()
		return ev.Reading, nil

	case EventIdle:
		s.stateMu.Lock()
		wasIdle := s.idle
		s.idle = true
		s.stateMu.Unlock()
		if !wasIdle {
			s.log.Debug("device idle")
		}
		return nil, ErrDeviceAsleep

	case EventFault:
		return nil, s.latch(ev.Fault, ev.Detail)
	}

	return nil, nil
}

// latch records a fault. The most recent detail wins.
func (s *Session) latch(kind FaultKind, detail string) *CommunicationFault {
	f := &CommunicationFault{Kind: kind, Detail: detail}

	s.stateMu.Lock()
	s.fault = f
	s.stateMu.Unlock()

	if kind == FaultException {
		s.log.WithField("detail", detail).Error("unhandled exception in transport")
	} else {
		s.log.WithField("detail", detail).Error("communication fault")
	}
	return f
}

func (s *Session) takeStandby() (snapshot.InterfaceFlags, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.standby == nil {
		return 0, false
	}
	flags := snapshot.FlagPanelDetect
	if *s.standby {
		flags |= snapshot.FlagStandby
	}
	s.standby = nil
	return flags, true
}

// restoreStandby re-queues an intent that was not delivered,
// unless a newer one was queued meanwhile.
func (s *Session) restoreStandby(flags snapshot.InterfaceFlags) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.standby == nil {
		enabled := flags&snapshot.FlagStandby != 0
		s.standby = &enabled
	}
}

func kindIs(k snapshot.Kind) func(snapshot.Reading) bool {
	return func(r snapshot.Reading) bool { return r.Kind() == k }
}

func acPhaseIs(phase int) func(snapshot.Reading) bool {
	return func(r snapshot.Reading) bool {
		ac, ok := r.(*snapshot.ACReading)
		return ok && ac.Phase == phase
	}
}
