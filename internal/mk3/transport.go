// internal/mk3/transport.go
package mk3

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/serial"
	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mk3-bridge/internal/mode"
	"github.com/tamzrod/mk3-bridge/internal/session"
	"github.com/tamzrod/mk3-bridge/internal/snapshot"
)

// Config is minimal transport config.
type Config struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration // serial read slice; bounds idle detection latency
	IdleTimeout time.Duration // silence before one idle notice is emitted
	Logger      logrus.FieldLogger
}

// Transport implements session.Transport over a serial port.
// Writes are serialized; one reader goroutine owns decoding and emits events.
type Transport struct {
	port   io.ReadWriteCloser
	cfg    Config
	log    logrus.FieldLogger
	events chan session.Event
	decode func(Frame) (snapshot.Reading, error)

	wmu  sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Open opens the serial port and starts the reader.
func Open(cfg Config) (*Transport, error) {
	if cfg.Port == "" {
		return nil, errors.New("mk3: port required")
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 2400
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 250 * time.Millisecond
	}

	p, err := serial.Open(&serial.Config{
		Address:  cfg.Port,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("mk3: open %s: %w", cfg.Port, err)
	}

	return New(p, cfg), nil
}

// New starts a transport over an already open port. The transport owns it.
func New(port io.ReadWriteCloser, cfg Config) *Transport {
	return newTransport(port, cfg, decodeFrame)
}

func newTransport(port io.ReadWriteCloser, cfg Config, decode func(Frame) (snapshot.Reading, error)) *Transport {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	t := &Transport{
		port:   port,
		cfg:    cfg,
		log:    log,
		events: make(chan session.Event, 64),
		decode: decode,
		done:   make(chan struct{}),
	}

	t.wg.Add(1)
	go t.readLoop()
	return t
}

// ---- session.Transport ----

func (t *Transport) SendLEDRequest() error { return t.write(ledRequest()) }

func (t *Transport) SendDCRequest() error { return t.write(dcRequest()) }

func (t *Transport) SendACRequest(phase int) error { return t.write(acRequest(phase)) }

func (t *Transport) SendConfigRequest() error { return t.write(configRequest()) }

func (t *Transport) SendStateRequest(state mode.SwitchState, currentLimit *float64) error {
	return t.write(stateRequest(state, currentLimit))
}

func (t *Transport) SendInterfaceRequest(flags snapshot.InterfaceFlags) error {
	return t.write(interfaceRequest(flags))
}

func (t *Transport) Events() <-chan session.Event { return t.events }

// Close stops the reader and closes the port. Events is closed afterwards.
func (t *Transport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		err = t.port.Close()
		t.wg.Wait()
		close(t.events)
	})
	return err
}

// ---- internal ----

func (t *Transport) write(frame []byte, err error) error {
	if err != nil {
		return err
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()

	select {
	case <-t.done:
		return errors.New("mk3: transport closed")
	default:
	}

	for len(frame) > 0 {
		n, err := t.port.Write(frame)
		if err != nil {
			return err
		}
		frame = frame[n:]
	}
	return nil
}

func (t *Transport) readLoop() {
	defer t.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			t.emit(session.FaultEvent(session.FaultException, fmt.Sprint(r)))
		}
	}()

	var dec Decoder
	buf := make([]byte, 256)
	lastRx := time.Now()
	idleSent := false

	for {
		n, err := t.port.Read(buf)

		select {
		case <-t.done:
			return
		default:
		}

		if n > 0 {
			lastRx = time.Now()
			for _, f := range dec.Feed(buf[:n]) {
				r, derr := t.decode(f)
				if derr != nil {
					t.log.WithError(derr).Debug("malformed frame dropped")
					continue
				}
				if r == nil {
					continue
				}
				idleSent = false
				if !t.emit(session.FrameEvent(r)) {
					return
				}
			}
		}

		if err != nil {
			if !isTimeout(err) {
				t.emit(session.FaultEvent(session.FaultOther, fmt.Sprintf("read: %v", err)))
				return
			}
		}

		if !idleSent && time.Since(lastRx) >= t.cfg.IdleTimeout {
			idleSent = true
			if !t.emit(session.IdleEvent()) {
				return
			}
		}
	}
}

// emit blocks until the session takes the event or the transport closes.
func (t *Transport) emit(ev session.Event) bool {
	select {
	case t.events <- ev:
		return true
	case <-t.done:
		return false
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, serial.ErrTimeout) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
