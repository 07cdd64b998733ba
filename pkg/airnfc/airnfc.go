// Package airnfc connects two devices that are close to each other through
// sound: they find each other, agree on a shared secret and then exchange
// small messages, all over the speaker and the microphone.
//
// An AirNFC is owned by one executor. Connect, Write, Disconnect and the
// accessors must run on it, and the Listener is called on it.
package airnfc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"AirNFC/internal/log"
	"AirNFC/pkg/airerr"
	"AirNFC/pkg/async"
	"AirNFC/pkg/device"
	"AirNFC/pkg/engine"
	"AirNFC/pkg/keyagree"
	"AirNFC/pkg/modem"
	"AirNFC/pkg/port"
	"AirNFC/pkg/session"
)

var (
	ErrNotConnected  = errors.New("airnfc: not connected")
	ErrWriteTooLarge = errors.New("airnfc: write too large")
)

const DefaultMaxWriteSize = 4096

type State int

const (
	Disconnected State = iota
	LookingForOtherDevice
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case LookingForOtherDevice:
		return "LookingForOtherDevice"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Listener is called on the owner executor.
type Listener interface {
	DidUpdateConnectingProgress(progress float64)
	DidConnect()
	DidReceiveData(data []byte)

	// DidFail is called once per failed connection; err wraps one of the
	// airerr sentinels.
	DidFail(err error)
}

type Config struct {
	Device   device.Device
	Executor async.Executor

	// Session defaults to a session.Manager, interrupted by the device when
	// it is device.Interruptible.
	Session session.Session

	KeyAgreement       keyagree.Factory
	Discovery          modem.DiscovererConfig
	MinConfidence      float64
	NegotiationTimeout time.Duration
	MaxOverruns        int

	// MaxWriteSize defaults to DefaultMaxWriteSize.
	MaxWriteSize int
	OutboxSize   int

	Seed uint64
}

type AirNFC struct {
	exec    async.Executor
	port    *port.Port
	engine  *engine.Engine
	session session.Session
	log     *slog.Logger

	maxWrite   int
	outboxSize int
	minConf    float64
	seed       uint64

	state      State
	secret     []byte
	payload    *modem.Payload
	generation uint64
	sessionID  uuid.UUID
	listener   Listener
}

func New(cfg Config) *AirNFC {
	if cfg.MaxWriteSize <= 0 {
		cfg.MaxWriteSize = DefaultMaxWriteSize
	}
	sess := cfg.Session
	if sess == nil {
		m := session.NewManager(cfg.Executor, session.Hooks{})
		if d, ok := cfg.Device.(device.Interruptible); ok {
			d.SetInterruptHandler(m.Interrupt)
		}
		sess = m
	}

	p := port.New(port.Config{
		Device:      cfg.Device,
		Executor:    cfg.Executor,
		MaxOverruns: cfg.MaxOverruns,
	})
	a := &AirNFC{
		exec:       cfg.Executor,
		port:       p,
		session:    sess,
		log:        log.Component("airnfc"),
		maxWrite:   cfg.MaxWriteSize,
		outboxSize: cfg.OutboxSize,
		minConf:    cfg.MinConfidence,
		seed:       cfg.Seed,
	}
	a.engine = engine.New(engine.Config{
		Port:               p,
		Executor:           cfg.Executor,
		KeyAgreement:       cfg.KeyAgreement,
		Discovery:          cfg.Discovery,
		MinConfidence:      cfg.MinConfidence,
		NegotiationTimeout: cfg.NegotiationTimeout,
		Seed:               cfg.Seed,
	})
	a.engine.SetListener(a)
	sess.SetListener(a)
	return a
}

var (
	defaultOnce     sync.Once
	defaultInstance *AirNFC
	defaultExecutor *async.Serial
)

// Default returns a process-wide AirNFC on the default sound card, owned by
// its own serial executor. Run calls on it through Executor().Do.
func Default() *AirNFC {
	defaultOnce.Do(func() {
		defaultExecutor = async.NewSerial()
		defaultInstance = New(Config{
			Device:   &device.Malgo{},
			Executor: defaultExecutor,
		})
	})
	return defaultInstance
}

func (a *AirNFC) SetListener(l Listener) {
	a.listener = l
}

func (a *AirNFC) Executor() async.Executor {
	return a.exec
}

func (a *AirNFC) State() State {
	return a.state
}

// Port exposes the statistics of the underlying audio port.
func (a *AirNFC) Port() *port.Port {
	return a.port
}

// SessionID identifies the current or last connection attempt in the logs.
func (a *AirNFC) SessionID() uuid.UUID {
	return a.sessionID
}

// SharedSecret returns a copy of the secret while connected, nil otherwise.
func (a *AirNFC) SharedSecret() []byte {
	if a.state != Connected {
		return nil
	}
	return append([]byte(nil), a.secret...)
}

// Connect starts looking for another device. It is a no-op unless
// disconnected; errors wrap airerr.ErrUnableToStart.
func (a *AirNFC) Connect() error {
	if a.state != Disconnected {
		return nil
	}

	a.generation++
	a.sessionID = uuid.New()
	a.log = log.Component("airnfc").With("session", a.sessionID.String())

	if err := a.session.Start(); err != nil {
		a.log.Warn("failed to start session", "error", err)
		return err
	}
	if err := a.engine.Start(); err != nil {
		a.session.Stop()
		return err
	}
	a.state = LookingForOtherDevice
	a.log.Info("connecting")
	return nil
}

// Write sends data to the connected device. It never blocks; the message is
// queued and goes out within the next seconds.
func (a *AirNFC) Write(data []byte) error {
	if a.state != Connected {
		return ErrNotConnected
	}
	if len(data) > a.maxWrite {
		return fmt.Errorf("%w: %d bytes, at most %d", ErrWriteTooLarge, len(data), a.maxWrite)
	}
	if err := a.payload.Write(data); err != nil {
		return fmt.Errorf("airnfc: %w", err)
	}
	return nil
}

// Disconnect ends the connection or the attempt. It is safe in any state
// and nothing is notified afterwards.
func (a *AirNFC) Disconnect() {
	a.generation++
	if a.state == Disconnected {
		return
	}
	a.teardown()
	a.log.Info("disconnected")
}

// EngineDidUpdateProgress implements engine.Listener.
func (a *AirNFC) EngineDidUpdateProgress(p float64) {
	if a.state == LookingForOtherDevice {
		a.state = Connecting
	}
	if a.state != Connecting {
		return
	}
	if a.listener != nil {
		a.listener.DidUpdateConnectingProgress(p)
	}
}

// EngineDidConnect implements engine.Listener.
func (a *AirNFC) EngineDidConnect(secret []byte) {
	if a.state != Connecting {
		return
	}
	gen := a.generation
	result := a.engine.Result()

	payload := modem.NewPayload(modem.PayloadConfig{
		Side:          result.Side,
		Replay:        result.Replay,
		MinConfidence: a.minConf,
		OutboxSize:    a.outboxSize,
		Seed:          a.seed,
	})
	payload.OnData = func(data []byte) {
		a.exec.Post(func() {
			if gen != a.generation || a.state != Connected {
				return
			}
			if a.listener != nil {
				a.listener.DidReceiveData(data)
			}
		})
	}

	a.secret = secret
	a.payload = payload
	a.state = Connected
	a.port.SetListener(a)
	a.port.SetModem(payload)
	a.log.Info("connected")
	if a.listener != nil {
		a.listener.DidConnect()
	}
}

// EngineDidFail implements engine.Listener.
func (a *AirNFC) EngineDidFail(err error) {
	if a.state == Disconnected {
		return
	}
	a.fail(err)
}

// PortDidFail implements port.Listener; the port is ours once connected.
func (a *AirNFC) PortDidFail(p *port.Port, err error) {
	if a.state != Connected {
		return
	}
	a.fail(err)
}

// SessionWasInterrupted implements session.Listener.
func (a *AirNFC) SessionWasInterrupted() {
	if a.state == Disconnected {
		return
	}
	a.fail(airerr.ErrInterruption)
}

func (a *AirNFC) fail(err error) {
	a.generation++
	a.teardown()
	a.log.Warn("failed", "error", err, "kind", airerr.KindOf(err))
	if a.listener != nil {
		a.listener.DidFail(err)
	}
}

func (a *AirNFC) teardown() {
	a.engine.Stop()
	a.port.SetModem(nil)
	a.port.Stop()
	a.session.Stop()
	clear(a.secret)
	a.secret = nil
	a.payload = nil
	a.state = Disconnected
}

var (
	_ engine.Listener  = (*AirNFC)(nil)
	_ port.Listener    = (*AirNFC)(nil)
	_ session.Listener = (*AirNFC)(nil)
)
