// Package engine finds another AirNFC device over the air and negotiates a
// shared secret with it.
//
// The engine drives one port through two modems: a Discoverer until a peer
// answers, then a Handshake. Everything observable happens on the owner
// executor; the modems call back on the device goroutine and the engine
// posts those events over, dropping the ones that belong to an attempt that
// already ended.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"AirNFC/internal/log"
	"AirNFC/pkg/airerr"
	"AirNFC/pkg/async"
	"AirNFC/pkg/keyagree"
	"AirNFC/pkg/modem"
	"AirNFC/pkg/ofdm"
	"AirNFC/pkg/port"
	"AirNFC/pkg/session"
)

var ErrNegotiationTimeout = errors.New("engine: negotiation timed out")

const DefaultNegotiationTimeout = 20 * time.Second

type State int

const (
	Inactive State = iota
	LookingForOtherDevice
	NegotiatingSharedSecret
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "Inactive"
	case LookingForOtherDevice:
		return "LookingForOtherDevice"
	case NegotiatingSharedSecret:
		return "NegotiatingSharedSecret"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Listener is notified on the owner executor.
type Listener interface {
	EngineDidUpdateProgress(progress float64)

	// EngineDidConnect hands over a fresh copy of the secret. The port keeps
	// running with the handshake attached; see Engine.Port.
	EngineDidConnect(secret []byte)

	// EngineDidFail is called at most once per attempt, after the port was
	// stopped.
	EngineDidFail(err error)
}

type Config struct {
	Port     *port.Port
	Executor async.Executor

	// Session, when set, is watched for interruptions while an attempt is
	// running. Starting and stopping it is up to the caller.
	Session session.Session

	// KeyAgreement defaults to keyagree.DefaultFactory.
	KeyAgreement keyagree.Factory

	Discovery     modem.DiscovererConfig
	MinConfidence float64

	// NegotiationTimeout defaults to DefaultNegotiationTimeout; negative
	// waits forever.
	NegotiationTimeout time.Duration

	// Seed makes the modems' random choices reproducible; 0 draws one.
	Seed uint64
}

type Engine struct {
	cfg  Config
	port *port.Port
	exec async.Executor
	log  *slog.Logger

	state      State
	progress   float64
	generation uint64
	listener   Listener

	agreement  keyagree.Agreement
	discoverer *modem.Discoverer
	handshake  *modem.Handshake
	result     modem.HandshakeResult
}

func New(cfg Config) *Engine {
	if cfg.KeyAgreement == nil {
		cfg.KeyAgreement = keyagree.DefaultFactory
	}
	if cfg.NegotiationTimeout == 0 {
		cfg.NegotiationTimeout = DefaultNegotiationTimeout
	}
	if cfg.Discovery.MinConfidence == 0 {
		cfg.Discovery.MinConfidence = cfg.MinConfidence
	}
	e := &Engine{
		cfg:  cfg,
		port: cfg.Port,
		exec: cfg.Executor,
		log:  log.Component("engine"),
	}
	if cfg.Session != nil {
		cfg.Session.SetListener(e)
	}
	return e
}

func (e *Engine) SetListener(l Listener) {
	e.listener = l
}

func (e *Engine) State() State {
	return e.state
}

// Progress of the current or last negotiation, in [0, 1].
func (e *Engine) Progress() float64 {
	return e.progress
}

func (e *Engine) Port() *port.Port {
	return e.port
}

// Result of the last successful negotiation. Secret is a copy.
func (e *Engine) Result() modem.HandshakeResult {
	r := e.result
	r.Secret = append([]byte(nil), r.Secret...)
	return r
}

// Start begins looking for another device. It is a no-op unless the engine
// is Inactive. On error the engine stays Inactive and the error wraps
// airerr.ErrUnableToStart.
func (e *Engine) Start() error {
	if e.state != Inactive {
		return nil
	}

	agreement, err := e.cfg.KeyAgreement()
	if err != nil {
		return airerr.UnableToStart(fmt.Errorf("engine: key agreement: %w", err))
	}

	e.generation++
	gen := e.generation
	e.agreement = agreement
	e.progress = 0
	e.result = modem.HandshakeResult{}
	e.handshake = nil

	dcfg := e.cfg.Discovery
	dcfg.Seed = e.seed(0)
	e.discoverer = modem.NewDiscoverer(dcfg)
	e.discoverer.OnDiscover = func(peer uint32) {
		e.post(gen, func() { e.discovered(peer) })
	}

	e.port.SetListener(e)
	e.port.SetModem(e.discoverer)
	if err := e.port.Start(); err != nil {
		e.generation++
		e.port.SetModem(nil)
		e.log.Warn("failed to start", "error", err)
		return err
	}

	e.state = LookingForOtherDevice
	e.log.Info("looking for other device", "station", e.discoverer.StationID())
	return nil
}

// Stop abandons the current attempt and stops the port. It is safe in any
// state; no notification follows. A port handed over by EngineDidConnect is
// left alone.
func (e *Engine) Stop() {
	e.generation++
	if e.state == Inactive {
		return
	}
	e.teardown()
	e.log.Info("stopped")
}

// PortDidFail implements port.Listener.
func (e *Engine) PortDidFail(p *port.Port, err error) {
	if p != e.port || e.state == Inactive {
		return
	}
	e.fail(err)
}

// SessionWasInterrupted implements session.Listener.
func (e *Engine) SessionWasInterrupted() {
	if e.state == Inactive {
		return
	}
	e.fail(airerr.ErrInterruption)
}

func (e *Engine) post(gen uint64, f func()) {
	e.exec.Post(func() {
		if gen != e.generation {
			return
		}
		f()
	})
}

func (e *Engine) seed(offset uint64) uint64 {
	if e.cfg.Seed == 0 {
		return 0
	}
	return e.cfg.Seed + offset
}

func (e *Engine) discovered(peer uint32) {
	if e.state != LookingForOtherDevice {
		return
	}
	gen := e.generation

	var timeout int64
	if e.cfg.NegotiationTimeout > 0 {
		timeout = int64(e.cfg.NegotiationTimeout.Seconds() * ofdm.SampleRate)
	}
	h := modem.NewHandshake(modem.HandshakeConfig{
		Agreement:     e.agreement,
		MinConfidence: e.cfg.MinConfidence,
		Timeout:       timeout,
		Seed:          e.seed(1),
	})
	h.OnProgress = func(p float64) {
		e.post(gen, func() { e.updateProgress(p) })
	}
	h.OnDone = func(r modem.HandshakeResult) {
		e.post(gen, func() { e.connected(r) })
	}
	h.OnTimeout = func() {
		e.post(gen, func() {
			e.fail(airerr.UnableToStart(ErrNegotiationTimeout))
		})
	}

	e.handshake = h
	e.state = NegotiatingSharedSecret
	e.port.SetModem(h)
	e.log.Info("negotiating shared secret", "peer", peer)

	e.progress = modem.ProgressStarted
	if e.listener != nil {
		e.listener.EngineDidUpdateProgress(e.progress)
	}
}

func (e *Engine) updateProgress(p float64) {
	if e.state != NegotiatingSharedSecret || p <= e.progress {
		return
	}
	e.progress = p
	if e.listener != nil {
		e.listener.EngineDidUpdateProgress(p)
	}
}

func (e *Engine) connected(r modem.HandshakeResult) {
	if e.state != NegotiatingSharedSecret {
		return
	}
	e.updateProgress(modem.ProgressPeerConfirm)

	e.generation++
	e.result = r
	e.state = Inactive
	e.discoverer = nil
	e.log.Info("connected", "side", r.Side)
	if e.listener != nil {
		e.listener.EngineDidConnect(append([]byte(nil), r.Secret...))
	}
}

func (e *Engine) fail(err error) {
	e.generation++
	e.teardown()
	e.log.Warn("failed", "error", err, "kind", airerr.KindOf(err))
	if e.listener != nil {
		e.listener.EngineDidFail(err)
	}
}

func (e *Engine) teardown() {
	e.state = Inactive
	e.port.SetModem(nil)
	e.port.Stop()
	e.discoverer = nil
	e.handshake = nil
	e.agreement = nil
}

var (
	_ port.Listener    = (*Engine)(nil)
	_ session.Listener = (*Engine)(nil)
)
