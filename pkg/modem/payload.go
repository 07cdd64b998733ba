package modem

import (
	"errors"
	"log/slog"

	"golang.org/x/exp/rand"

	"AirNFC/internal/log"
	"AirNFC/pkg/ofdm"
	"AirNFC/pkg/port"
	"AirNFC/pkg/ring"
)

var ErrOutboxFull = errors.New("modem: too many writes pending")

const (
	DefaultOutboxSize = 16

	// A message waits a random number of slots and goes out only if the
	// channel is still quiet by then.
	backoffSlot  = 4 * ofdm.BlockSize
	backoffSlots = 16
	maxDeferrals = 8

	// reassembled messages larger than this are dropped
	DefaultMaxMessage = 64 << 10
)

type PayloadConfig struct {
	// Side and Replay come from the HandshakeResult.
	Side   bool
	Replay []Frame

	MinConfidence float64
	OutboxSize    int
	MaxMessage    int
	Seed          uint64
}

// Payload exchanges data messages once the shared secret is established.
// Write may be called from any goroutine; everything else runs on the device
// goroutine, including OnData.
type Payload struct {
	OnData func([]byte)

	side      Flags
	outbox    chan []byte
	log       *slog.Logger
	rx        *Receiver
	tx        *Transmitter
	assembler Reassembler
	responder responder
	replay    []Frame
	rng       *rand.Rand
	now       int64
	received  int

	next       []byte
	sendAt     int64
	contending bool
	deferrals  int
}

func NewPayload(cfg PayloadConfig) *Payload {
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = DefaultOutboxSize
	}
	if cfg.MaxMessage <= 0 {
		cfg.MaxMessage = DefaultMaxMessage
	}
	m := &Payload{
		outbox:    make(chan []byte, cfg.OutboxSize),
		log:       log.Component("payload"),
		tx:        NewTransmitter(),
		assembler: Reassembler{MaxSize: cfg.MaxMessage},
		replay:    cfg.Replay,
		rng:       newRand(cfg.Seed),
	}
	m.responder = responder{replay: cfg.Replay, rng: m.rng}
	if cfg.Side {
		m.side = FlagSide
	}
	m.rx = NewReceiver(cfg.MinConfidence, m.handle)
	m.rx.SetLogger(m.log)
	return m
}

// Write queues a copy of data. It never blocks.
func (m *Payload) Write(data []byte) error {
	select {
	case m.outbox <- append([]byte(nil), data...):
		return nil
	default:
		return ErrOutboxFull
	}
}

func (m *Payload) DidReceive(p *port.Port, buf *ring.Buffer, now int64) {
	m.now = now
	m.rx.Receive(buf)

	if m.tx.Pending() == 0 {
		m.contend(now)
	}
	if _, err := m.tx.Flush(p, now); err != nil {
		m.log.Debug("failed to schedule frame", "error", err)
	}
}

// contend sends the next message once it waited its backoff with the channel
// quiet. A busy channel, our own echo included, restarts the backoff, up to
// maxDeferrals times so a noisy room cannot hold a message forever.
func (m *Payload) contend(now int64) {
	if m.next == nil {
		select {
		case msg := <-m.outbox:
			m.next = msg
			m.contending = false
		default:
			return
		}
	}
	if !m.contending {
		m.contending = true
		m.deferrals = 0
		m.sendAt = now + m.backoff()
		return
	}
	if now < m.sendAt {
		return
	}
	if (m.rx.Gate.Active() || m.tx.Busy(now)) && m.deferrals < maxDeferrals {
		m.deferrals++
		m.sendAt = now + m.backoff()
		return
	}
	m.tx.Send(Fragment(FrameData, m.side, m.next)...)
	m.next = nil
	m.contending = false
}

func (m *Payload) backoff() int64 {
	return int64(m.rng.Intn(backoffSlots)) * backoffSlot
}

func (m *Payload) handle(f Frame, at int64) {
	switch f.Type {
	case FrameData:
		if f.Flags&FlagSide == m.side {
			return
		}
		msg, ok := m.assembler.Add(f)
		if !ok {
			return
		}
		m.received++
		m.log.Debug("received message", "bytes", len(msg))
		if m.OnData != nil {
			m.OnData(msg)
		}

	case FrameKey, FrameConfirm:
		if f.Flags.Has(FlagReplay) || isEcho(f, m.replay) {
			return
		}
		m.responder.poke(m.tx, m.now)
	}
}
