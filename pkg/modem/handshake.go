package modem

import (
	"bytes"
	"log/slog"

	"golang.org/x/exp/rand"

	"AirNFC/internal/log"
	"AirNFC/pkg/keyagree"
	"AirNFC/pkg/ofdm"
	"AirNFC/pkg/port"
	"AirNFC/pkg/ring"
)

// Progress steps reported while negotiating.
const (
	ProgressStarted     = 0.0
	ProgressKeySent     = 0.25
	ProgressPeerKey     = 0.5
	ProgressConfirmSent = 0.75
	ProgressPeerConfirm = 1.0
)

const (
	minRoundGap = 2 // symbols
	maxRoundGap = 6 // symbols

	// confirmations heard before our secret is ready
	stashSize = 4
)

type HandshakeConfig struct {
	Agreement     keyagree.Agreement
	MinConfidence float64

	// Timeout in samples since the first callback; 0 disables it.
	Timeout int64
	Seed    uint64
}

type HandshakeResult struct {
	Secret []byte

	// Side is true on the device whose public message sorts first. Data
	// frames carry it in FlagSide.
	Side bool

	// Replay is what the device sends when the peer is still negotiating:
	// its key frames followed by its confirmation.
	Replay []Frame
}

// Handshake exchanges key agreement messages and confirmation tags in
// rounds separated by random gaps, until both directions are confirmed. It
// then keeps answering a peer that is still negotiating.
//
// The callbacks run on the device goroutine.
type Handshake struct {
	OnProgress func(float64)
	OnDone     func(HandshakeResult)
	OnTimeout  func()

	agreement keyagree.Agreement
	timeout   int64
	rng       *rand.Rand
	log       *slog.Logger

	rx *Receiver
	tx *Transmitter

	ownKey  []Frame
	peerKey collector
	peerPub []byte
	secret  []byte
	side    bool
	confirm Frame
	peerTag []byte
	stashed [][]byte

	started      bool
	start        int64
	now          int64
	nextRound    int64
	keyScheduled bool
	progress     float64
	done         bool
	failed       bool
	responder    responder
}

func NewHandshake(cfg HandshakeConfig) *Handshake {
	h := &Handshake{
		agreement: cfg.Agreement,
		timeout:   cfg.Timeout,
		rng:       newRand(cfg.Seed),
		log:       log.Component("handshake"),
		tx:        NewTransmitter(),
		ownKey:    Fragment(FrameKey, 0, cfg.Agreement.PublicMessage()),
		progress:  ProgressStarted,
	}
	h.rx = NewReceiver(cfg.MinConfidence, h.handle)
	h.rx.SetLogger(h.log)
	return h
}

// Progress is only meaningful on the device goroutine, or after the port
// stopped.
func (h *Handshake) Progress() float64 {
	return h.progress
}

func (h *Handshake) DidReceive(p *port.Port, buf *ring.Buffer, now int64) {
	if !h.started {
		h.started = true
		h.start = now
		h.nextRound = now
	}
	h.now = now

	h.rx.Receive(buf)
	if h.failed {
		return
	}

	if !h.done && h.timeout > 0 && now-h.start > h.timeout {
		h.failed = true
		h.tx.Reset()
		h.log.Warn("negotiation timed out", "progress", h.progress)
		if h.OnTimeout != nil {
			h.OnTimeout()
		}
		return
	}

	if !h.done && h.tx.Pending() == 0 && now >= h.nextRound {
		h.round(now)
	}
	if _, err := h.tx.Flush(p, now); err != nil {
		h.log.Debug("failed to schedule frame", "error", err)
	}
	if !h.keyScheduled && h.tx.Sent() >= len(h.ownKey) {
		h.keyScheduled = true
		h.advance(ProgressKeySent)
	}
}

func (h *Handshake) round(now int64) {
	frames := h.ownKey
	if h.secret != nil {
		frames = append(append([]Frame(nil), frames...), h.confirm)
	}
	start := max(h.tx.NextFree(), now)
	h.tx.Delay(start)
	h.tx.Send(frames...)
	h.nextRound = start + int64(len(frames))*ofdm.SymbolLength + roundGap(h.rng)
}

// roundGap is a random pause of minRoundGap to maxRoundGap symbols, not
// aligned to the symbol grid so two devices drift apart.
func roundGap(rng *rand.Rand) int64 {
	symbols := minRoundGap + rng.Intn(maxRoundGap-minRoundGap+1)
	return int64(symbols)*ofdm.SymbolLength + int64(rng.Intn(ofdm.SymbolLength))
}

func (h *Handshake) handle(f Frame, at int64) {
	if h.failed {
		return
	}
	switch f.Type {
	case FrameKey:
		if isEcho(f, h.ownKey) {
			return
		}
		if h.done {
			if !f.Flags.Has(FlagReplay) {
				h.responder.poke(h.tx, h.now)
			}
			return
		}
		if h.peerPub != nil {
			return
		}
		h.peerKey.add(f)
		if msg, ok := h.peerKey.message(); ok {
			h.accept(msg)
		}

	case FrameConfirm:
		if h.secret != nil && isEcho(f, []Frame{h.confirm}) {
			return
		}
		if h.done {
			if !f.Flags.Has(FlagReplay) {
				h.responder.poke(h.tx, h.now)
			}
			return
		}
		if h.secret == nil {
			if len(h.stashed) == stashSize {
				h.stashed = h.stashed[1:]
			}
			h.stashed = append(h.stashed, f.Payload)
			return
		}
		h.verify(f.Payload)
	}
}

func (h *Handshake) accept(peer []byte) {
	secret, err := h.agreement.Derive(peer)
	if err != nil {
		h.log.Debug("rejected peer key", "error", err)
		h.peerKey.reset()
		return
	}
	ownTag, err := h.agreement.ConfirmationTag(secret, true)
	if err == nil {
		h.peerTag, err = h.agreement.ConfirmationTag(secret, false)
	}
	if err != nil {
		h.log.Debug("failed to compute confirmation", "error", err)
		h.peerKey.reset()
		return
	}

	h.peerPub = peer
	h.advance(ProgressPeerKey)

	h.secret = secret
	h.side = bytes.Compare(h.agreement.PublicMessage(), peer) < 0
	h.confirm = Frame{Type: FrameConfirm, Flags: FlagFirst | FlagLast, Payload: ownTag}
	h.tx.Send(h.confirm)
	h.advance(ProgressConfirmSent)
	h.log.Debug("derived secret", "side", h.side)

	for _, tag := range h.stashed {
		if h.verify(tag) {
			break
		}
	}
	h.stashed = nil
}

func (h *Handshake) verify(tag []byte) bool {
	if !bytes.Equal(tag, h.peerTag) {
		return false
	}
	h.done = true
	h.advance(ProgressPeerConfirm)

	replay := replayFrames(append(append([]Frame(nil), h.ownKey...), h.confirm))
	h.responder = responder{replay: replay, rng: h.rng}
	h.log.Info("negotiated shared secret")
	if h.OnDone != nil {
		h.OnDone(HandshakeResult{
			Secret: append([]byte(nil), h.secret...),
			Side:   h.side,
			Replay: replay,
		})
	}
	return true
}

func (h *Handshake) advance(p float64) {
	if p <= h.progress {
		return
	}
	h.progress = p
	if h.OnProgress != nil {
		h.OnProgress(p)
	}
}

func replayFrames(frames []Frame) []Frame {
	for i := range frames {
		frames[i].Flags |= FlagReplay
	}
	return frames
}

// responder replays our handshake frames when the peer shows it is still
// negotiating, at most once per round.
type responder struct {
	replay []Frame
	next   int64
	rng    *rand.Rand
}

func (r *responder) poke(tx *Transmitter, now int64) {
	if len(r.replay) == 0 || tx.Pending() > 0 || now < r.next {
		return
	}
	start := max(tx.NextFree(), now)
	tx.Delay(start)
	tx.Send(r.replay...)
	r.next = start + int64(len(r.replay))*ofdm.SymbolLength
	if r.rng != nil {
		r.next += roundGap(r.rng)
	}
}
