package modem

import (
	crand "crypto/rand"
	"encoding/binary"
	"log/slog"

	"golang.org/x/exp/rand"

	"AirNFC/internal/log"
	"AirNFC/pkg/ofdm"
	"AirNFC/pkg/port"
	"AirNFC/pkg/ring"
)

const (
	DefaultPilotInterval      = 4 // symbols
	DefaultRequiredDetections = 2

	maxPilotJitter = 2 // symbols
)

type DiscovererConfig struct {
	PilotInterval      int
	RequiredDetections int
	MinConfidence      float64
	Seed               uint64
}

// Discoverer announces this device with pilot frames and listens for the
// pilots of another one. Both ends run the same code; neither leads.
//
// OnDiscover runs once, on the device goroutine, when a peer is detected.
// Pilots continue after that, so a peer that is one detection behind still
// gets there; detach the discoverer to silence it.
type Discoverer struct {
	OnDiscover func(peer uint32)

	stationID uint32
	interval  int64
	required  int
	rng       *rand.Rand
	log       *slog.Logger

	rx        *Receiver
	tx        *Transmitter
	nextPilot int64
	started   bool

	peer       uint32
	detections int
	lastPilot  int64
	discovered bool
}

func NewDiscoverer(cfg DiscovererConfig) *Discoverer {
	if cfg.PilotInterval <= 0 {
		cfg.PilotInterval = DefaultPilotInterval
	}
	if cfg.RequiredDetections <= 0 {
		cfg.RequiredDetections = DefaultRequiredDetections
	}
	d := &Discoverer{
		interval: int64(cfg.PilotInterval) * ofdm.SymbolLength,
		required: cfg.RequiredDetections,
		rng:      newRand(cfg.Seed),
		tx:       NewTransmitter(),
	}
	for d.stationID == 0 {
		d.stationID = d.rng.Uint32()
	}
	d.log = log.Component("discoverer").With("station", d.stationID)
	d.rx = NewReceiver(cfg.MinConfidence, d.handle)
	d.rx.SetLogger(d.log)
	return d
}

func (d *Discoverer) StationID() uint32 {
	return d.stationID
}

// Discovered is only meaningful on the device goroutine, or after the port
// stopped.
func (d *Discoverer) Discovered() bool {
	return d.discovered
}

func (d *Discoverer) DidReceive(p *port.Port, buf *ring.Buffer, now int64) {
	if !d.started {
		d.started = true
		d.nextPilot = now + d.jitter()
	}

	d.rx.Receive(buf)

	if d.tx.Pending() == 0 && now >= d.nextPilot {
		d.tx.Delay(now)
		d.tx.Send(d.pilot())
		d.nextPilot = max(d.tx.NextFree(), now) + d.interval + d.jitter()
	}
	if _, err := d.tx.Flush(p, now); err != nil {
		d.log.Debug("failed to schedule pilot", "error", err)
	}
}

func (d *Discoverer) jitter() int64 {
	return int64(d.rng.Intn(maxPilotJitter*ofdm.SymbolLength + 1))
}

func (d *Discoverer) pilot() Frame {
	id := make([]byte, 4)
	binary.BigEndian.PutUint32(id, d.stationID)
	return Frame{Type: FramePilot, Flags: FlagFirst | FlagLast, Payload: id}
}

// maxPilotGap is the longest silence between two pilots of the same peer
// that still counts as consecutive: three pilot intervals with the largest
// jitter.
func (d *Discoverer) maxPilotGap() int64 {
	return 3 * (d.interval + maxPilotJitter*ofdm.SymbolLength + ofdm.SymbolLength)
}

func (d *Discoverer) handle(f Frame, at int64) {
	if d.discovered {
		return
	}

	switch f.Type {
	case FramePilot:
		if len(f.Payload) != 4 {
			return
		}
		id := binary.BigEndian.Uint32(f.Payload)
		if id == d.stationID {
			return
		}
		if id == d.peer && at-d.lastPilot <= d.maxPilotGap() {
			d.detections++
		} else {
			d.peer = id
			d.detections = 1
		}
		d.lastPilot = at
		d.log.Debug("heard pilot", "peer", id, "detections", d.detections)
		if d.detections >= d.required {
			d.discover()
		}

	case FrameKey:
		// the peer already discovered us and started the handshake
		d.log.Debug("heard key frame before discovery")
		d.discover()
	}
}

func (d *Discoverer) discover() {
	d.discovered = true
	d.log.Info("discovered peer", "peer", d.peer)
	if d.OnDiscover != nil {
		d.OnDiscover(d.peer)
	}
}

// newRand seeds from the system entropy source when seed is zero, so two
// devices never pick the same station id by default.
func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		var b [8]byte
		if _, err := crand.Read(b[:]); err == nil {
			seed = binary.LittleEndian.Uint64(b[:])
		}
	}
	src := &rand.PCGSource{}
	src.Seed(seed)
	return rand.New(src)
}
