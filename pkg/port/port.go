// Package port shares one duplex audio device between the modems of an
// AirNFC session.
//
// Every device callback appends the captured block to a ring buffer, hands
// the ring to the attached modem and then plays whatever was scheduled for
// that period. Time is counted in samples and equals the ring's write index,
// so it keeps growing across restarts.
package port

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"AirNFC/internal/log"
	"AirNFC/pkg/airerr"
	"AirNFC/pkg/async"
	"AirNFC/pkg/device"
	"AirNFC/pkg/ofdm"
	"AirNFC/pkg/ring"
)

var (
	ErrScheduleOutOfRange = errors.New("port: start time outside the schedule horizon")
	ErrNotInCallback      = errors.New("port: output scheduled outside the capture callback")
)

const (
	BlockSize       = ofdm.BlockSize
	ScheduleHorizon = ofdm.SampleRate

	DefaultMaxOverruns = 16

	blockPeriod = time.Duration(BlockSize) * time.Second / ofdm.SampleRate
)

// Modem consumes captured audio. DidReceive runs on the device goroutine
// and must not block; sampleTime is the time of the first sample of the
// newest block in buf.
type Modem interface {
	DidReceive(p *Port, buf *ring.Buffer, sampleTime int64)
}

// Listener is notified on the owner executor.
type Listener interface {
	PortDidFail(p *Port, err error)
}

type Config struct {
	Device   device.Device
	Executor async.Executor

	// MaxOverruns consecutive callbacks slower than the block period fail
	// the port. Zero means DefaultMaxOverruns, negative disables the check.
	MaxOverruns int

	RingCapacity int
}

type Stats struct {
	Callbacks uint64
	Overruns  uint64
	Lost      uint64
	Scheduled int
	Played    uint64
}

type block struct {
	start   int64
	samples []float32
}

type modemBox struct{ Modem }

type Port struct {
	dev         device.Device
	exec        async.Executor
	maxOverruns int
	log         *slog.Logger

	// owner
	running  bool
	listener Listener

	ring       *ring.Buffer
	modem      atomic.Pointer[modemBox]
	generation atomic.Uint64
	inCallback atomic.Bool
	failed     atomic.Bool

	// mu guards now and scheduled: ScheduleOutput may come from any
	// goroutine while a callback is in flight.
	mu        sync.Mutex
	now       int64
	scheduled []block

	// device goroutine
	overruns int

	callbacks     atomic.Uint64
	totalOverruns atomic.Uint64
	played        atomic.Uint64
	pending       atomic.Int64
}

func New(cfg Config) *Port {
	maxOverruns := cfg.MaxOverruns
	if maxOverruns == 0 {
		maxOverruns = DefaultMaxOverruns
	}
	return &Port{
		dev:         cfg.Device,
		exec:        cfg.Executor,
		maxOverruns: maxOverruns,
		log:         log.Component("port"),
		ring:        ring.New(cfg.RingCapacity),
	}
}

func (p *Port) SetListener(l Listener) {
	p.listener = l
}

// SetModem attaches m; the next callback uses it. nil detaches.
func (p *Port) SetModem(m Modem) {
	if m == nil {
		p.modem.Store(nil)
		return
	}
	p.modem.Store(&modemBox{m})
}

func (p *Port) Modem() Modem {
	if b := p.modem.Load(); b != nil {
		return b.Modem
	}
	return nil
}

func (p *Port) Running() bool {
	return p.running
}

// Start opens the device. Starting a running port is a no-op.
func (p *Port) Start() error {
	if p.running {
		return nil
	}

	p.generation.Add(1)
	p.failed.Store(false)
	p.overruns = 0
	p.mu.Lock()
	p.scheduled = p.scheduled[:0]
	p.mu.Unlock()
	p.pending.Store(0)
	p.ring.Reset()

	if err := p.dev.Start(p.callback); err != nil {
		p.log.Warn("failed to start device", "error", err)
		return airerr.UnableToStart(err)
	}
	p.running = true
	p.log.Info("started")
	return nil
}

// Stop closes the device and drops everything still scheduled. When it
// returns neither the modem nor the listener will be called again.
func (p *Port) Stop() {
	if !p.running {
		return
	}
	p.running = false
	p.generation.Add(1)
	p.dev.Stop()

	p.mu.Lock()
	p.scheduled = p.scheduled[:0]
	p.mu.Unlock()
	p.pending.Store(0)
	p.ring.Reset()
	p.log.Info("stopped", "callbacks", p.callbacks.Load(), "lost", p.ring.Lost())
}

func (p *Port) Stats() Stats {
	return Stats{
		Callbacks: p.callbacks.Load(),
		Overruns:  p.totalOverruns.Load(),
		Lost:      p.ring.Lost(),
		Scheduled: int(p.pending.Load()),
		Played:    p.played.Load(),
	}
}

// ScheduleOutput plays a copy of samples starting at sample time start, which
// must lie within one second of the current block. It only succeeds while
// Modem.DidReceive is running; a helper goroutine the modem waits on may call
// it too.
func (p *Port) ScheduleOutput(samples []float32, start int64) error {
	if !p.inCallback.Load() {
		return ErrNotInCallback
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if start < p.now || start > p.now+ScheduleHorizon {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrScheduleOutOfRange, start, p.now, p.now+ScheduleHorizon)
	}
	if len(samples) == 0 {
		return nil
	}

	b := block{start: start, samples: append([]float32(nil), samples...)}
	i := sort.Search(len(p.scheduled), func(i int) bool {
		return p.scheduled[i].start > start
	})
	p.scheduled = append(p.scheduled, block{})
	copy(p.scheduled[i+1:], p.scheduled[i:])
	p.scheduled[i] = b
	p.pending.Store(int64(len(p.scheduled)))
	return nil
}

func (p *Port) callback(in, out []float32) {
	begin := time.Now()
	p.callbacks.Add(1)

	now := int64(p.ring.WriteIndex())
	p.mu.Lock()
	p.now = now
	p.mu.Unlock()
	p.ring.Write(in)

	if !p.failed.Load() {
		if b := p.modem.Load(); b != nil {
			p.inCallback.Store(true)
			b.DidReceive(p, p.ring, now)
			p.inCallback.Store(false)
		}
		p.mu.Lock()
		p.mix(out, now)
		p.mu.Unlock()
	}

	if time.Since(begin) > blockPeriod {
		p.totalOverruns.Add(1)
		p.overruns++
		if p.maxOverruns > 0 && p.overruns >= p.maxOverruns && p.failed.CompareAndSwap(false, true) {
			p.notifyFailure(fmt.Errorf("%w: %d callbacks in a row exceeded %v", airerr.ErrInsufficientCPUTime, p.overruns, blockPeriod))
		}
	} else {
		p.overruns = 0
	}
}

// mix adds every scheduled block overlapping [now, now+len(out)) into out.
// The caller holds mu.
func (p *Port) mix(out []float32, now int64) {
	end := now + int64(len(out))
	kept := p.scheduled[:0]
	for _, b := range p.scheduled {
		if b.start >= end {
			kept = append(kept, b)
			continue
		}
		from := max(now, b.start)
		to := min(end, b.start+int64(len(b.samples)))
		for t := from; t < to; t++ {
			v := out[t-now] + b.samples[t-b.start]
			out[t-now] = min(max(v, -1), 1)
		}
		if to < b.start+int64(len(b.samples)) {
			kept = append(kept, b)
		} else {
			p.played.Add(1)
		}
	}
	clear(p.scheduled[len(kept):])
	p.scheduled = kept
	p.pending.Store(int64(len(kept)))
}

func (p *Port) notifyFailure(err error) {
	gen := p.generation.Load()
	p.exec.Post(func() {
		if gen != p.generation.Load() || !p.running {
			return
		}
		p.log.Warn("failed", "error", err)
		p.Stop()
		if p.listener != nil {
			p.listener.PortDidFail(p, err)
		}
	})
}
