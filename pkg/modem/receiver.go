package modem

import (
	"errors"
	"log/slog"

	"AirNFC/pkg/ofdm"
	"AirNFC/pkg/ring"
)

const (
	// Guard keeps the receiver from committing to a correlation peak this
	// close to the end of the search range: the real peak may still be
	// arriving.
	Guard = 96

	maxWindow = ofdm.SymbolLength + 2*ofdm.BlockSize
)

// Receiver turns the port's ring buffer into frames. It keeps a sliding
// window over the newest samples and looks for one symbol at a time.
type Receiver struct {
	Decoder *ofdm.Decoder
	Gate    *PowerMonitor

	// OnFrame gets every frame that passed the CRC and the sample time of
	// the first sample of its symbol.
	OnFrame func(f Frame, at int64)

	log    *slog.Logger
	window []float32
	base   uint64 // ring index of window[0]

	symbols int
	corrupt int
}

func NewReceiver(minConfidence float64, onFrame func(Frame, int64)) *Receiver {
	dec := ofdm.NewDecoder()
	if minConfidence > 0 {
		dec.MinConfidence = minConfidence
	}
	return &Receiver{
		Decoder: dec,
		Gate:    &PowerMonitor{Threshold: DefaultPowerThreshold, Hold: maxWindow},
		OnFrame: onFrame,
		window:  make([]float32, 0, maxWindow),
	}
}

// Receive consumes everything buffered in buf.
func (r *Receiver) Receive(buf *ring.Buffer) {
	for {
		if r.base+uint64(len(r.window)) != buf.ReadIndex() {
			// first call, or the ring overflowed and samples were lost
			r.window = r.window[:0]
			r.base = buf.ReadIndex()
			r.Gate.Reset()
		}

		filled := len(r.window)
		n := buf.Read(r.window[filled:maxWindow])
		if n == 0 {
			return
		}
		r.window = r.window[:filled+n]
		r.Gate.Observe(r.window[filled:])
		r.scan()
	}
}

func (r *Receiver) scan() {
	if len(r.window) < ofdm.SymbolLength {
		return
	}
	if !r.Gate.Active() {
		r.keep(ofdm.SymbolLength - 1)
		return
	}

	res, err := r.Decoder.Decode(r.window)
	if err != nil {
		if !errors.Is(err, ofdm.ErrNoSymbol) && r.log != nil {
			r.log.Debug("decode failed", "error", err)
		}
		r.keep(ofdm.SymbolLength - 1)
		return
	}

	candidates := len(r.window) - ofdm.SymbolLength + 1
	if res.Offset >= candidates-Guard {
		if len(r.window) < maxWindow {
			return
		}
		r.drop(res.Offset - Guard)
		return
	}

	at := int64(r.base) + int64(res.Offset)
	r.drop(res.Offset + ofdm.SymbolLength - ofdm.FadeLength)
	r.symbols++

	f, err := UnmarshalFrame(res.Vector)
	if err != nil {
		r.corrupt++
		if r.log != nil {
			r.log.Debug("dropped frame", "error", err, "confidence", res.Confidence)
		}
		return
	}
	if r.OnFrame != nil {
		r.OnFrame(f, at)
	}
}

// keep drops all but the newest n samples of the window.
func (r *Receiver) keep(n int) {
	if len(r.window) > n {
		r.drop(len(r.window) - n)
	}
}

func (r *Receiver) drop(n int) {
	n = min(max(n, 0), len(r.window))
	r.window = r.window[:copy(r.window, r.window[n:])]
	r.base += uint64(n)
}

// Stats reports decoded symbols and how many of them failed the frame check.
func (r *Receiver) Stats() (symbols, corrupt int) {
	return r.symbols, r.corrupt
}

func (r *Receiver) SetLogger(l *slog.Logger) {
	r.log = l
}
