package ofdm

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

var (
	// ErrNoSymbol means the window holds nothing that looks like a symbol.
	// It is the normal answer for silence and noise.
	ErrNoSymbol = errors.New("ofdm: no symbol")

	ErrShortInput = errors.New("ofdm: input shorter than one symbol")
)

const (
	DefaultMinConfidence = 0.6

	// the transform window starts this far into the symbol, in the middle of
	// the prefix and clear of both fades
	windowOffset = PrefixLength / 2

	correlateFrom = FadeLength
	correlateTo   = PrefixLength - FadeLength

	silence = 1e-12
)

type Result struct {
	Vector Vector

	// Confidence is the normalised prefix autocorrelation in [0, 1].
	Confidence float64

	// Offset is the index of the first sample of the symbol in the window.
	// With fine timing it is the located start moved by Timing.
	Offset int

	// Timing is how many samples the located start lay behind the symbol,
	// as measured from the carriers.
	Timing float64
}

// Decoder recovers subcarrier vectors from captured audio. It is not safe for
// concurrent use; transform buffers are allocated once.
type Decoder struct {
	MinConfidence float64

	// FineTiming corrects residual delay and common phase from the carriers
	// themselves. It assumes a real-valued constellation (BPSK); carrier signs
	// survive as long as the channel turns the symbol by less than a quarter
	// turn.
	FineTiming bool

	fft   *fourier.FFT
	frame []float64
	coeff []complex128
	rho   []float64
}

func NewDecoder() *Decoder {
	return &Decoder{
		MinConfidence: DefaultMinConfidence,
		FineTiming:    true,
		fft:           fourier.NewFFT(BodyLength),
		frame:         make([]float64, BodyLength),
		coeff:         make([]complex128, BodyLength/2+1),
	}
}

// Locate finds the most likely symbol start in window. Candidates are the
// starts for which the whole symbol fits in the window. Only the part of the
// prefix between the fades is correlated with its copy at the end of the body,
// so a clean symbol scores 1 exactly at its first sample.
func (d *Decoder) Locate(window []float32) (start int, confidence float64, err error) {
	count := len(window) - SymbolLength + 1
	if count <= 0 {
		return 0, 0, ErrNoSymbol
	}
	if cap(d.rho) < count {
		d.rho = make([]float64, count)
	}
	rho := d.rho[:count]

	var p, e1, e2 float64
	for i := correlateFrom; i < correlateTo; i++ {
		a, b := float64(window[i]), float64(window[i+BodyLength])
		p += a * b
		e1 += a * a
		e2 += b * b
	}

	best := -1
	for s := 0; s < count; s++ {
		if s > 0 {
			a0, b0 := float64(window[s-1+correlateFrom]), float64(window[s-1+correlateFrom+BodyLength])
			a1, b1 := float64(window[s-1+correlateTo]), float64(window[s-1+correlateTo+BodyLength])
			p += a1*b1 - a0*b0
			e1 += a1*a1 - a0*a0
			e2 += b1*b1 - b0*b0
		}
		r := 0.0
		if e1 > silence && e2 > silence {
			r = p / math.Sqrt(e1*e2)
		}
		rho[s] = r
		if best < 0 || r > rho[best] {
			best = s
		}
	}

	peak := rho[best]
	if math.IsNaN(peak) || peak < d.MinConfidence {
		return 0, peak, ErrNoSymbol
	}
	return best, min(peak, 1), nil
}

// Decode locates a symbol in window and decodes it.
func (d *Decoder) Decode(window []float32) (Result, error) {
	start, confidence, err := d.Locate(window)
	if err != nil {
		return Result{Confidence: confidence}, err
	}
	res, err := d.DecodeAt(window, start)
	res.Confidence = confidence
	return res, err
}

// DecodeAt decodes the symbol whose first sample is at or near window[start];
// fine timing tolerates a start error of up to FadeLength samples.
func (d *Decoder) DecodeAt(window []float32, start int) (Result, error) {
	v, timing, err := d.decode(window, start, d.FineTiming)
	return Result{Vector: v, Offset: start - int(math.Round(timing)), Timing: timing}, err
}

// DecodeSymbol decodes one aligned symbol without any timing or phase
// correction, so arbitrary complex values survive the round trip.
func (d *Decoder) DecodeSymbol(symbol []float32) (Vector, error) {
	v, _, err := d.decode(symbol, 0, false)
	return v, err
}

func (d *Decoder) decode(window []float32, start int, fine bool) (Vector, float64, error) {
	if start < 0 || start+SymbolLength > len(window) {
		return nil, 0, fmt.Errorf("%w: %d samples from %d", ErrShortInput, len(window)-start, start)
	}

	from := start + windowOffset
	for i := range d.frame {
		d.frame[i] = float64(window[from+i])
	}
	d.fft.Coefficients(d.coeff, d.frame)

	v := NewVector()
	scale := 1 / (gain * BodyLength)
	for i := range v {
		k := FirstBin + i
		shift := cmplx.Rect(scale, 2*math.Pi*float64(k*windowOffset%BodyLength)/BodyLength)
		v[i] = d.coeff[k] * shift
	}

	if !fine {
		return v, 0, nil
	}
	return v, correctTiming(v), nil
}

// correctTiming estimates how far the assumed start lies behind the symbol
// from the phase step between adjacent carriers and removes the phase that
// delay puts on every carrier. Squaring the step folds the BPSK signs away;
// the carriers keep theirs. What remains is the channel's own phase, taken
// back to the nearer of the two BPSK branches.
func correctTiming(v Vector) float64 {
	var z complex128
	for i := 1; i < len(v); i++ {
		p := v[i] * cmplx.Conj(v[i-1])
		z += p * p
	}
	if z == 0 {
		return 0
	}
	delay := cmplx.Phase(z) * BodyLength / (4 * math.Pi)

	var c complex128
	for i := range v {
		k := float64(FirstBin + i)
		v[i] *= cmplx.Rect(1, -2*math.Pi*k*delay/BodyLength)
		c += v[i] * v[i]
	}
	if c != 0 {
		rot := cmplx.Rect(1, -cmplx.Phase(c)/2)
		for i := range v {
			v[i] *= rot
		}
	}
	return delay
}
