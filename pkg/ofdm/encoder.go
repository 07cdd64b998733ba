package ofdm

import (
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

var ErrVectorLength = errors.New("ofdm: vector must hold exactly 100 values")

// gain keeps every sample within [-1, 1] as long as every |v_i| <= 1: the
// unnormalised inverse transform sums 2*Carriers unit terms at most.
const gain = 1.0 / (2 * Carriers)

// Encoder turns subcarrier vectors into symbols. It is not safe for concurrent
// use; the buffers are reused between calls.
type Encoder struct {
	fft   *fourier.FFT
	coeff []complex128
	body  []float64
}

func NewEncoder() *Encoder {
	return &Encoder{
		fft:   fourier.NewFFT(BodyLength),
		coeff: make([]complex128, BodyLength/2+1),
		body:  make([]float64, BodyLength),
	}
}

// Encode returns a fresh SymbolLength-sample symbol carrying v.
func (e *Encoder) Encode(v Vector) ([]float32, error) {
	symbol := make([]float32, SymbolLength)
	if err := e.EncodeInto(symbol, v); err != nil {
		return nil, err
	}
	return symbol, nil
}

// EncodeInto writes the symbol carrying v into dst[:SymbolLength].
func (e *Encoder) EncodeInto(dst []float32, v Vector) error {
	if len(v) != Carriers {
		return fmt.Errorf("%w: got %d", ErrVectorLength, len(v))
	}
	if len(dst) < SymbolLength {
		return fmt.Errorf("ofdm: destination holds %d samples, need %d", len(dst), SymbolLength)
	}

	clear(e.coeff)
	copy(e.coeff[FirstBin:LastBin+1], v)
	e.fft.Sequence(e.body, e.coeff)

	for i, x := range e.body {
		dst[PrefixLength+i] = float32(x * gain)
	}
	copy(dst[:PrefixLength], dst[BodyLength:SymbolLength])
	applyFade(dst[:SymbolLength])
	return nil
}

var encoders = sync.Pool{
	New: func() any { return NewEncoder() },
}

// Encode is a convenience wrapper around a pooled Encoder.
func Encode(v Vector) ([]float32, error) {
	e := encoders.Get().(*Encoder)
	defer encoders.Put(e)
	return e.Encode(v)
}
