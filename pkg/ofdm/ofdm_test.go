package ofdm

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/dsp/fourier"
)

func randomVector(rng *rand.Rand) Vector {
	v := NewVector()
	for i := range v {
		v[i] = cmplx.Rect(rng.Float64(), 2*math.Pi*rng.Float64())
	}
	return v
}

func randomBits(rng *rand.Rand, n int) []bool {
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = rng.Intn(2) == 1
	}
	return bits
}

func newRand(seed uint64) *rand.Rand {
	src := &rand.PCGSource{}
	src.Seed(seed)
	return rand.New(src)
}

func TestConstants(t *testing.T) {
	assert.Equal(t, 2304, SymbolLength)
	assert.Equal(t, 888, LastBin)
	assert.InDelta(t, 21.533, CarrierSpacing, 1e-3)
	assert.InDelta(t, 16989.7, LowestFrequency, 0.1)
	assert.InDelta(t, 19121.4, HighestFrequency, 0.1)
	assert.InDelta(t, 52.2, SymbolDuration.Seconds()*1000, 0.05)
}

func TestEncodeRejectsWrongLength(t *testing.T) {
	_, err := Encode(make(Vector, 99))
	assert.ErrorIs(t, err, ErrVectorLength)
	_, err = Encode(nil)
	assert.ErrorIs(t, err, ErrVectorLength)
}

func TestRoundTrip(t *testing.T) {
	rng := newRand(1)
	enc, dec := NewEncoder(), NewDecoder()

	for n := 0; n < 20; n++ {
		v := randomVector(rng)
		symbol, err := enc.Encode(v)
		require.NoError(t, err)
		require.Len(t, symbol, SymbolLength)

		for _, s := range symbol {
			require.LessOrEqual(t, math.Abs(float64(s)), 1.0)
		}

		got, err := dec.DecodeSymbol(symbol)
		require.NoError(t, err)
		for i := range v {
			assert.InDelta(t, 0, cmplx.Abs(got[i]-v[i]), 1e-4, "carrier %d", i)
		}
	}
}

func TestPrefixInvariant(t *testing.T) {
	rng := newRand(2)
	v := randomVector(rng)

	// unfaded: rebuild the body exactly as the encoder does
	coeff := make([]complex128, BodyLength/2+1)
	copy(coeff[FirstBin:], v)
	body := fourier.NewFFT(BodyLength).Sequence(nil, coeff)
	raw := make([]float64, 0, SymbolLength)
	raw = append(raw, body[BodyLength-PrefixLength:]...)
	raw = append(raw, body...)
	for i := 0; i < PrefixLength; i++ {
		assert.Equal(t, raw[i], raw[i+BodyLength])
	}

	symbol, err := Encode(v)
	require.NoError(t, err)
	for i := FadeLength; i < PrefixLength-FadeLength; i++ {
		assert.Equal(t, symbol[i], symbol[i+BodyLength], "sample %d", i)
	}
	// the fades only attenuate
	assert.Less(t, math.Abs(float64(symbol[0])), math.Abs(float64(symbol[BodyLength]))+1e-9)
}

func hiVector() Vector {
	return ModulateBits(BytesToBits([]byte("HI")))
}

func constantVector(c complex128) Vector {
	v := NewVector()
	for i := range v {
		v[i] = c
	}
	return v
}

func TestSpectralContainment(t *testing.T) {
	rng := newRand(3)
	alternating := NewVector()
	for i := range alternating {
		alternating[i] = complex(float64(1-2*(i%2)), 0)
	}
	vectors := []struct {
		name string
		v    Vector
	}{
		{"ones", constantVector(1)},
		{"minus ones", constantVector(-1)},
		{"alternating", alternating},
		{"HI", hiVector()},
		{"random bits", ModulateBits(randomBits(rng, Carriers))},
		{"random complex", randomVector(rng)},
	}

	const padded = 2 * BodyLength
	bin := float64(SampleRate) / padded
	lowEdge, highEdge := LowestFrequency-2000, HighestFrequency+2000

	for _, tc := range vectors {
		t.Run(tc.name, func(t *testing.T) {
			symbol, err := Encode(tc.v)
			require.NoError(t, err)

			// a frame clear of the fades carries nothing outside the carriers
			frame := make([]float64, BodyLength)
			for i := range frame {
				frame[i] = float64(symbol[windowOffset+i])
			}
			coeff := fourier.NewFFT(BodyLength).Coefficients(nil, frame)
			var inside, outside float64
			for k, c := range coeff {
				p := real(c)*real(c) + imag(c)*imag(c)
				if k >= FirstBin && k <= LastBin {
					inside += p
				} else {
					outside += p
				}
			}
			require.Greater(t, inside, 0.0)
			assert.Less(t, outside/inside, 1e-8)

			// the whole faded symbol stays within a couple of kHz of the band
			full := make([]float64, padded)
			for i, x := range symbol {
				full[i] = float64(x)
			}
			coeff = fourier.NewFFT(padded).Coefficients(nil, full)
			inside, outside = 0, 0
			for k, c := range coeff {
				p := real(c)*real(c) + imag(c)*imag(c)
				if f := float64(k) * bin; f >= lowEdge && f <= highEdge {
					inside += p
				} else {
					outside += p
				}
			}
			require.Greater(t, inside, 0.0)
			assert.Less(t, outside/inside, 1e-4)
		})
	}
}

func TestDecodeHI(t *testing.T) {
	bits := BytesToBits([]byte("HI"))
	require.Len(t, bits, 16)

	symbol, err := Encode(ModulateBits(bits))
	require.NoError(t, err)

	dec := NewDecoder()
	window := make([]float32, 3000)
	delays := []int{len(window) - SymbolLength}
	for d := 0; d < 400; d += 7 {
		delays = append(delays, d)
	}
	for _, delay := range delays {
		// surround the symbol with silence
		clear(window)
		copy(window[delay:], symbol)

		res, err := dec.Decode(window)
		require.NoError(t, err, "delay %d", delay)
		assert.Equal(t, delay, res.Offset, "delay %d", delay)
		assert.InDelta(t, 1, res.Confidence, 1e-6, "delay %d", delay)

		got := DemodulateBits(res.Vector)
		assert.Equal(t, "HI", string(BitsToBytes(got[:16])), "delay %d", delay)
		for i := 16; i < Carriers; i++ {
			assert.False(t, got[i], "delay %d carrier %d", delay, i)
		}
	}
}

func TestDecodeZeroDelay(t *testing.T) {
	rng := newRand(6)
	dec := NewDecoder()

	for _, v := range []Vector{hiVector(), constantVector(1), constantVector(-1), ModulateBits(randomBits(rng, Carriers))} {
		symbol, err := Encode(v)
		require.NoError(t, err)

		// exactly one symbol, nothing around it
		res, err := dec.Decode(symbol)
		require.NoError(t, err)
		assert.Zero(t, res.Offset)
		assert.InDelta(t, 0, res.Timing, 1e-6)
		for i := range v {
			assert.InDelta(t, real(v[i]), real(res.Vector[i]), 1e-3, "carrier %d", i)
			assert.InDelta(t, 0, imag(res.Vector[i]), 1e-3, "carrier %d", i)
		}
	}
}

func TestDecodeCorrectsCoarseStart(t *testing.T) {
	rng := newRand(7)
	bits := randomBits(rng, Carriers)
	symbol, err := Encode(ModulateBits(bits))
	require.NoError(t, err)

	const at = 200
	window := make([]float32, at+SymbolLength+200)
	copy(window[at:], symbol)

	dec := NewDecoder()
	for _, e := range []int{-40, -9, -1, 0, 1, 13, 40} {
		res, err := dec.DecodeAt(window, at+e)
		require.NoError(t, err)
		assert.Equal(t, at, res.Offset, "start error %d", e)
		assert.InDelta(t, float64(e), res.Timing, 1e-6, "start error %d", e)
		assert.Equal(t, bits, DemodulateBits(res.Vector), "start error %d", e)
	}
}

func TestDecodeBackToBackWithNoise(t *testing.T) {
	rng := newRand(4)
	enc, dec := NewEncoder(), NewDecoder()

	const lead = 500
	var sent [][]bool
	stream := make([]float32, lead)
	for n := 0; n < 3; n++ {
		bits := randomBits(rng, Carriers)
		sent = append(sent, bits)
		symbol, err := enc.Encode(ModulateBits(bits))
		require.NoError(t, err)
		stream = append(stream, symbol...)
	}
	stream = append(stream, make([]float32, 500)...)
	for i := range stream {
		stream[i] += float32(rng.NormFloat64() * 0.002)
	}

	for n, bits := range sent {
		at := lead + n*SymbolLength
		window := stream[at-100 : at+SymbolLength+156]
		res, err := dec.Decode(window)
		require.NoError(t, err, "symbol %d", n)
		assert.Equal(t, bits, DemodulateBits(res.Vector), "symbol %d", n)
	}
}

func TestDecodeNoSymbol(t *testing.T) {
	dec := NewDecoder()

	_, err := dec.Decode(make([]float32, SymbolLength+BlockSize))
	assert.ErrorIs(t, err, ErrNoSymbol)

	_, err = dec.Decode(make([]float32, 10))
	assert.ErrorIs(t, err, ErrNoSymbol)

	rng := newRand(5)
	noise := make([]float32, SymbolLength+BlockSize)
	for i := range noise {
		noise[i] = float32(rng.NormFloat64())
	}
	_, err = dec.Decode(noise)
	assert.ErrorIs(t, err, ErrNoSymbol)

	garbage := make([]float32, SymbolLength)
	garbage[7] = float32(math.NaN())
	_, err = dec.Decode(garbage)
	assert.ErrorIs(t, err, ErrNoSymbol)

	_, err = dec.DecodeSymbol(make([]float32, 100))
	assert.ErrorIs(t, err, ErrShortInput)
	_, err = dec.DecodeAt(make([]float32, SymbolLength), 1)
	assert.ErrorIs(t, err, ErrShortInput)
}

func TestBits(t *testing.T) {
	data := []byte{0x48, 0x49, 0xA5}
	bits := BytesToBits(data)
	assert.Equal(t, []bool{false, true, false, false, true, false, false, false}, bits[:8])
	assert.Equal(t, data, BitsToBytes(bits))
	assert.Equal(t, []byte{0x80}, BitsToBytes([]bool{true}))

	v := ModulateBits([]bool{true, false})
	assert.Len(t, v, Carriers)
	assert.Equal(t, complex(1, 0), v[0])
	assert.Equal(t, complex(-1, 0), v[1])
	assert.Equal(t, complex(-1, 0), v[99])
}
