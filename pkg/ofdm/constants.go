// Package ofdm encodes 100 subcarrier values into one audible OFDM symbol in
// the 17-19 kHz band and recovers them from captured audio.
package ofdm

import "time"

const (
	SampleRate = 44100
	BlockSize  = 256

	BodyLength   = 2048
	PrefixLength = 256
	FadeLength   = 64
	SymbolLength = PrefixLength + BodyLength

	FirstBin = 789
	Carriers = 100
	LastBin  = FirstBin + Carriers - 1
)

const (
	CarrierSpacing   = float64(SampleRate) / BodyLength
	LowestFrequency  = FirstBin * CarrierSpacing
	HighestFrequency = LowestFrequency + (Carriers-1)*CarrierSpacing

	SymbolDuration = time.Duration(SymbolLength) * time.Second / SampleRate
)

// Vector holds one value per subcarrier, lowest frequency first.
type Vector []complex128

func NewVector() Vector {
	return make(Vector, Carriers)
}
