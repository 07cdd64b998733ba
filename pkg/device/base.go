// Package device provides duplex audio devices: sound-card backends and the
// simulated media the tests and the simulator run on.
//
// All devices deliver mono float32 blocks at SampleRate. The callback runs on
// a dedicated goroutine owned by the device; once Stop returns it is never
// called again.
package device

import "AirNFC/pkg/ofdm"

const (
	SampleRate = ofdm.SampleRate
	BufferSize = ofdm.BlockSize
)

// Callback receives one captured block in and fills out with the block to
// play. Both slices are only valid during the call.
type Callback func(in, out []float32)

type Device interface {
	Start(callback Callback) error
	Stop()
}

// Interruptible devices can stop on their own, for example when the sound
// card disappears. The handler may be called from any goroutine.
type Interruptible interface {
	SetInterruptHandler(func())
}
