package modem

import (
	"AirNFC/pkg/ofdm"
	"AirNFC/pkg/port"
)

// Scheduler is the part of the port a Transmitter needs.
type Scheduler interface {
	ScheduleOutput(samples []float32, start int64) error
}

// Transmitter plays frames back to back. Frames wait in a queue until they
// fit in the port's schedule horizon.
type Transmitter struct {
	encoder *ofdm.Encoder
	symbol  []float32
	queue   []Frame
	next    int64 // first sample time not yet scheduled
	sent    int
}

func NewTransmitter() *Transmitter {
	return &Transmitter{
		encoder: ofdm.NewEncoder(),
		symbol:  make([]float32, ofdm.SymbolLength),
	}
}

func (t *Transmitter) Send(frames ...Frame) {
	t.queue = append(t.queue, frames...)
}

// Pending is the number of frames not scheduled yet.
func (t *Transmitter) Pending() int {
	return len(t.queue)
}

// NextFree is the earliest time the next frame can start.
func (t *Transmitter) NextFree() int64 {
	return t.next
}

// Delay keeps the next frame from starting before until.
func (t *Transmitter) Delay(until int64) {
	t.next = max(t.next, until)
}

// Busy reports whether a scheduled symbol is still playing at now.
func (t *Transmitter) Busy(now int64) bool {
	return t.next > now
}

// Sent counts frames handed to the port.
func (t *Transmitter) Sent() int {
	return t.sent
}

// Flush schedules as many queued frames as fit before now plus the horizon.
// It must run inside the port callback. Frames that can't be encoded are
// dropped; a scheduling error keeps the rest queued.
func (t *Transmitter) Flush(s Scheduler, now int64) (int, error) {
	n := 0
	for len(t.queue) > 0 {
		start := max(t.next, now)
		if start+ofdm.SymbolLength > now+port.ScheduleHorizon {
			break
		}

		v, err := t.queue[0].Marshal()
		if err == nil {
			err = t.encoder.EncodeInto(t.symbol, v)
		}
		if err != nil {
			t.queue = t.queue[1:]
			continue
		}
		if err := s.ScheduleOutput(t.symbol, start); err != nil {
			return n, err
		}
		t.queue[0] = Frame{}
		t.queue = t.queue[1:]
		t.next = start + ofdm.SymbolLength
		t.sent++
		n++
	}
	return n, nil
}

// Reset drops the queue.
func (t *Transmitter) Reset() {
	clear(t.queue)
	t.queue = t.queue[:0]
}
