package modem

import "bytes"

const maxSeq = 16

// Fragment splits payload into frames of at most MaxPayload bytes. The first
// frame carries FlagFirst, the last FlagLast, and sequence numbers wrap at 16.
// An empty payload still yields one frame.
func Fragment(t FrameType, flags Flags, payload []byte) []Frame {
	n := max((len(payload)+MaxPayload-1)/MaxPayload, 1)
	frames := make([]Frame, n)
	for i := range frames {
		chunk := payload[min(i*MaxPayload, len(payload)):min((i+1)*MaxPayload, len(payload))]
		f := Frame{
			Type:    t,
			Flags:   flags &^ (FlagFirst | FlagLast),
			Seq:     uint8(i % maxSeq),
			Payload: append([]byte(nil), chunk...),
		}
		if i == 0 {
			f.Flags |= FlagFirst
		}
		if i == n-1 {
			f.Flags |= FlagLast
		}
		frames[i] = f
	}
	return frames
}

// Reassembler rebuilds messages from frames that arrive in order. A missing
// frame drops the message being built; the next FlagFirst starts over.
type Reassembler struct {
	MaxSize int // 0 means no limit

	buf     []byte
	next    uint8
	active  bool
	dropped int
}

// Add returns the message completed by f, if any.
func (r *Reassembler) Add(f Frame) (msg []byte, ok bool) {
	if f.Flags.Has(FlagFirst) {
		if r.active {
			r.dropped++
		}
		r.buf = r.buf[:0]
		r.active = true
	} else if !r.active || f.Seq != r.next {
		if r.active {
			r.dropped++
		}
		r.active = false
		return nil, false
	}

	r.buf = append(r.buf, f.Payload...)
	r.next = (f.Seq + 1) % maxSeq
	if r.MaxSize > 0 && len(r.buf) > r.MaxSize {
		r.dropped++
		r.active = false
		return nil, false
	}
	if !f.Flags.Has(FlagLast) {
		return nil, false
	}
	r.active = false
	return append([]byte(nil), r.buf...), true
}

// Dropped counts messages abandoned because of lost or unexpected frames.
func (r *Reassembler) Dropped() int {
	return r.dropped
}

// collector rebuilds one fixed message that the sender repeats, keeping each
// fragment it hears by sequence number. Fragments may arrive in any order
// and over several repetitions.
type collector struct {
	parts [maxSeq][]byte
	total int
}

func (c *collector) add(f Frame) {
	c.parts[f.Seq] = append([]byte(nil), f.Payload...)
	if f.Flags.Has(FlagLast) {
		c.total = int(f.Seq) + 1
	}
}

func (c *collector) message() ([]byte, bool) {
	if c.total == 0 {
		return nil, false
	}
	var msg []byte
	for _, part := range c.parts[:c.total] {
		if part == nil {
			return nil, false
		}
		msg = append(msg, part...)
	}
	return msg, true
}

func (c *collector) reset() {
	*c = collector{}
}

// isEcho reports whether f is one of our own frames heard back.
func isEcho(f Frame, own []Frame) bool {
	for _, o := range own {
		if o.Type == f.Type && o.Seq == f.Seq && bytes.Equal(o.Payload, f.Payload) {
			return true
		}
	}
	return false
}
