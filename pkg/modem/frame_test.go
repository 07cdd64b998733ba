package modem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AirNFC/pkg/ofdm"
)

func TestCRC8(t *testing.T) {
	c := CRC8Checker{Poly: 0x07}
	assert.Equal(t, uint8(0xF4), c.Calculate([]byte("123456789")))
	assert.Equal(t, uint8(0), c.Calculate(nil))

	c.Reset()
	for _, b := range []byte("1234") {
		c.Update(b)
	}
	assert.Equal(t, c.Calculate([]byte("1234")), c.Get())
}

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"pilot", Frame{Type: FramePilot, Flags: FlagFirst | FlagLast, Payload: []byte{1, 2, 3, 4}}},
		{"empty data", Frame{Type: FrameData, Flags: FlagFirst | FlagLast | FlagSide, Payload: []byte{}}},
		{"full key", Frame{Type: FrameKey, Seq: 15, Payload: []byte("123456789")}},
		{"confirm", Frame{Type: FrameConfirm, Flags: FlagFirst, Seq: 3, Payload: []byte("tagtag!!")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.frame.Marshal()
			require.NoError(t, err)
			require.Len(t, v, ofdm.Carriers)

			got, err := UnmarshalFrame(v)
			require.NoError(t, err)
			assert.Equal(t, tt.frame.Type, got.Type)
			assert.Equal(t, tt.frame.Flags, got.Flags)
			assert.Equal(t, tt.frame.Seq, got.Seq)
			assert.Equal(t, []byte(tt.frame.Payload), got.Payload)
		})
	}
}

func TestFrameSignAmbiguity(t *testing.T) {
	f := Frame{Type: FrameData, Flags: FlagFirst, Payload: []byte("HI")}
	v, err := f.Marshal()
	require.NoError(t, err)
	for i := range v {
		v[i] = -v[i]
	}
	got, err := UnmarshalFrame(v)
	require.NoError(t, err)
	assert.Equal(t, []byte("HI"), got.Payload)
}

func TestFrameCorruption(t *testing.T) {
	f := Frame{Type: FrameData, Payload: []byte("hello")}
	v, err := f.Marshal()
	require.NoError(t, err)

	// flip one payload bit
	v[20] = -v[20]
	_, err = UnmarshalFrame(v)
	assert.ErrorIs(t, err, ErrBadFrame)

	// silence decodes to all zero bits, which fails the padding check
	_, err = UnmarshalFrame(ofdm.ModulateBits(nil))
	assert.ErrorIs(t, err, ErrBadFrame)

	_, err = UnmarshalFrame(make(ofdm.Vector, 3))
	assert.ErrorIs(t, err, ErrBadFrame)

	_, err = Frame{Type: FrameData, Payload: make([]byte, 10)}.Marshal()
	assert.ErrorIs(t, err, ErrFrameTooLong)
}

func TestFragment(t *testing.T) {
	payload := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	frames := Fragment(FrameData, FlagSide|FlagLast, payload)
	require.Len(t, frames, 4)

	for i, f := range frames {
		assert.Equal(t, FrameData, f.Type)
		assert.Equal(t, uint8(i), f.Seq)
		assert.True(t, f.Flags.Has(FlagSide))
		assert.Equal(t, i == 0, f.Flags.Has(FlagFirst))
		assert.Equal(t, i == 3, f.Flags.Has(FlagLast))
	}
	assert.Len(t, frames[3].Payload, 36-27)

	empty := Fragment(FrameData, 0, nil)
	require.Len(t, empty, 1)
	assert.True(t, empty[0].Flags.Has(FlagFirst|FlagLast))
	assert.Empty(t, empty[0].Payload)
}

func TestReassembler(t *testing.T) {
	payload := make([]byte, 200)
	for i := range payload {
		payload[i] = byte(i)
	}
	frames := Fragment(FrameData, 0, payload)
	require.Greater(t, len(frames), maxSeq)

	var r Reassembler
	for i, f := range frames {
		msg, ok := r.Add(f)
		if i < len(frames)-1 {
			assert.False(t, ok)
			continue
		}
		require.True(t, ok)
		assert.Equal(t, payload, msg)
	}

	// a lost frame drops the message, the next one still arrives
	for i, f := range frames {
		if i == 5 {
			continue
		}
		_, ok := r.Add(f)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, r.Dropped())

	msg, ok := r.Add(Fragment(FrameData, 0, []byte("ok"))[0])
	require.True(t, ok)
	assert.Equal(t, []byte("ok"), msg)

	limited := Reassembler{MaxSize: 10}
	for _, f := range Fragment(FrameData, 0, payload) {
		_, ok := limited.Add(f)
		assert.False(t, ok)
	}
}

func TestCollector(t *testing.T) {
	key := []byte("0123456789abcdefghijklmnopqrstuv")
	frames := Fragment(FrameKey, 0, key)
	require.Len(t, frames, 4)

	var c collector
	for _, i := range []int{3, 1, 1, 0} {
		c.add(frames[i])
		_, ok := c.message()
		assert.False(t, ok)
	}
	c.add(frames[2])
	msg, ok := c.message()
	require.True(t, ok)
	assert.Equal(t, key, msg)

	assert.True(t, isEcho(frames[2], frames))
	other := Fragment(FrameKey, 0, []byte("another key of thirty-two bytes!"))
	assert.False(t, isEcho(other[2], frames))

	c.reset()
	_, ok = c.message()
	assert.False(t, ok)
}
