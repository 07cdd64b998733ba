// Package modem implements the link layer on top of the OFDM codec: one
// frame per symbol, and the modems that the audio port drives (discovery,
// handshake and payload).
package modem

import (
	"errors"
	"fmt"

	"AirNFC/pkg/ofdm"
)

var (
	ErrBadFrame     = errors.New("modem: corrupted frame")
	ErrFrameTooLong = errors.New("modem: frame payload too long")
)

type FrameType uint8

const (
	FramePilot FrameType = iota + 1
	FrameKey
	FrameConfirm
	FrameData
)

func (t FrameType) String() string {
	switch t {
	case FramePilot:
		return "pilot"
	case FrameKey:
		return "key"
	case FrameConfirm:
		return "confirm"
	case FrameData:
		return "data"
	default:
		return fmt.Sprintf("FrameType(%d)", uint8(t))
	}
}

type Flags uint8

const (
	FlagFirst Flags = 0x8
	FlagLast  Flags = 0x4

	// FlagSide tells the two ends of a connection apart once both public
	// keys are known, so a device can drop the echo of its own data frames.
	FlagSide Flags = 0x2

	// FlagReplay marks handshake frames sent in answer to a peer that is
	// still negotiating. Nobody answers a replay.
	FlagReplay Flags = 0x1
)

func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

const (
	MaxPayload = 9
	frameBytes = 12

	// Fixed pattern on the last four carriers. Reading it inverted means the
	// channel turned the whole symbol by half a turn.
	padding = 0b1010
)

var crc8 = CRC8Checker{Poly: 0x07}

// Frame is the content of one symbol:
//
//	byte 0     type (4 bits) | flags (4 bits)
//	byte 1     payload length (4 bits) | sequence (4 bits)
//	bytes 2-10 payload, zero padded
//	byte 11    CRC-8 of bytes 0-10
//	bits 96-99 padding 1010
type Frame struct {
	Type    FrameType
	Flags   Flags
	Seq     uint8
	Payload []byte
}

func (f Frame) Marshal() (ofdm.Vector, error) {
	if len(f.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLong, len(f.Payload))
	}
	var b [frameBytes]byte
	b[0] = byte(f.Type)<<4 | byte(f.Flags&0x0f)
	b[1] = byte(len(f.Payload))<<4 | f.Seq&0x0f
	copy(b[2:], f.Payload)
	b[11] = crc8.Calculate(b[:11])

	bits := ofdm.BytesToBits(b[:])
	for i := 3; i >= 0; i-- {
		bits = append(bits, padding>>i&1 == 1)
	}
	return ofdm.ModulateBits(bits), nil
}

func UnmarshalFrame(v ofdm.Vector) (Frame, error) {
	if len(v) != ofdm.Carriers {
		return Frame{}, fmt.Errorf("%w: %d carriers", ErrBadFrame, len(v))
	}
	bits := ofdm.DemodulateBits(v)

	var pad int
	for _, bit := range bits[frameBytes*8:] {
		pad <<= 1
		if bit {
			pad |= 1
		}
	}
	switch pad {
	case padding:
	case ^padding & 0x0f:
		for i := range bits {
			bits[i] = !bits[i]
		}
	default:
		return Frame{}, fmt.Errorf("%w: padding %04b", ErrBadFrame, pad)
	}

	b := ofdm.BitsToBytes(bits[:frameBytes*8])
	if crc8.Calculate(b[:11]) != b[11] {
		return Frame{}, fmt.Errorf("%w: crc mismatch", ErrBadFrame)
	}

	f := Frame{
		Type:  FrameType(b[0] >> 4),
		Flags: Flags(b[0] & 0x0f),
		Seq:   b[1] & 0x0f,
	}
	n := int(b[1] >> 4)
	if f.Type < FramePilot || f.Type > FrameData || n > MaxPayload {
		return Frame{}, fmt.Errorf("%w: header %02x %02x", ErrBadFrame, b[0], b[1])
	}
	f.Payload = append([]byte(nil), b[2:2+n]...)
	return f, nil
}
