package ofdm

// ModulateBits maps bits onto carriers, one per carrier: 1 is +1, 0 is -1.
// Missing bits are sent as 0; extra bits are ignored.
func ModulateBits(bits []bool) Vector {
	v := NewVector()
	for i := range v {
		if i < len(bits) && bits[i] {
			v[i] = 1
		} else {
			v[i] = -1
		}
	}
	return v
}

// DemodulateBits takes the sign of the real part of every carrier.
func DemodulateBits(v Vector) []bool {
	bits := make([]bool, len(v))
	for i, c := range v {
		bits[i] = real(c) > 0
	}
	return bits
}

// BytesToBits unpacks data most significant bit first.
func BytesToBits(data []byte) []bool {
	bits := make([]bool, 0, len(data)*8)
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			bits = append(bits, b>>i&1 == 1)
		}
	}
	return bits
}

// BitsToBytes packs bits most significant bit first; a trailing partial byte
// is zero padded.
func BitsToBytes(bits []bool) []byte {
	data := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit {
			data[i/8] |= 1 << (7 - i%8)
		}
	}
	return data
}
