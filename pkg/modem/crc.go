package modem

// CRC8Checker computes CRC-8 with the given polynomial, MSB first, zero
// initial value.
type CRC8Checker struct {
	Poly uint8
	crc  uint8
}

func (c *CRC8Checker) Reset() {
	c.crc = 0
}

func (c *CRC8Checker) Update(b byte) {
	c.crc ^= b
	for k := 0; k < 8; k++ {
		if c.crc&0x80 != 0 {
			c.crc = (c.crc << 1) ^ c.Poly
		} else {
			c.crc <<= 1
		}
	}
}

func (c *CRC8Checker) Get() uint8 {
	return c.crc
}

func (c CRC8Checker) Calculate(data []byte) uint8 {
	c.Reset()
	for _, b := range data {
		c.Update(b)
	}
	return c.Get()
}
