package modem

// CRC8Checker computes CRC-8 with the given polynomial over a byte stream.
// The zero value uses x^8 + x^2 + x + 1.
type CRC8Checker struct {
	Poly uint8

	crc uint8
}

const DefaultCRC8Poly = 0x07

func (c *CRC8Checker) Reset() {
	c.crc = 0
}

func (c *CRC8Checker) Update(b byte) {
	poly := c.Poly
	if poly == 0 {
		poly = DefaultCRC8Poly
	}
	c.crc ^= b
	for range 8 {
		if c.crc&0x80 != 0 {
			c.crc = (c.crc << 1) ^ poly
		} else {
			c.crc <<= 1
		}
	}
}

func (c *CRC8Checker) Get() uint8 {
	return c.crc
}

// Calculate returns the CRC of data without touching the running state.
func (c CRC8Checker) Calculate(data []byte) uint8 {
	c.Reset()
	for _, b := range data {
		c.Update(b)
	}
	return c.Get()
}
