package layers

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrShortFrame = errors.New("frame is too short")

// Index (4 byte, big endian) | Length (1 byte) | Flags (1 byte)
type FrameHeader struct {
	Index  uint32
	Length uint8
	IsLast bool
	Parity bool
}

const (
	flagLast   = 0x1
	flagParity = 0x2
)

func (h FrameHeader) NumBytes() int {
	return 6
}

func (h FrameHeader) ToBytes() []byte {
	b := make([]byte, h.NumBytes())
	binary.BigEndian.PutUint32(b, h.Index)
	b[4] = h.Length
	if h.IsLast {
		b[5] |= flagLast
	}
	if h.Parity {
		b[5] |= flagParity
	}
	return b
}

func (h *FrameHeader) FromBytes(data []byte) error {
	if len(data) < h.NumBytes() {
		return fmt.Errorf("%d bytes: %w", len(data), ErrShortFrame)
	}
	h.Index = binary.BigEndian.Uint32(data)
	h.Length = data[4]
	h.IsLast = data[5]&flagLast != 0
	h.Parity = data[5]&flagParity != 0
	return nil
}
