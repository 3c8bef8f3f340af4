package modem

import (
	"errors"
	"fmt"
)

var (
	ErrNotBinary = errors.New("bits must be 0 or 1")
	ErrBitCount  = errors.New("bit count does not fit the symbol size")
)

// IntToBits returns the lowest width bits of v, least significant bit first.
func IntToBits(v uint64, width int) []uint8 {
	bits := make([]uint8, width)
	for i := range width {
		bits[i] = uint8(v>>i) & 1
	}
	return bits
}

// BitsToInt is the inverse of IntToBits.
func BitsToInt(bits []uint8) uint64 {
	var v uint64
	for i, b := range bits {
		v |= uint64(b&1) << i
	}
	return v
}

// BytesToBits unpacks every byte into 8 bits, least significant bit first.
func BytesToBits(data []byte) []uint8 {
	bits := make([]uint8, 0, len(data)*8)
	for _, b := range data {
		for i := range 8 {
			bits = append(bits, (b>>i)&1)
		}
	}
	return bits
}

// BitsToBytes packs bits produced by BytesToBits back into bytes.
func BitsToBytes(bits []uint8) ([]byte, error) {
	if len(bits)%8 != 0 {
		return nil, fmt.Errorf("%d bits: %w", len(bits), ErrBitCount)
	}
	data := make([]byte, len(bits)/8)
	for i := range data {
		data[i] = byte(BitsToInt(bits[i*8 : i*8+8]))
	}
	return data, nil
}

func ValidateBits(bits []uint8) error {
	for i, b := range bits {
		if b > 1 {
			return fmt.Errorf("value %d at index %d: %w", b, i, ErrNotBinary)
		}
	}
	return nil
}

// CountBitErrors returns the number of differing bits between a and b.
// Bytes beyond the shorter slice count as fully wrong.
func CountBitErrors(a, b []byte) int {
	n := 0
	for i := range min(len(a), len(b)) {
		x := a[i] ^ b[i]
		for x != 0 {
			x &= x - 1
			n++
		}
	}
	return n + 8*(max(len(a), len(b))-min(len(a), len(b)))
}
