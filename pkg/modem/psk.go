package modem

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"
)

var ErrInvalidOrder = errors.New("PSK order must be a power of two not less than 2")

// PSK is an M-ary phase-shift keying modem with Gray labelling.
// Point k of the constellation sits at Amplitude*exp(j*(2*pi*k/Order + PhaseOffset))
// and carries the label gray(k).
type PSK struct {
	Order       int
	PhaseOffset float64
	Amplitude   float64

	bitsPerSymbol int
	points        []complex128 // indexed by label
}

func NewPSK(order int, phaseOffset float64) (*PSK, error) {
	if order < 2 || order&(order-1) != 0 {
		return nil, fmt.Errorf("order %d: %w", order, ErrInvalidOrder)
	}
	m := &PSK{
		Order:         order,
		PhaseOffset:   phaseOffset,
		Amplitude:     1,
		bitsPerSymbol: bits.TrailingZeros(uint(order)),
	}
	m.points = make([]complex128, order)
	for k := range order {
		m.points[gray(k)] = m.point(k)
	}
	return m, nil
}

// QPSK returns the 4-PSK modem with a pi/4 phase offset, i.e. the points (+-1 +-j)/sqrt(2).
func QPSK() *PSK {
	m, _ := NewPSK(4, math.Pi/4)
	return m
}

func (m *PSK) point(k int) complex128 {
	return cmplx.Rect(m.Amplitude, 2*math.Pi*float64(k)/float64(m.Order)+m.PhaseOffset)
}

func (m *PSK) BitsPerSymbol() int {
	return m.bitsPerSymbol
}

// Constellation returns a copy of the constellation indexed by label.
func (m *PSK) Constellation() []complex128 {
	out := make([]complex128, len(m.points))
	copy(out, m.points)
	return out
}

func (m *PSK) Modulate(inputBits []uint8) ([]complex128, error) {
	if len(inputBits)%m.bitsPerSymbol != 0 {
		return nil, fmt.Errorf("%d bits for %d bits per symbol: %w", len(inputBits), m.bitsPerSymbol, ErrBitCount)
	}
	if err := ValidateBits(inputBits); err != nil {
		return nil, err
	}

	symbols := make([]complex128, len(inputBits)/m.bitsPerSymbol)
	for i := range symbols {
		label := BitsToInt(inputBits[i*m.bitsPerSymbol : (i+1)*m.bitsPerSymbol])
		symbols[i] = m.points[label]
	}
	return symbols, nil
}

// Demodulate makes a hard decision for every symbol: the nearest constellation
// point, which for PSK is the nearest phase.
func (m *PSK) Demodulate(inputSymbols []complex128) []uint8 {
	out := make([]uint8, 0, len(inputSymbols)*m.bitsPerSymbol)
	step := 2 * math.Pi / float64(m.Order)
	for _, s := range inputSymbols {
		k := int(math.Round((cmplx.Phase(s) - m.PhaseOffset) / step))
		k = ((k % m.Order) + m.Order) % m.Order
		out = append(out, IntToBits(uint64(gray(k)), m.bitsPerSymbol)...)
	}
	return out
}
