package utils

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
)

var ErrIQLength = errors.New("I/Q file is not a whole number of complex64 samples")

// iqSampleSize is one interleaved float32 I/Q pair.
const iqSampleSize = 8

// WriteIQ stores symbols as interleaved little endian float32 I/Q pairs,
// the layout most SDR tools read as complex64.
func WriteIQ(filename string, symbols []complex128) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create %s: %w", filename, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	var sample [iqSampleSize]byte
	for _, s := range symbols {
		binary.LittleEndian.PutUint32(sample[:4], math.Float32bits(float32(real(s))))
		binary.LittleEndian.PutUint32(sample[4:], math.Float32bits(float32(imag(s))))
		if _, err := w.Write(sample[:]); err != nil {
			return fmt.Errorf("write %s: %w", filename, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return file.Close()
}

// ReadIQ loads a dump written by WriteIQ.
func ReadIQ(filename string) ([]complex128, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if len(data)%iqSampleSize != 0 {
		return nil, fmt.Errorf("%s has %d bytes: %w", filename, len(data), ErrIQLength)
	}

	symbols := make([]complex128, len(data)/iqSampleSize)
	for i := range symbols {
		sample := data[i*iqSampleSize:]
		re := math.Float32frombits(binary.LittleEndian.Uint32(sample[:4]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(sample[4:8]))
		symbols[i] = complex(float64(re), float64(im))
	}
	return symbols, nil
}
