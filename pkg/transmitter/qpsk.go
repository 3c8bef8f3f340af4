// Package transmitter sends bytes and bitstreams through a QPSK modem and an
// AWGN channel and returns what the receiver decides.
package transmitter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"github.com/rs/zerolog"

	"QPSKLink/pkg/async"
	"QPSKLink/pkg/channel"
	"QPSKLink/pkg/modem"
)

var (
	ErrEmptyInput = errors.New("input bitstream is nil")
	ErrOddLength  = errors.New("input bitstream must have an even number of bits")
	ErrModem      = errors.New("modem must carry a whole byte in whole symbols")
)

const DefaultChunkSize = 4096

// TraceFunc receives the transmitted and received symbols of every block, in order.
type TraceFunc func(tx, rx []complex128)

type QPSKTransmitter struct {
	Modem   modem.Modem
	Channel *channel.AWGN

	ChunkSize int // bytes per parallel chunk in TransmitByteArray, values below 1 mean 1
	Workers   int

	trace  TraceFunc
	log    zerolog.Logger
	seed   uint64
	cycles atomic.Uint64
}

type Option func(*QPSKTransmitter)

// WithModem replaces the default QPSK modem. Its bits per symbol must divide 8.
func WithModem(m modem.Modem) Option {
	return func(t *QPSKTransmitter) { t.Modem = m }
}

func WithSeed(seed uint64) Option {
	return func(t *QPSKTransmitter) { t.seed = seed }
}

func WithChunkSize(n int) Option {
	return func(t *QPSKTransmitter) { t.ChunkSize = n }
}

func WithWorkers(n int) Option {
	return func(t *QPSKTransmitter) { t.Workers = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(t *QPSKTransmitter) { t.log = l }
}

func WithTrace(f TraceFunc) Option {
	return func(t *QPSKTransmitter) { t.trace = f }
}

// New creates a transmitter over a channel with the given linear SNR.
// Pass math.Inf(1) for a noiseless channel.
func New(snr float64, opts ...Option) (*QPSKTransmitter, error) {
	t := &QPSKTransmitter{
		Modem:     modem.QPSK(),
		ChunkSize: DefaultChunkSize,
		Workers:   runtime.GOMAXPROCS(0),
		log:       zerolog.Nop(),
		seed:      1,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.ChunkSize < 1 {
		return nil, fmt.Errorf("chunk size %d must be positive", t.ChunkSize)
	}
	if n := t.Modem.BitsPerSymbol(); n < 1 || 8%n != 0 {
		return nil, fmt.Errorf("%d bits per symbol: %w", n, ErrModem)
	}

	var err error
	t.Channel, err = channel.NewAWGN(snr, channel.WithSeed(t.seed))
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Noiseless is New with an infinite SNR.
func Noiseless(opts ...Option) *QPSKTransmitter {
	t, _ := New(math.Inf(1), opts...)
	return t
}

func (t *QPSKTransmitter) SetSNR(snr float64) error {
	return t.Channel.SetSNR(snr)
}

func (t *QPSKTransmitter) SNR() float64 {
	return t.Channel.SNR()
}

// TransmitByte modulates the 8 bits of b, sends them over the channel and
// returns the demodulated byte.
func (t *QPSKTransmitter) TransmitByte(b byte) byte {
	out, tx, rx := t.transmitBits(t.Channel, modem.IntToBits(uint64(b), 8))
	t.emit(tx, rx)
	return byte(modem.BitsToInt(out))
}

// TransmitBitstream sends a flat stream of bits (values 0 or 1) and returns
// the received bits. The stream must contain an even number of bits, and a
// whole number of symbols for modems wider than QPSK.
func (t *QPSKTransmitter) TransmitBitstream(bits []uint8) ([]uint8, error) {
	if bits == nil {
		return nil, ErrEmptyInput
	}
	if len(bits)%2 != 0 {
		return nil, fmt.Errorf("%d bits: %w", len(bits), ErrOddLength)
	}
	if n := t.Modem.BitsPerSymbol(); len(bits)%n != 0 {
		return nil, fmt.Errorf("%d bits for %d bits per symbol: %w", len(bits), n, modem.ErrBitCount)
	}
	if err := modem.ValidateBits(bits); err != nil {
		return nil, err
	}

	out, tx, rx := t.transmitBits(t.Channel, bits)
	t.emit(tx, rx)
	return out, nil
}

// TransmitByteArray sends every byte of data and returns the received bytes.
func (t *QPSKTransmitter) TransmitByteArray(data []byte) []byte {
	out, _ := t.TransmitByteArrayContext(context.Background(), data)
	return out
}

// TransmitByteArrayContext is TransmitByteArray split into chunks that are
// transmitted in parallel. Every chunk uses its own channel forked from the
// transmitter's seed, so the output only depends on the seed and the call order.
func (t *QPSKTransmitter) TransmitByteArrayContext(ctx context.Context, data []byte) ([]byte, error) {
	chunkSize := max(t.ChunkSize, 1)
	output := make([]byte, len(data))
	if len(data) <= chunkSize {
		for i, b := range data {
			if i%256 == 0 && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			output[i] = t.TransmitByte(b)
		}
		return output, nil
	}

	cycle := t.cycles.Add(1)
	chunks := make([][]byte, 0, (len(data)+chunkSize-1)/chunkSize)
	for i := 0; i < len(data); i += chunkSize {
		chunks = append(chunks, data[i:min(i+chunkSize, len(data))])
	}
	t.log.Debug().
		Int("bytes", len(data)).
		Int("chunks", len(chunks)).
		Int("workers", t.Workers).
		Uint64("seed", t.Channel.Seed()).
		Uint64("cycle", cycle).
		Msg("transmitting byte array")

	type block struct {
		tx, rx []complex128
	}
	traces, err := async.Map(ctx, chunks, t.Workers, func(i int, chunk []byte) (block, error) {
		ch := t.Channel.Fork(cycle<<32 | uint64(i))
		var b block
		offset := i * chunkSize
		for j, v := range chunk {
			out, tx, rx := t.transmitBits(ch, modem.IntToBits(uint64(v), 8))
			output[offset+j] = byte(modem.BitsToInt(out))
			if t.trace != nil {
				b.tx = append(b.tx, tx...)
				b.rx = append(b.rx, rx...)
			}
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}

	for _, b := range traces {
		t.emit(b.tx, b.rx)
	}
	return output, nil
}

func (t *QPSKTransmitter) transmitBits(ch *channel.AWGN, bits []uint8) (out []uint8, tx, rx []complex128) {
	// bits are validated by the callers
	tx, err := t.Modem.Modulate(bits)
	if err != nil {
		panic(err)
	}
	rx = ch.Apply(tx)
	return t.Modem.Demodulate(rx), tx, rx
}

func (t *QPSKTransmitter) emit(tx, rx []complex128) {
	if t.trace != nil && len(tx) > 0 {
		t.trace(tx, rx)
	}
}
