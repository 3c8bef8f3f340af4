package channel

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"golang.org/x/exp/rand"

	"QPSKLink/pkg/modem"
)

var ErrInvalidSNR = errors.New("SNR must be positive")

// AWGN adds complex white Gaussian noise to baseband symbols.
// SNR is the linear ratio of signal power to noise power; +Inf disables noise.
// A zero SignalPower means the power is measured from every input block.
type AWGN struct {
	mu sync.Mutex

	snr         float64
	signalPower float64
	seed        uint64
	rng         *rand.Rand
}

type Option func(*AWGN)

func WithSeed(seed uint64) Option {
	return func(c *AWGN) {
		c.seed = seed
	}
}

func WithSignalPower(power float64) Option {
	return func(c *AWGN) {
		c.signalPower = power
	}
}

func NewAWGN(snr float64, opts ...Option) (*AWGN, error) {
	if err := checkSNR(snr); err != nil {
		return nil, err
	}
	c := &AWGN{snr: snr, seed: 1}
	for _, opt := range opts {
		opt(c)
	}
	if c.signalPower < 0 || math.IsNaN(c.signalPower) {
		return nil, fmt.Errorf("signal power %v must not be negative", c.signalPower)
	}
	c.rng = rand.New(rand.NewSource(c.seed))
	return c, nil
}

func checkSNR(snr float64) error {
	if math.IsNaN(snr) || snr <= 0 {
		return fmt.Errorf("snr %v: %w", snr, ErrInvalidSNR)
	}
	return nil
}

// SNRFromDB converts decibels to a linear ratio.
func SNRFromDB(db float64) float64 {
	return math.Pow(10, db/10)
}

// SNRToDB converts a linear ratio to decibels.
func SNRToDB(snr float64) float64 {
	return 10 * math.Log10(snr)
}

func (c *AWGN) SetSNR(snr float64) error {
	if err := checkSNR(snr); err != nil {
		return err
	}
	c.mu.Lock()
	c.snr = snr
	c.mu.Unlock()
	return nil
}

func (c *AWGN) SNR() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snr
}

func (c *AWGN) Seed() uint64 {
	return c.seed
}

// Apply returns input plus noise. The input slice is not modified.
func (c *AWGN) Apply(input []complex128) []complex128 {
	output := make([]complex128, len(input))
	copy(output, input)

	c.mu.Lock()
	defer c.mu.Unlock()

	if math.IsInf(c.snr, 1) || len(input) == 0 {
		return output
	}

	power := c.signalPower
	if power == 0 {
		power = modem.MeanPower(input)
	}
	// half of the noise power on each of I and Q
	sigma := math.Sqrt(power / c.snr / 2)
	for i := range output {
		output[i] += complex(sigma*c.rng.NormFloat64(), sigma*c.rng.NormFloat64())
	}
	return output
}

// Fork returns a channel with the same SNR and power setting and a seed derived from
// this channel's seed and n, for independent noise in parallel work.
func (c *AWGN) Fork(n uint64) *AWGN {
	c.mu.Lock()
	defer c.mu.Unlock()
	seed := c.seed*0x9e3779b97f4a7c15 + n + 1
	return &AWGN{
		snr:         c.snr,
		signalPower: c.signalPower,
		seed:        seed,
		rng:         rand.New(rand.NewSource(seed)),
	}
}
