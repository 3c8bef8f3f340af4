package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"

	"QPSKLink/pkg/channel"
)

// qpskTheoreticalBER is Q(sqrt(2 Eb/N0)) with Eb/N0 = Es/N0 / 2 for Gray coded QPSK.
func qpskTheoreticalBER(snr float64) float64 {
	return 0.5 * math.Erfc(math.Sqrt(snr/2))
}

// theoreticalBER covers the orders with a closed form, NaN otherwise.
func theoreticalBER(order int, snr float64) float64 {
	switch order {
	case 2:
		return 0.5 * math.Erfc(math.Sqrt(snr))
	case 4:
		return qpskTheoreticalBER(snr)
	}
	return math.NaN()
}

type sweepPoint struct {
	SNRDB       float64
	Errors      int
	Bits        int
	Theoretical float64
}

func (p sweepPoint) BER() float64 {
	return float64(p.Errors) / float64(p.Bits)
}

func (a *app) sweep() ([]sweepPoint, error) {
	s := a.cfg.Sweep
	rng := rand.New(rand.NewSource(a.cfg.Channel.Seed + 1))
	bits := make([]uint8, s.Bits)
	for i := range bits {
		bits[i] = uint8(rng.Intn(2))
	}

	t, err := a.newTransmitter()
	if err != nil {
		return nil, err
	}

	var points []sweepPoint
	// small epsilon so the last step survives float accumulation
	for db := s.MinDB; db <= s.MaxDB+s.StepDB*1e-9; db += s.StepDB {
		snr := channel.SNRFromDB(db)
		if err := t.SetSNR(snr); err != nil {
			return nil, err
		}
		out, err := t.TransmitBitstream(bits)
		if err != nil {
			return nil, err
		}
		errs := 0
		for i := range bits {
			if bits[i] != out[i] {
				errs++
			}
		}
		p := sweepPoint{SNRDB: db, Errors: errs, Bits: len(bits), Theoretical: theoreticalBER(a.cfg.Transmitter.Order, snr)}
		a.log.Debug().Float64("snr_db", db).Float64("snr", snr).Int("errors", errs).Msg("sweep point")
		points = append(points, p)
	}
	return points, nil
}

func newSweepCmd(a *app) *cobra.Command {
	var minDB, maxDB, stepDB float64
	var bits int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Measure the bit error rate over a range of SNR values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := &a.cfg.Sweep
			flags := cmd.Flags()
			if flags.Changed("min-db") {
				s.MinDB = minDB
			}
			if flags.Changed("max-db") {
				s.MaxDB = maxDB
			}
			if flags.Changed("step-db") {
				s.StepDB = stepDB
			}
			if flags.Changed("bits") {
				s.Bits = bits
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			points, err := a.sweep()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%8s %10s %12s %12s\n", "SNR(dB)", "errors", "BER", "theory")
			for _, p := range points {
				fmt.Fprintf(a.out, "%8.2f %10d %12.3e %12.3e\n", p.SNRDB, p.Errors, p.BER(), p.Theoretical)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&minDB, "min-db", 0, "lowest SNR in dB")
	cmd.Flags().Float64Var(&maxDB, "max-db", 10, "highest SNR in dB")
	cmd.Flags().Float64Var(&stepDB, "step-db", 1, "SNR step in dB")
	cmd.Flags().IntVar(&bits, "bits", 200000, "bits per SNR point, must be even")
	return cmd
}
