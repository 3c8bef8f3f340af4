package main

import (
	"errors"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"QPSKLink/internel/config"
	"QPSKLink/internel/utils"
	"QPSKLink/pkg/channel"
	"QPSKLink/pkg/modem"
)

var errIQMismatch = errors.New("tx and rx dumps hold a different number of symbols")

type iqStats struct {
	Symbols     int
	SignalPower float64
	NoisePower  float64
	BitErrors   int
	Bits        int
}

// SNR is the measured Es/N0, +Inf for identical dumps.
func (s iqStats) SNR() float64 {
	if s.NoisePower == 0 {
		return math.Inf(1)
	}
	return s.SignalPower / s.NoisePower
}

// measureIQ compares a transmitted and a received dump: the noise is rx - tx and
// bit errors are counted between the hard decisions on both.
func measureIQ(tx, rx []complex128, m modem.Modem) (iqStats, error) {
	if len(tx) != len(rx) {
		return iqStats{}, fmt.Errorf("%d and %d: %w", len(tx), len(rx), errIQMismatch)
	}
	noise := make([]complex128, len(tx))
	for i := range tx {
		noise[i] = rx[i] - tx[i]
	}
	sent, received := m.Demodulate(tx), m.Demodulate(rx)
	errs := 0
	for i := range sent {
		if sent[i] != received[i] {
			errs++
		}
	}
	return iqStats{
		Symbols:     len(tx),
		SignalPower: modem.MeanPower(tx),
		NoisePower:  modem.MeanPower(noise),
		BitErrors:   errs,
		Bits:        len(sent),
	}, nil
}

func newIQCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "iq [tx.iq rx.iq]",
		Short: "Measure SNR and bit errors of an I/Q dump written with --iq-tx/--iq-rx",
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			txFile, rxFile := a.cfg.IQDump.TX, a.cfg.IQDump.RX
			if len(args) == 2 {
				txFile, rxFile = args[0], args[1]
			}
			if txFile == "" || rxFile == "" {
				return errors.New("need a tx and an rx dump, as arguments or via --iq-tx/--iq-rx")
			}

			tx, err := utils.ReadIQ(txFile)
			if err != nil {
				return err
			}
			rx, err := utils.ReadIQ(rxFile)
			if err != nil {
				return err
			}
			m, err := config.NewModem(a.cfg)
			if err != nil {
				return err
			}
			stats, err := measureIQ(tx, rx, m)
			if err != nil {
				return err
			}

			a.log.Debug().Str("tx", txFile).Str("rx", rxFile).Int("symbols", stats.Symbols).Msg("I/Q dump loaded")
			fmt.Fprintf(a.out, "Symbols: %d\n Signal power: %.4f\n Noise power: %.4g\n SNR: %.4g (%.2f dB)\n Bit errors: %d/%d\n",
				stats.Symbols, stats.SignalPower, stats.NoisePower, stats.SNR(), channel.SNRToDB(stats.SNR()), stats.BitErrors, stats.Bits)
			return nil
		},
	}
}
