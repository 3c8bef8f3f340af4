package main

import (
	"errors"
	"io"
	"io/fs"
	"math"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"QPSKLink/internel/config"
	"QPSKLink/internel/logging"
	"QPSKLink/internel/utils"
	"QPSKLink/pkg/transmitter"
)

const defaultConfigFile = "config.yml"

type app struct {
	configFile string
	logLevel   string
	seed       uint64
	snr        float64
	snrDB      float64
	noiseless  bool
	iqTX, iqRX string

	cfg      *config.Config
	log      zerolog.Logger
	closeLog func() error
	out      io.Writer

	tracing          bool
	traceTX, traceRX []complex128
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "qpsklink",
		Short:        "Send bytes, bitstreams and images through a simulated QPSK link",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (.yml or .toml), defaults to ./config.yml when present")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.Uint64Var(&a.seed, "seed", 0, "noise seed")
	flags.Float64Var(&a.snr, "snr", 0, "linear channel SNR")
	flags.Float64Var(&a.snrDB, "snr-db", 0, "channel SNR in dB, overrides --snr")
	flags.BoolVar(&a.noiseless, "noiseless", false, "disable channel noise")
	flags.StringVar(&a.iqTX, "iq-tx", "", "write transmitted symbols as float32 I/Q to this file")
	flags.StringVar(&a.iqRX, "iq-rx", "", "write received symbols as float32 I/Q to this file")

	cmd.AddCommand(
		newImageCmd(a),
		newByteCmd(a),
		newBitsCmd(a),
		newBytesCmd(a),
		newFileCmd(a),
		newPacketCmd(a),
		newSweepCmd(a),
		newIQCmd(a),
	)
	return cmd, a
}

func (a *app) setup(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()

	var err error
	switch {
	case a.configFile != "":
		a.cfg, err = config.LoadConfig(a.configFile)
	default:
		a.cfg, err = config.LoadConfig(defaultConfigFile)
		if errors.Is(err, fs.ErrNotExist) {
			a.cfg, err = config.Default(), nil
		}
	}
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		a.cfg.Log.Level = a.logLevel
	}
	if flags.Changed("seed") {
		a.cfg.Channel.Seed = a.seed
	}
	if flags.Changed("snr") {
		a.cfg.SetSNR(a.snr)
	}
	if flags.Changed("snr-db") {
		a.cfg.Channel.SNRDB = &a.snrDB
	}
	if a.noiseless {
		a.cfg.SetSNR(math.Inf(1))
	}
	if flags.Changed("iq-tx") {
		a.cfg.IQDump.TX = a.iqTX
	}
	if flags.Changed("iq-rx") {
		a.cfg.IQDump.RX = a.iqRX
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.log, a.closeLog, err = logging.New("qpsklink", logging.Config{
		Level:      a.cfg.Log.Level,
		File:       a.cfg.Log.File,
		MaxSizeMB:  a.cfg.Log.MaxSizeMB,
		MaxBackups: a.cfg.Log.MaxBackups,
	})
	if err != nil {
		return err
	}
	a.log.Debug().Str("config", a.configFile).Float64("snr", a.cfg.LinearSNR()).Uint64("seed", a.cfg.Channel.Seed).Msg("configured")
	return nil
}

// teardown writes the I/Q dumps of a traced run and closes the log file.
// It is safe to call when setup did not run or failed.
func (a *app) teardown() error {
	var errs []error
	if a.tracing {
		if a.cfg.IQDump.TX != "" {
			errs = append(errs, utils.WriteIQ(a.cfg.IQDump.TX, a.traceTX))
		}
		if a.cfg.IQDump.RX != "" {
			errs = append(errs, utils.WriteIQ(a.cfg.IQDump.RX, a.traceRX))
		}
		a.log.Info().Int("symbols", len(a.traceTX)).Str("tx", a.cfg.IQDump.TX).Str("rx", a.cfg.IQDump.RX).Msg("I/Q dump written")
		a.tracing = false
	}
	if a.closeLog != nil {
		errs = append(errs, a.closeLog())
		a.closeLog = nil
	}
	return errors.Join(errs...)
}

// newTransmitter builds the configured transmitter, tracing symbols when an I/Q dump is requested.
func (a *app) newTransmitter() (*transmitter.QPSKTransmitter, error) {
	opts := []transmitter.Option{transmitter.WithLogger(a.log)}
	if a.cfg.IQDump.TX != "" || a.cfg.IQDump.RX != "" {
		a.tracing = true
		opts = append(opts, transmitter.WithTrace(func(tx, rx []complex128) {
			a.traceTX = append(a.traceTX, tx...)
			a.traceRX = append(a.traceRX, rx...)
		}))
	}
	return config.NewTransmitter(a.cfg, opts...)
}
