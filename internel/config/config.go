package config

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"QPSKLink/pkg/channel"
	"QPSKLink/pkg/layers"
	"QPSKLink/pkg/modem"
	"QPSKLink/pkg/transmitter"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Log struct {
		Level      string `yaml:"level" toml:"level"`
		File       string `yaml:"file" toml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	} `yaml:"log" toml:"log"`

	Channel struct {
		SNR         *float64 `yaml:"snr" toml:"snr"`       // linear
		SNRDB       *float64 `yaml:"snr_db" toml:"snr_db"` // overrides snr when set
		Seed        uint64   `yaml:"seed" toml:"seed"`
		SignalPower float64  `yaml:"signal_power" toml:"signal_power"`
	} `yaml:"channel" toml:"channel"`

	Transmitter struct {
		ChunkSize int `yaml:"chunk_size" toml:"chunk_size"`
		Workers   int `yaml:"workers" toml:"workers"`
		Order     int `yaml:"order" toml:"order"` // PSK order, 4 is QPSK
	} `yaml:"transmitter" toml:"transmitter"`

	Link struct {
		BytePerFrame int `yaml:"byte_per_frame" toml:"byte_per_frame"`
		DataShards   int `yaml:"data_shards" toml:"data_shards"`
		ParityShards int `yaml:"parity_shards" toml:"parity_shards"`
	} `yaml:"link" toml:"link"`

	Image struct {
		InputDir  string `yaml:"input_dir" toml:"input_dir"`
		OutputDir string `yaml:"output_dir" toml:"output_dir"`
		Name      string `yaml:"name" toml:"name"`
	} `yaml:"image" toml:"image"`

	Sweep struct {
		MinDB  float64 `yaml:"min_db" toml:"min_db"`
		MaxDB  float64 `yaml:"max_db" toml:"max_db"`
		StepDB float64 `yaml:"step_db" toml:"step_db"`
		Bits   int     `yaml:"bits" toml:"bits"`
	} `yaml:"sweep" toml:"sweep"`

	Packet struct {
		SrcIP   string `yaml:"src_ip" toml:"src_ip"`
		DstIP   string `yaml:"dst_ip" toml:"dst_ip"`
		SrcPort int    `yaml:"src_port" toml:"src_port"`
		DstPort int    `yaml:"dst_port" toml:"dst_port"`
	} `yaml:"packet" toml:"packet"`

	IQDump struct {
		TX string `yaml:"tx" toml:"tx"`
		RX string `yaml:"rx" toml:"rx"`
	} `yaml:"iq_dump" toml:"iq_dump"`
}

// Default mirrors the demo script: SNR 10 and the pictures/ directories.
func Default() *Config {
	var c Config
	c.ApplyDefaults()
	return &c
}

// LoadConfig reads a YAML file, or TOML when the name ends in .toml.
// Missing values are filled with defaults and the result is validated.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var config Config
	if strings.EqualFold(filepath.Ext(filename), ".toml") {
		err = toml.Unmarshal(data, &config)
	} else {
		err = yaml.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Channel.SNR == nil && c.Channel.SNRDB == nil {
		snr := 10.0
		c.Channel.SNR = &snr
	}
	if c.Channel.Seed == 0 {
		c.Channel.Seed = 1
	}
	if c.Transmitter.ChunkSize == 0 {
		c.Transmitter.ChunkSize = transmitter.DefaultChunkSize
	}
	if c.Transmitter.Workers == 0 {
		c.Transmitter.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Transmitter.Order == 0 {
		c.Transmitter.Order = 4
	}
	if c.Link.BytePerFrame == 0 {
		c.Link.BytePerFrame = 125
	}
	if c.Link.DataShards == 0 {
		c.Link.DataShards = 8
	}
	if c.Image.InputDir == "" {
		c.Image.InputDir = filepath.Join("pictures", "input")
	}
	if c.Image.OutputDir == "" {
		c.Image.OutputDir = filepath.Join("pictures", "output")
	}
	if c.Image.Name == "" {
		c.Image.Name = "racoon_40px.png"
	}
	if c.Sweep.StepDB == 0 {
		c.Sweep.StepDB = 1
	}
	if c.Sweep.MinDB == 0 && c.Sweep.MaxDB == 0 {
		c.Sweep.MaxDB = 10
	}
	if c.Sweep.Bits == 0 {
		c.Sweep.Bits = 200000
	}
	if c.Packet.SrcIP == "" {
		c.Packet.SrcIP = "10.0.0.1"
	}
	if c.Packet.DstIP == "" {
		c.Packet.DstIP = "10.0.0.2"
	}
	if c.Packet.SrcPort == 0 {
		c.Packet.SrcPort = 40000
	}
	if c.Packet.DstPort == 0 {
		c.Packet.DstPort = 5000
	}
}

// LinearSNR resolves snr_db and snr into one linear value.
func (c *Config) LinearSNR() float64 {
	if c.Channel.SNRDB != nil {
		return channel.SNRFromDB(*c.Channel.SNRDB)
	}
	if c.Channel.SNR == nil {
		return 0
	}
	return *c.Channel.SNR
}

// SetSNR sets a linear SNR, dropping any snr_db.
func (c *Config) SetSNR(snr float64) {
	c.Channel.SNR = &snr
	c.Channel.SNRDB = nil
}

func (c *Config) Validate() error {
	var errs []error
	if snr := c.LinearSNR(); math.IsNaN(snr) || snr <= 0 {
		errs = append(errs, fmt.Errorf("channel.snr %v must be positive", snr))
	}
	if c.Channel.SignalPower < 0 {
		errs = append(errs, fmt.Errorf("channel.signal_power %v must not be negative", c.Channel.SignalPower))
	}
	if c.Transmitter.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("transmitter.chunk_size %d must be positive", c.Transmitter.ChunkSize))
	}
	if c.Transmitter.Workers < 1 {
		errs = append(errs, fmt.Errorf("transmitter.workers %d must be positive", c.Transmitter.Workers))
	}
	bitsPerSymbol := 1
	switch c.Transmitter.Order {
	case 2, 4, 16, 256:
		bitsPerSymbol = bits.TrailingZeros(uint(c.Transmitter.Order))
	default:
		errs = append(errs, fmt.Errorf("transmitter.order %d must be 2, 4, 16 or 256", c.Transmitter.Order))
	}
	if c.Link.BytePerFrame < 1 || c.Link.BytePerFrame > 255 {
		errs = append(errs, fmt.Errorf("link.byte_per_frame %d out of range [1, 255]", c.Link.BytePerFrame))
	}
	if c.Link.ParityShards < 0 || c.Link.DataShards+c.Link.ParityShards > 256 {
		errs = append(errs, fmt.Errorf("link shards %d+%d out of range", c.Link.DataShards, c.Link.ParityShards))
	}
	if c.Sweep.StepDB <= 0 || c.Sweep.MaxDB < c.Sweep.MinDB {
		errs = append(errs, fmt.Errorf("sweep range %v..%v step %v is empty", c.Sweep.MinDB, c.Sweep.MaxDB, c.Sweep.StepDB))
	}
	if c.Sweep.Bits < 2 || c.Sweep.Bits%2 != 0 || c.Sweep.Bits%bitsPerSymbol != 0 {
		errs = append(errs, fmt.Errorf("sweep.bits %d must be positive and a multiple of 2 and of %d bits per symbol", c.Sweep.Bits, bitsPerSymbol))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// NewModem returns the PSK modem of order transmitter.order with a pi/order
// phase offset, which for order 4 is QPSK.
func NewModem(c *Config) (*modem.PSK, error) {
	return modem.NewPSK(c.Transmitter.Order, math.Pi/float64(c.Transmitter.Order))
}

// NewTransmitter builds the transmitter described by the channel and transmitter sections.
func NewTransmitter(c *Config, opts ...transmitter.Option) (*transmitter.QPSKTransmitter, error) {
	m, err := NewModem(c)
	if err != nil {
		return nil, err
	}
	opts = append([]transmitter.Option{
		transmitter.WithModem(m),
		transmitter.WithSeed(c.Channel.Seed),
		transmitter.WithChunkSize(c.Transmitter.ChunkSize),
		transmitter.WithWorkers(c.Transmitter.Workers),
	}, opts...)
	t, err := transmitter.New(c.LinearSNR(), opts...)
	if err != nil {
		return nil, err
	}
	if c.Channel.SignalPower > 0 {
		t.Channel, err = channel.NewAWGN(c.LinearSNR(), channel.WithSeed(c.Channel.Seed), channel.WithSignalPower(c.Channel.SignalPower))
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

func LinkConfig(c *Config) layers.LinkConfig {
	return layers.LinkConfig{
		BytePerFrame: c.Link.BytePerFrame,
		DataShards:   c.Link.DataShards,
		ParityShards: c.Link.ParityShards,
	}
}
