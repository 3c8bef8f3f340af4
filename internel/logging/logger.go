package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level      string
	File       string // optional, rotated by lumberjack
	MaxSizeMB  int
	MaxBackups int
}

// New returns a console logger on stderr, teeing JSON lines into Config.File
// when set. The returned close function flushes and closes the file sink.
func New(app string, cfg Config) (zerolog.Logger, func() error, error) {
	return newLogger(os.Stderr, app, cfg)
}

func newLogger(console io.Writer, app string, cfg Config) (zerolog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	var out io.Writer = zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.TimeOnly,
	}
	closeFn := func() error { return nil }

	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closeFn = file.Close
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Str("app", app).Logger()
	return logger, closeFn, nil
}

func ParseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}
