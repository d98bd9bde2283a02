// Package logger configures the global zerolog logger.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config represents logger configuration.
type Config struct {
	Output string // "stdout", "stderr", or a file path
	Level  string // "debug", "info", "warn", "error"
	// Format is "console" or "json". Empty means console for stdout/stderr
	// and json for files.
	Format string
}

func (c Config) toTerminal() bool {
	switch strings.ToLower(c.Output) {
	case "", "stdout", "stderr":
		return true
	}
	return false
}

func (c Config) format() (string, error) {
	switch strings.ToLower(c.Format) {
	case "":
		if c.toTerminal() {
			return FormatConsole, nil
		}
		return FormatJSON, nil
	case FormatConsole:
		return FormatConsole, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", errors.Newf("unknown log format %q", c.Format)
	}
}

// Init builds a logger from cfg and installs it globally.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	var w io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		if dir := filepath.Dir(cfg.Output); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrapf(err, "failed to create log directory %s", dir)
			}
		}
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrapf(err, "failed to open log file %s", cfg.Output)
		}
		w = f
	}

	logger, err := New(w, cfg)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(level)
	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger
	return nil
}

// New builds a logger writing to w. Caller information is added at debug
// level.
func New(w io.Writer, cfg Config) (zerolog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	format, err := cfg.format()
	if err != nil {
		return zerolog.Nop(), err
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.CallerMarshalFunc = shortCaller

	if format == FormatConsole {
		cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: !cfg.toTerminal()}
		if level == zerolog.DebugLevel {
			cw.PartsOrder = []string{"time", "level", "message", "caller"}
			cw.FormatCaller = func(i any) string { return "(" + i.(string) + ")" }
		}
		w = cw
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if level == zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), nil
}

// ParseLevel parses a level name. Empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, errors.WithHint(errors.Newf("unknown log level %q", level),
			"use debug, info, warn or error")
	}
}

// shortCaller trims a caller path to its last directory and file.
func shortCaller(_ uintptr, file string, line int) string {
	parts := strings.Split(file, string(filepath.Separator))
	if len(parts) > 1 {
		return filepath.Join(parts[len(parts)-2:]...) + ":" + strconv.Itoa(line)
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}
