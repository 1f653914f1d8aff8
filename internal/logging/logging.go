// Package logging builds the structured logger from a verbosity preset.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity presets and the zap level each maps to.
const (
	Quiet    = "quiet"    // warn
	Standard = "standard" // info
	Verbose  = "verbose"  // debug
)

// Level maps a preset, or a zap level name, to a zap level. Unknown values
// fall back to the quiet preset.
func Level(verbosity string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(verbosity)) {
	case Standard, "info":
		return zapcore.InfoLevel
	case Verbose, "debug":
		return zapcore.DebugLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}

// Options controls logger construction.
type Options struct {
	Verbosity string
	Format    string    // "console" (default) or "json"
	Output    io.Writer // Defaults to stderr
}

// New builds a logger writing to Options.Output.
func New(opts Options) (*zap.Logger, error) {
	enc, err := newEncoder(opts.Format)
	if err != nil {
		return nil, err
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(out)), zap.NewAtomicLevelAt(Level(opts.Verbosity)))
	return zap.New(core, zap.AddStacktrace(zapcore.DPanicLevel)).Named("agentrules"), nil
}

func newEncoder(format string) (zapcore.Encoder, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	switch format {
	case "", "console":
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encoderCfg), nil
	case "json":
		return zapcore.NewJSONEncoder(encoderCfg), nil
	default:
		return nil, fmt.Errorf("unknown log format %q, expected console or json", format)
	}
}

// Sync flushes the logger, ignoring the errors stderr returns on some
// platforms.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err != nil && (errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EBADF)) {
		return nil
	}
	return err
}
