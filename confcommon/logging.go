// Package confcommon holds the ambient, cross-package conveniences used by
// every binary in this module: structured logging setup and the build
// version string stamped into it.
package confcommon

import (
	"context"
	"log/slog"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is overridden at link time via -ldflags "-X ... confcommon.Version=...".
var Version = "dev"

// LoggingOpts configures SetupLogger.
type LoggingOpts struct {
	Debug   bool
	JSON    bool
	Service string
	Version string
}

// SetupLogger builds a slog.Logger backed by a zap core, so every log line
// in the binary goes through zap's encoders while callers keep using the
// slog API (With, Info, Error, ...).
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opts.JSON {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	logger := slog.New(newZapHandler(core, level))

	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	if opts.Version != "" {
		logger = logger.With("version", opts.Version)
	}
	return logger
}

// zapHandler adapts a zapcore.Core to the slog.Handler interface, so that
// zap's encoders and sinks back every slog call site in the module.
type zapHandler struct {
	core  zapcore.Core
	level zapcore.Level
}

func newZapHandler(core zapcore.Core, level zapcore.Level) *zapHandler {
	return &zapHandler{core: core, level: level}
}

func (h *zapHandler) Enabled(_ context.Context, level slog.Level) bool {
	return slogToZapLevel(level) >= h.level
}

func (h *zapHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]zapcore.Field, 0, record.NumAttrs())
	record.Attrs(func(a slog.Attr) bool {
		fields = append(fields, zap.Any(a.Key, a.Value.Any()))
		return true
	})

	entry := zapcore.Entry{
		Level:   slogToZapLevel(record.Level),
		Time:    record.Time,
		Message: record.Message,
	}
	if checked := h.core.Check(entry, nil); checked != nil {
		checked.Write(fields...)
	}
	return nil
}

func (h *zapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make([]zapcore.Field, 0, len(attrs))
	for _, a := range attrs {
		fields = append(fields, zap.Any(a.Key, a.Value.Any()))
	}
	return &zapHandler{core: h.core.With(fields), level: h.level}
}

func (h *zapHandler) WithGroup(name string) slog.Handler {
	return &zapHandler{core: h.core.With([]zapcore.Field{zap.Namespace(name)}), level: h.level}
}

func slogToZapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
