// Package logger builds the structured logger shared by every command.
// Decision documents own stdout, so log output only ever goes to the
// writer handed in here (stderr in production).
package logger

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Named children of the root logger.
const (
	SIEMName       = "siem"
	DiagnosticName = "diagnostic"
)

// ParseLevel maps a configured level name to a zap level. An empty name is
// info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// New returns a JSON logger writing to w. An unknown level is reported and
// info is used.
func New(w io.Writer, level string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		zap.NewAtomicLevelAt(lvl),
	)
	return zap.New(core, zap.ErrorOutput(zapcore.Lock(zapcore.AddSync(w)))), err
}

// SIEM returns the sink SIEM events are emitted to.
func SIEM(l *zap.Logger) *zap.Logger {
	return l.Named(SIEMName)
}

// Diagnostic returns the channel for failures that must not reach the
// decision path, such as audit write errors.
func Diagnostic(l *zap.Logger) *zap.Logger {
	return l.Named(DiagnosticName)
}
