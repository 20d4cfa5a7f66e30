// Package logging provides the leveled logging sink every engine
// component is constructed with. It wraps zap, matching the way the
// rest of the Modbus ecosystem instruments its transports (see
// github.com/rinzlerlabs/gomodbus, whose RTU/TCP transports carry a
// *zap.Logger end to end).
package logging

import (
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface every engine component takes as a constructor
// parameter, so a caller can supply its own sink without the engine ever
// reaching for a process-wide registry.
type Logger interface {
	Debug(msg string)
	Debugf(format string, args ...interface{})
	Info(msg string)
	Infof(format string, args ...interface{})
	Warning(msg string)
	Warningf(format string, args ...interface{})
	Error(msg string)
	Errorf(format string, args ...interface{})
	Fatal(msg string)
	Fatalf(format string, args ...interface{})
}

type zapLogger struct {
	prefix string
	sugar  *zap.SugaredLogger
}

// New returns a Logger that tags every line with prefix. If dest is
// non-nil, log output is routed through its writer (so callers can keep
// pointing a standard *log.Logger at a file, buffer, or syslog sink);
// otherwise it goes to stdout.
func New(prefix string, dest *log.Logger) Logger {
	var ws zapcore.WriteSyncer
	if dest != nil {
		ws = zapcore.AddSync(dest.Writer())
	} else {
		ws = zapcore.AddSync(os.Stdout)
	}

	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey: "msg",
		LineEnding: zapcore.DefaultLineEnding,
	})

	core := zapcore.NewCore(enc, ws, zapcore.DebugLevel)

	return &zapLogger{
		prefix: prefix,
		sugar:  zap.New(core).Sugar(),
	}
}

// Discard is a Logger that drops every message, used where no sink was
// configured and the caller explicitly opted out of logging.
func Discard() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

func (l *zapLogger) line(level string, msg string) string {
	if l.prefix == "" {
		return fmt.Sprintf("[%s]: %s", level, msg)
	}
	return fmt.Sprintf("%s [%s]: %s", l.prefix, level, msg)
}

func (l *zapLogger) Debug(msg string) { l.sugar.Debug(l.line("debug", msg)) }
func (l *zapLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debug(l.line("debug", fmt.Sprintf(format, args...)))
}

func (l *zapLogger) Info(msg string) { l.sugar.Info(l.line("info", msg)) }
func (l *zapLogger) Infof(format string, args ...interface{}) {
	l.sugar.Info(l.line("info", fmt.Sprintf(format, args...)))
}

func (l *zapLogger) Warning(msg string) { l.sugar.Warn(l.line("warn", msg)) }
func (l *zapLogger) Warningf(format string, args ...interface{}) {
	l.sugar.Warn(l.line("warn", fmt.Sprintf(format, args...)))
}

func (l *zapLogger) Error(msg string) { l.sugar.Error(l.line("error", msg)) }
func (l *zapLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Error(l.line("error", fmt.Sprintf(format, args...)))
}

func (l *zapLogger) Fatal(msg string) { l.Error(msg); os.Exit(1) }
func (l *zapLogger) Fatalf(format string, args ...interface{}) {
	l.Errorf(format, args...)
	os.Exit(1)
}
