package logging

import (
	"fmt"
	"io"
	"log/slog"

	echolog "github.com/labstack/gommon/log"
)

// EchoLogger adapts a slog.Logger to the echo.Logger interface so the
// framework's own messages (recover dumps, TLS errors) land in the
// structured log stream instead of echo's built-in writer.
//
// Usage:
//
//	e := echo.New()
//	e.Logger = logging.NewEchoLogger(logging.ForService("echo"))
type EchoLogger struct {
	logger *slog.Logger
}

// NewEchoLogger wraps the given slog logger. A nil logger falls back to
// the process default.
func NewEchoLogger(logger *slog.Logger) *EchoLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EchoLogger{logger: logger}
}

// Output returns the output destination. Output is managed by the slog
// handler, so echo gets a discard writer.
func (l *EchoLogger) Output() io.Writer {
	return io.Discard
}

// SetOutput is a no-op, output is managed by the slog handler.
func (l *EchoLogger) SetOutput(_ io.Writer) {}

// Prefix returns the log prefix. Service scoping replaces prefixes.
func (l *EchoLogger) Prefix() string {
	return ""
}

// SetPrefix is a no-op, service scoping replaces prefixes.
func (l *EchoLogger) SetPrefix(_ string) {}

// Level reports INFO; the slog handler decides what is actually emitted.
func (l *EchoLogger) Level() echolog.Lvl {
	return echolog.INFO
}

// SetLevel is a no-op, the level lives in the logging configuration.
func (l *EchoLogger) SetLevel(_ echolog.Lvl) {}

// SetHeader is a no-op, the slog handler owns the output format.
func (l *EchoLogger) SetHeader(_ string) {}

func (l *EchoLogger) Print(i ...any) {
	l.logger.Info(fmt.Sprint(i...))
}

func (l *EchoLogger) Printf(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *EchoLogger) Printj(j echolog.JSON) {
	l.logger.Info("echo log", "data", j)
}

func (l *EchoLogger) Debug(i ...any) {
	l.logger.Debug(fmt.Sprint(i...))
}

func (l *EchoLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *EchoLogger) Debugj(j echolog.JSON) {
	l.logger.Debug("echo log", "data", j)
}

func (l *EchoLogger) Info(i ...any) {
	l.logger.Info(fmt.Sprint(i...))
}

func (l *EchoLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *EchoLogger) Infoj(j echolog.JSON) {
	l.logger.Info("echo log", "data", j)
}

func (l *EchoLogger) Warn(i ...any) {
	l.logger.Warn(fmt.Sprint(i...))
}

func (l *EchoLogger) Warnf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *EchoLogger) Warnj(j echolog.JSON) {
	l.logger.Warn("echo log", "data", j)
}

func (l *EchoLogger) Error(i ...any) {
	l.logger.Error(fmt.Sprint(i...))
}

func (l *EchoLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *EchoLogger) Errorj(j echolog.JSON) {
	l.logger.Error("echo log", "data", j)
}

// Fatal logs at error level and panics so the recover middleware and
// deferred cleanups still run.
func (l *EchoLogger) Fatal(i ...any) {
	msg := fmt.Sprint(i...)
	l.logger.Error(msg)
	panic("echo fatal: " + msg)
}

func (l *EchoLogger) Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Error(msg)
	panic("echo fatal: " + msg)
}

func (l *EchoLogger) Fatalj(j echolog.JSON) {
	l.logger.Error("echo log", "data", j)
	panic(fmt.Sprintf("echo fatal: %v", j))
}

func (l *EchoLogger) Panic(i ...any) {
	msg := fmt.Sprint(i...)
	l.logger.Error(msg)
	panic(msg)
}

func (l *EchoLogger) Panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Error(msg)
	panic(msg)
}

func (l *EchoLogger) Panicj(j echolog.JSON) {
	l.logger.Error("echo log", "data", j)
	panic(fmt.Sprintf("%v", j))
}
