// Package log provides structured logging with session context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for engine paths (structured fields)
//   - SugaredLogger: Printf-style logging for CLI/debug surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured logging. When created for a session, every
// entry carries the session identity fields so concurrent extraction and
// restoration runs can be told apart in the stream.
//
// Use this for engine paths. For CLI/debug surfaces, use Sugar() to get
// a SugaredLogger.
type Logger struct {
	zap *zap.Logger
}

// SugaredLogger provides printf-style logging for CLI and debug surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a logger writing JSON lines to os.Stderr.
func NewLogger() *Logger {
	return newLoggerWithWriter(os.Stderr)
}

// NewNop returns a logger that discards everything. Used where a logger
// is required but output is unwanted, such as tests and optional deps.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// ForSession returns a logger that stamps every entry with the session
// identity.
func (l *Logger) ForSession(sessionID, kind string) *Logger {
	return &Logger{zap: l.zap.With(
		zap.String("session_id", sessionID),
		zap.String("session_kind", kind),
	)}
}

// WithOutput returns a new logger with a different output writer.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	core := newCore(w)
	return &Logger{zap: l.zap.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))}
}

func newLoggerWithWriter(w io.Writer) *Logger {
	return &Logger{zap: zap.New(newCore(w))}
}

func newCore(w io.Writer) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
