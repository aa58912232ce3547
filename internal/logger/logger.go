package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// timeLayout gives millisecond precision: 2024-01-15 14:30:45.123
const timeLayout = "2006-01-02 15:04:05.000"

var (
	mu    sync.RWMutex
	base  = zap.NewNop()
	sugar = base.Sugar()
)

// Init installs the global logger writing to stdout at the given level
// (debug, info, warn, error).
func Init(level string) error {
	l, err := New(os.Stdout, level)
	if err != nil {
		return err
	}

	Set(l)

	return nil
}

// New builds a console logger writing to out.
// Format: 2024-01-15 14:30:45.123 [INF] message {"key": "value"}
func New(out io.Writer, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	cfg.EncodeLevel = shortLevel
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	cfg.ConsoleSeparator = " "
	cfg.CallerKey = zapcore.OmitKey
	cfg.StacktraceKey = zapcore.OmitKey

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(out), lvl)

	return zap.New(core), nil
}

// Set replaces the global logger.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()

	base = l
	sugar = l.Sugar()
	zap.ReplaceGlobals(l)
}

// L returns the global structured logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()

	return base
}

// Sync flushes buffered entries.
func Sync() error {
	return L().Sync()
}

// shortLevel writes a three-letter level tag.
func shortLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch l {
	case zapcore.DebugLevel:
		enc.AppendString("[DBG]")
	case zapcore.InfoLevel:
		enc.AppendString("[INF]")
	case zapcore.WarnLevel:
		enc.AppendString("[WRN]")
	case zapcore.ErrorLevel:
		enc.AppendString("[ERR]")
	default:
		enc.AppendString("[???]")
	}
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()

	return sugar
}

// Info logs at INFO level.
func Info(msg string, args ...any) {
	current().Infow(msg, args...)
}

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) {
	current().Debugw(msg, args...)
}

// Warn logs at WARN level.
func Warn(msg string, args ...any) {
	current().Warnw(msg, args...)
}

// Error logs at ERROR level.
func Error(msg string, args ...any) {
	current().Errorw(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *zap.SugaredLogger {
	return current().With(args...)
}

// Timed returns elapsed time since start for logging duration.
func Timed(start time.Time) zap.Field {
	return zap.Duration("elapsed", time.Since(start))
}
