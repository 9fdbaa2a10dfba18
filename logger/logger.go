package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// The slog loggers handed out by this package all funnel into a shared
// zap JSON core so that the logging level and the output destination can
// be swapped at runtime (tests redirect the sink with
// SetDynamicWriteSyncer).

var (
	dynamicLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	dynamicSyncer = &swappableWriteSyncer{syncer: zapcore.Lock(os.Stderr)}

	encoderMu   sync.RWMutex
	timeEncoder = zapcore.EpochTimeEncoder
)

// We add 1 to zap's level numbers so that debug is emitted as 0 and
// info and above as positive numbers.
func encodeLevelNumber(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendInt(int(l) + 1)
}

func encoderConfig() zapcore.EncoderConfig {
	encoderMu.RLock()
	defer encoderMu.RUnlock()
	return zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "log_level",
		TimeKey:        "timestamp",
		NameKey:        "logger",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    encodeLevelNumber,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}
}

type swappableWriteSyncer struct {
	sync.RWMutex
	syncer zapcore.WriteSyncer
}

func (s *swappableWriteSyncer) Write(b []byte) (int, error) {
	s.RLock()
	defer s.RUnlock()
	return s.syncer.Write(b)
}

func (s *swappableWriteSyncer) Sync() error {
	s.RLock()
	defer s.RUnlock()
	return s.syncer.Sync()
}

func (s *swappableWriteSyncer) Set(syncer zapcore.WriteSyncer) {
	s.Lock()
	defer s.Unlock()
	s.syncer = syncer
}

// CreateLogger returns a new slog logger backed by the shared zap core.
func CreateLogger() *slog.Logger {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), dynamicSyncer, dynamicLevel)
	return slog.New(&zapSlogHandler{core: core})
}

// CreateLoggerWithSource returns a logger tagged with a source built
// from the component and an optional subcomponent.
func CreateLoggerWithSource(component string, subcomponent string) *slog.Logger {
	source := component
	if subcomponent != "" {
		source = component + "." + subcomponent
	}
	return CreateLogger().With(slog.String("source", source))
}

// SetLoggingLevel adjusts the level of every logger created by this
// package. Unknown names leave the level untouched.
func SetLoggingLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		dynamicLevel.SetLevel(zapcore.DebugLevel)
	case "info":
		dynamicLevel.SetLevel(zapcore.InfoLevel)
	case "warn":
		dynamicLevel.SetLevel(zapcore.WarnLevel)
	case "error":
		dynamicLevel.SetLevel(zapcore.ErrorLevel)
	case "fatal":
		dynamicLevel.SetLevel(zapcore.FatalLevel)
	}
}

// SetTimeEncoder selects the timestamp encoding for loggers created
// after the call: "rfc3339" or the default unix epoch.
func SetTimeEncoder(enc string) {
	encoderMu.Lock()
	defer encoderMu.Unlock()
	switch strings.ToLower(enc) {
	case "rfc3339":
		timeEncoder = zapcore.RFC3339NanoTimeEncoder
	default:
		timeEncoder = zapcore.EpochTimeEncoder
	}
}

// SetDynamicWriteSyncer redirects the output of every logger created by
// this package, including loggers created before the call.
func SetDynamicWriteSyncer(syncer zapcore.WriteSyncer) {
	dynamicSyncer.Set(syncer)
}

// ErrAttr wraps an error as the conventional "error" attribute.
func ErrAttr(err error) slog.Attr {
	return slog.Any("error", err)
}

// Fatal logs the message at error level and exits the process.
func Fatal(logger *slog.Logger, msg string, attrs ...any) {
	logger.Error(msg, attrs...)
	os.Exit(1)
}

// Panic logs the message at error level and panics.
func Panic(logger *slog.Logger, msg string, attrs ...any) {
	logger.Error(msg, attrs...)
	panic(msg)
}

type zapSlogHandler struct {
	core  zapcore.Core
	attrs []zapcore.Field
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

func (h *zapSlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.core.Enabled(slogToZapLevel(level))
}

func (h *zapSlogHandler) Handle(_ context.Context, record slog.Record) error {
	entry := zapcore.Entry{
		Level:   slogToZapLevel(record.Level),
		Time:    record.Time,
		Message: record.Message,
	}
	checked := h.core.Check(entry, nil)
	if checked == nil {
		return nil
	}

	fields := make([]zapcore.Field, 0, len(h.attrs)+record.NumAttrs())
	fields = append(fields, h.attrs...)
	record.Attrs(func(a slog.Attr) bool {
		fields = append(fields, attrToField(a))
		return true
	})
	checked.Write(fields...)
	return nil
}

func (h *zapSlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make([]zapcore.Field, 0, len(h.attrs)+len(attrs))
	fields = append(fields, h.attrs...)
	for _, a := range attrs {
		fields = append(fields, attrToField(a))
	}
	return &zapSlogHandler{core: h.core, attrs: fields}
}

func (h *zapSlogHandler) WithGroup(name string) slog.Handler {
	fields := make([]zapcore.Field, 0, len(h.attrs)+1)
	fields = append(fields, h.attrs...)
	fields = append(fields, zap.Namespace(name))
	return &zapSlogHandler{core: h.core, attrs: fields}
}

func attrToField(a slog.Attr) zapcore.Field {
	value := a.Value.Resolve()
	switch value.Kind() {
	case slog.KindString:
		return zap.String(a.Key, value.String())
	case slog.KindInt64:
		return zap.Int64(a.Key, value.Int64())
	case slog.KindUint64:
		return zap.Uint64(a.Key, value.Uint64())
	case slog.KindFloat64:
		return zap.Float64(a.Key, value.Float64())
	case slog.KindBool:
		return zap.Bool(a.Key, value.Bool())
	case slog.KindDuration:
		return zap.Duration(a.Key, value.Duration())
	case slog.KindTime:
		return zap.Time(a.Key, value.Time())
	default:
		if err, ok := value.Any().(error); ok {
			return zap.NamedError(a.Key, err)
		}
		return zap.Any(a.Key, value.Any())
	}
}
