package log

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// ZerologAdapter implements Logger on a zerolog.Logger. Fields bound with
// With are encoded once into the zerolog context instead of on every
// message.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter writes console lines with timestamps to w, dropping
// messages below level.
func NewZerologAdapter(w io.Writer, level zerolog.Level) *ZerologAdapter {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return NewZerologAdapterWithLogger(zerolog.New(output).Level(level).With().Timestamp().Logger())
}

// NewZerologAdapterWithLogger creates an adapter wrapping an existing zerolog.Logger.
func NewZerologAdapterWithLogger(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

func (z *ZerologAdapter) Debug(msg string, fields ...Field) { emit(z.logger.Debug(), msg, fields) }
func (z *ZerologAdapter) Info(msg string, fields ...Field)  { emit(z.logger.Info(), msg, fields) }
func (z *ZerologAdapter) Warn(msg string, fields ...Field)  { emit(z.logger.Warn(), msg, fields) }
func (z *ZerologAdapter) Error(msg string, fields ...Field) { emit(z.logger.Error(), msg, fields) }

// Logger returns the underlying zerolog.Logger.
func (z *ZerologAdapter) Logger() zerolog.Logger {
	return z.logger
}

func (z *ZerologAdapter) with(fields []Field) Logger {
	ctx := z.logger.With()
	for _, f := range fields {
		ctx = appendField(ctx, f)
	}
	return &ZerologAdapter{logger: ctx.Logger()}
}

// emit is a no-op for a nil event, which zerolog returns when the level is
// disabled, so fields of filtered messages are never converted.
func emit(event *zerolog.Event, msg string, fields []Field) {
	if event == nil {
		return
	}
	for _, f := range fields {
		event = appendField(event, f)
	}
	event.Msg(msg)
}

// fieldSink is the part of the API shared by *zerolog.Event and
// zerolog.Context.
type fieldSink[T any] interface {
	Str(key, val string) T
	Int(key string, i int) T
	Int64(key string, i int64) T
	Uint64(key string, i uint64) T
	Float64(key string, f float64) T
	Bool(key string, b bool) T
	Dur(key string, d time.Duration) T
	Err(err error) T
	Stringer(key string, val fmt.Stringer) T
	Interface(key string, i interface{}) T
}

func appendField[T fieldSink[T]](sink T, f Field) T {
	switch v := f.Value.(type) {
	case string:
		return sink.Str(f.Key, v)
	case int:
		return sink.Int(f.Key, v)
	case int64:
		return sink.Int64(f.Key, v)
	case uint64:
		return sink.Uint64(f.Key, v)
	case float64:
		return sink.Float64(f.Key, v)
	case bool:
		return sink.Bool(f.Key, v)
	case time.Duration:
		return sink.Dur(f.Key, v)
	case error:
		return sink.Err(v)
	case fmt.Stringer:
		return sink.Stringer(f.Key, v)
	default:
		return sink.Interface(f.Key, v)
	}
}
