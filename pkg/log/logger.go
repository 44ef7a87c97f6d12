package log

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Logger provides structured logging capabilities.
// Implementations can wrap zerolog, zap, logrus, or any other logging library.
type Logger interface {
	// Debug logs a debug-level message with fields.
	Debug(msg string, fields ...Field)

	// Info logs an info-level message with fields.
	Info(msg string, fields ...Field)

	// Warn logs a warning-level message with fields.
	Warn(msg string, fields ...Field)

	// Error logs an error-level message with fields.
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Uint64 creates a uint64 field.
func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a float64 field.
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field with key "error".
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// UUID creates a field holding the canonical string form of id.
func UUID(key string, id uuid.UUID) Field {
	return Field{Key: key, Value: id.String()}
}

// Stringer creates a field from a fmt.Stringer, rendered lazily by the adapter.
func Stringer(key string, value fmt.Stringer) Field {
	return Field{Key: key, Value: value}
}

// Any creates a field with any value.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// ObjectID creates the "object_id" field naming a stored object.
func ObjectID(id uuid.UUID) Field {
	return UUID("object_id", id)
}

// TypeID creates the "type_id" field naming a helper's persistent type id.
func TypeID(id uuid.UUID) Field {
	return UUID("type_id", id)
}

// TypeName creates the "type" field holding a helper's registered name.
func TypeName(name string) Field {
	return String("type", name)
}

// binder is implemented by loggers that attach fields natively.
type binder interface {
	with(fields []Field) Logger
}

// With returns a Logger that adds fields to every message logged through it.
func With(l Logger, fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	if b, ok := l.(binder); ok {
		return b.with(fields)
	}
	if w, ok := l.(*withLogger); ok {
		return &withLogger{next: w.next, fields: append(append([]Field(nil), w.fields...), fields...)}
	}
	return &withLogger{next: l, fields: append([]Field(nil), fields...)}
}

type withLogger struct {
	next   Logger
	fields []Field
}

func (w *withLogger) join(fields []Field) []Field {
	out := make([]Field, 0, len(w.fields)+len(fields))
	return append(append(out, w.fields...), fields...)
}

func (w *withLogger) Debug(msg string, fields ...Field) { w.next.Debug(msg, w.join(fields)...) }
func (w *withLogger) Info(msg string, fields ...Field)  { w.next.Info(msg, w.join(fields)...) }
func (w *withLogger) Warn(msg string, fields ...Field)  { w.next.Warn(msg, w.join(fields)...) }
func (w *withLogger) Error(msg string, fields ...Field) { w.next.Error(msg, w.join(fields)...) }
