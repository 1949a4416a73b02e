package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// field is the concrete Field implementation. It keeps the plain key/value
// pair alongside the prepared zap.Field so structured sinks pay no
// conversion cost.
type field struct {
	key   string
	value interface{}
	zf    zap.Field
}

func (f field) Key() string         { return f.key }
func (f field) Value() interface{}  { return f.value }
func (f field) ZapField() zap.Field { return f.zf }

// String creates a string field.
func String(key, value string) Field {
	return field{key: key, value: value, zf: zap.String(key, value)}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return field{key: key, value: value, zf: zap.Int(key, value)}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return field{key: key, value: value, zf: zap.Int64(key, value)}
}

// Uint creates a uint field.
func Uint(key string, value uint) Field {
	return field{key: key, value: value, zf: zap.Uint(key, value)}
}

// Uint64 creates a uint64 field.
func Uint64(key string, value uint64) Field {
	return field{key: key, value: value, zf: zap.Uint64(key, value)}
}

// Float64 creates a float64 field.
func Float64(key string, value float64) Field {
	return field{key: key, value: value, zf: zap.Float64(key, value)}
}

// Bool creates a bool field.
func Bool(key string, value bool) Field {
	return field{key: key, value: value, zf: zap.Bool(key, value)}
}

// Time creates a time field.
func Time(key string, value time.Time) Field {
	return field{key: key, value: value, zf: zap.Time(key, value)}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return field{key: key, value: value, zf: zap.Duration(key, value)}
}

// Error creates an error field under the conventional "error" key.
func Error(err error) Field {
	return field{key: "error", value: err, zf: zap.Error(err)}
}

// NamedError creates an error field under a custom key.
func NamedError(key string, err error) Field {
	return field{key: key, value: err, zf: zap.NamedError(key, err)}
}

// Stringer creates a field from a fmt.Stringer.
func Stringer(key string, value fmt.Stringer) Field {
	return field{key: key, value: value, zf: zap.Stringer(key, value)}
}

// Strings creates a string slice field.
func Strings(key string, value []string) Field {
	return field{key: key, value: value, zf: zap.Strings(key, value)}
}

// Any creates a field with an arbitrary value.
func Any(key string, value interface{}) Field {
	return field{key: key, value: value, zf: zap.Any(key, value)}
}

// Stack creates a field carrying the current goroutine's stack trace.
func Stack(key string) Field {
	zf := zap.Stack(key)

	return field{key: key, value: zf.String, zf: zf}
}

// Namespace opens a nested field namespace.
func Namespace(key string) Field {
	return field{key: key, zf: zap.Namespace(key)}
}

// RequestID creates a request ID field.
func RequestID(id string) Field {
	return String("request_id", id)
}

// TraceID creates a trace ID field.
func TraceID(id string) Field {
	return String("trace_id", id)
}

// ContextFields collects the request-scoped identifiers stored on the
// context into log fields.
func ContextFields(ctx contextLike) []Field {
	if ctx == nil {
		return nil
	}

	var fields []Field

	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, RequestID(id))
	}

	if id := TraceIDFromContext(ctx); id != "" {
		fields = append(fields, TraceID(id))
	}

	return fields
}
