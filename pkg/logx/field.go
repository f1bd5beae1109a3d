package logx

import (
	"time"

	"github.com/rs/zerolog"
)

// Field is one key/value pair attached to a record.
type Field struct {
	key string
	val any
}

func String(key, v string) Field {
	return Field{key, v}
}

func Int(key string, v int) Field {
	return Field{key, v}
}

func Int64(key string, v int64) Field {
	return Field{key, v}
}

func Uint64(key string, v uint64) Field {
	return Field{key, v}
}

func Bool(key string, v bool) Field {
	return Field{key, v}
}

func Float64(key string, v float64) Field {
	return Field{key, v}
}

func Duration(key string, v time.Duration) Field {
	return Field{key, v}
}

func Time(key string, v time.Time) Field {
	return Field{key, v}
}

func Any(key string, v any) Field {
	return Field{key, v}
}

// Err attaches err under the "err" key. A nil error adds nothing.
func Err(err error) Field { return Field{errKey, err} }

const errKey = "err"

func (f Field) write(e *zerolog.Event) {
	switch v := f.val.(type) {
	case nil:
	case string:
		e.Str(f.key, v)
	case int:
		e.Int(f.key, v)
	case int64:
		e.Int64(f.key, v)
	case uint64:
		e.Uint64(f.key, v)
	case bool:
		e.Bool(f.key, v)
	case float64:
		e.Float64(f.key, v)
	case time.Duration:
		e.Dur(f.key, v)
	case time.Time:
		e.Time(f.key, v)
	case error:
		e.AnErr(f.key, v)
	default:
		e.Interface(f.key, v)
	}
}
