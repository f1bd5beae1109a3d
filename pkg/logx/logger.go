package logx

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// callerSkip reaches past emit and the level method to the call site.
const callerSkip = 2

var setupOnce sync.Once

// setup sets the process-wide zerolog knobs the sinks rely on.
func setup() {
	setupOnce.Do(func() {
		zerolog.TimeFieldFormat = timeLayout
		zerolog.ErrorFieldName = errKey
		zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
			return filepath.Base(file) + ":" + strconv.Itoa(line)
		}
	})
}

// source yields the zerolog logger records are written to at call time.
type source interface {
	root() zerolog.Logger
}

type fixed zerolog.Logger

func (f fixed) root() zerolog.Logger { return zerolog.Logger(f) }

// Logger carries a sink source and the fields bound by With. The zero value
// discards everything.
type Logger struct {
	src   source
	bound []Field
}

// Nop returns a Logger that discards everything but is not IsZero.
func Nop() Logger { return Logger{src: fixed(zerolog.Nop())} }

// NewConsole returns a console Logger that is not tied to a Service, for use
// before the Service exists.
func NewConsole(level string) Logger {
	setup()
	zl := zerolog.New(consoleWriter()).Level(ParseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
	return Logger{src: fixed(zl)}
}

// IsZero reports whether l is the zero Logger.
func (l Logger) IsZero() bool { return l.src == nil && len(l.bound) == 0 }

// With returns a Logger that adds fields to every record.
func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	bound := make([]Field, 0, len(l.bound)+len(fields))
	return Logger{src: l.src, bound: append(append(bound, l.bound...), fields...)}
}

func (l Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

func (l Logger) emit(level zerolog.Level, msg string, fields []Field) {
	if l.src == nil {
		return
	}
	zl := l.src.root()
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	e.Caller(callerSkip)
	for _, f := range l.bound {
		f.write(e)
	}
	for _, f := range fields {
		f.write(e)
	}
	e.Msg(msg)
}

// ParseLevel maps a config level name to a zerolog level, or def when unknown.
func ParseLevel(name string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return def
}

func consoleWriter() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeLayout}
}
