/*
Package strlog is the module's structured logging wrapper around
github.com/rs/zerolog: an Init(Config)/global-logger/WithXxx
child-logger shape keyed to the document-store domain's identity
fields (topic, model, object id, producer), plus a context.Context
carrier so a task-local logger can ride along through pkg/taskrt
without every call site threading a Logger parameter by hand.
*/
package strlog

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level is a string-keyed log level, matching zerolog's own naming.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls the global logger built by Init.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Logger wraps a zerolog.Logger behind a small key-value call surface
// so call sites don't depend on zerolog's event-builder API directly.
type Logger struct {
	z zerolog.Logger
}

// global is the process-wide base logger configured by Init.
var global = New(zerolog.New(os.Stdout).With().Timestamp().Logger())

// New wraps an existing zerolog.Logger.
func New(z zerolog.Logger) Logger { return Logger{z: z} }

// Nop returns a Logger that discards everything, used as a safe
// zero-value default when a component is constructed without an
// explicit logger.
func Nop() Logger { return Logger{z: zerolog.Nop()} }

// Init configures the global logger returned by Global.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.JSONOutput {
		global = New(zerolog.New(output).With().Timestamp().Logger())
		return
	}
	global = New(zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger())
}

// Global returns the process-wide base logger.
func Global() Logger { return global }

// WithTopic attaches the outbox/taskrt topic identity to a child logger.
func (l Logger) WithTopic(topic string) Logger { return Logger{z: l.z.With().Str("topic", topic).Logger()} }

// WithModel attaches a schema/collection name.
func (l Logger) WithModel(model string) Logger { return Logger{z: l.z.With().Str("model", model).Logger()} }

// WithObjectID attaches a stored object's id.
func (l Logger) WithObjectID(id string) Logger { return Logger{z: l.z.With().Str("object_id", id).Logger()} }

// WithProducer attaches a producer/client identity.
func (l Logger) WithProducer(producer string) Logger {
	return Logger{z: l.z.With().Str("producer", producer).Logger()}
}

// With attaches arbitrary key/value pairs to a child logger.
func (l Logger) With(kv ...any) Logger {
	ctx := l.z.With()
	ctx = applyPairs(ctx, kv)
	return Logger{z: ctx.Logger()}
}

func (l Logger) Debug(msg string, kv ...any) { emit(l.z.Debug(), msg, kv) }
func (l Logger) Info(msg string, kv ...any)  { emit(l.z.Info(), msg, kv) }
func (l Logger) Warn(msg string, kv ...any)  { emit(l.z.Warn(), msg, kv) }
func (l Logger) Error(msg string, kv ...any) { emit(l.z.Error(), msg, kv) }
func (l Logger) Fatal(msg string, kv ...any) { emit(l.z.Fatal(), msg, kv) }

func emit(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		switch v := kv[i+1].(type) {
		case error:
			e = e.Err(v)
		case string:
			e = e.Str(key, v)
		case int:
			e = e.Int(key, v)
		case int64:
			e = e.Int64(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}

func applyPairs(ctx zerolog.Context, kv []any) zerolog.Context {
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		switch v := kv[i+1].(type) {
		case error:
			ctx = ctx.Str(key, v.Error())
		case string:
			ctx = ctx.Str(key, v)
		case int:
			ctx = ctx.Int(key, v)
		default:
			ctx = ctx.Interface(key, v)
		}
	}
	return ctx
}

type loggerCtxKey struct{}

// ContextWithLogger returns a child context carrying l, retrieved with
// FromContext. pkg/taskrt attaches a per-task logger this way so a
// task's handler and its retry/backoff logging share one identity.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, l)
}

// FromContext returns the logger attached by ContextWithLogger, or the
// global logger if none was attached.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(Logger); ok {
		return l
	}
	return global
}
