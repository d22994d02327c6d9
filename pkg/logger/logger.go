package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

var ctxKey = loggerKey{}

type loggerKey struct{}

type handler int

const (
	JSONHandler handler = iota
	TextHandler
	DevHandler
)

// Custom levels sit between and beyond the slog defaults, see
// https://go.dev/src/log/slog/example_custom_levels_test.go
const (
	DefaultLevel = slog.LevelInfo

	LevelTrace     = slog.Level(-8)
	LevelDebug     = slog.LevelDebug
	LevelInfo      = slog.LevelInfo
	LevelNotice    = slog.Level(2)
	LevelWarning   = slog.LevelWarn
	LevelError     = slog.LevelError
	LevelEmergency = slog.Level(12)
)

type Logger interface {
	Debug(msg string, args ...any)
	DebugContext(ctx context.Context, msg string, args ...any)
	Info(msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	Warn(msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	Error(msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
	Log(ctx context.Context, level slog.Level, msg string, args ...any)
	Handler() slog.Handler
	Level() slog.Level
	With(args ...any) Logger

	Trace(msg string, args ...any)
	TraceContext(ctx context.Context, msg string, args ...any)
	Notice(msg string, args ...any)
	Emergency(msg string, args ...any)
	SLog() *slog.Logger
}

type Opt func(o *options)

type options struct {
	writer  io.Writer
	level   slog.Level
	handler handler
}

func WithLevel(lvl slog.Level) Opt {
	return func(o *options) {
		o.level = lvl
	}
}

func WithWriter(w io.Writer) Opt {
	return func(o *options) {
		o.writer = w
	}
}

func WithHandler(h handler) Opt {
	return func(o *options) {
		o.handler = h
	}
}

// HandlerFromString maps the LOG_HANDLER / log.format values onto a handler.
// Unknown values fall back to the dev handler.
func HandlerFromString(s string) handler {
	switch strings.ToLower(s) {
	case "json":
		return JSONHandler
	case "txt", "text":
		return TextHandler
	default:
		return DevHandler
	}
}

// New builds a logger.  Without options the handler and level are read from
// LOG_HANDLER and LOG_LEVEL.
func New(opts ...Opt) Logger {
	o := &options{
		level:   ParseLevel(os.Getenv("LOG_LEVEL")),
		writer:  os.Stderr,
		handler: HandlerFromString(os.Getenv("LOG_HANDLER")),
	}
	for _, apply := range opts {
		apply(o)
	}

	switch o.handler {
	case DevHandler:
		return &logger{
			Logger: slog.New(tint.NewHandler(o.writer, &tint.Options{
				Level:       o.level,
				TimeFormat:  "[15:04:05.000]",
				ReplaceAttr: tintLevels,
			})),
			level: o.level,
		}
	case TextHandler:
		return &logger{
			Logger: slog.New(slog.NewTextHandler(o.writer, &slog.HandlerOptions{Level: o.level, ReplaceAttr: levelNames})),
			level:  o.level,
		}
	default:
		return &logger{
			Logger: slog.New(slog.NewJSONHandler(o.writer, &slog.HandlerOptions{Level: o.level, ReplaceAttr: levelNames})),
			level:  o.level,
		}
	}
}

func levelNames(groups []string, attr slog.Attr) slog.Attr {
	if attr.Key != slog.LevelKey || len(groups) != 0 {
		return attr
	}
	lvl, ok := attr.Value.Any().(slog.Level)
	if !ok {
		return attr
	}
	switch lvl {
	case LevelTrace:
		return slog.String(attr.Key, "TRACE")
	case LevelNotice:
		return slog.String(attr.Key, "NOTICE")
	case LevelEmergency:
		return slog.String(attr.Key, "EMERGENCY")
	}
	return attr
}

// tintLevels colours the custom levels; warn and error keep tint's defaults.
func tintLevels(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) != 0 {
		return a
	}
	lvl, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	switch lvl {
	case LevelTrace:
		return tint.Attr(13, slog.String(a.Key, "TRC"))
	case LevelDebug:
		return tint.Attr(3, slog.String(a.Key, "DBG"))
	case LevelInfo:
		return tint.Attr(14, slog.String(a.Key, "INF"))
	case LevelNotice:
		return tint.Attr(10, slog.String(a.Key, "NTC"))
	case LevelEmergency:
		return tint.Attr(9, slog.String(a.Key, "EMR"))
	}
	return a
}

// StdlibLogger returns the logger stored in ctx, or a new env-configured
// logger if none is stored.
func StdlibLogger(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey).(Logger); ok {
		return l
	}
	return New()
}

// WithStdlib stores l in the returned context.
func WithStdlib(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey, l)
}

func VoidLogger() Logger {
	return New(WithWriter(io.Discard))
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "notice":
		return LevelNotice
	case "warn", "warning":
		return LevelWarning
	case "error":
		return LevelError
	case "emergency":
		return LevelEmergency
	default:
		return DefaultLevel
	}
}

type logger struct {
	*slog.Logger
	level slog.Level
}

func (l *logger) Level() slog.Level {
	return l.level
}

func (l *logger) With(args ...any) Logger {
	if len(args) == 0 {
		return l
	}
	return &logger{
		Logger: l.Logger.With(args...),
		level:  l.level,
	}
}

func (l *logger) Trace(msg string, args ...any) {
	l.Logger.Log(context.Background(), LevelTrace, msg, args...)
}

func (l *logger) TraceContext(ctx context.Context, msg string, args ...any) {
	l.Logger.Log(ctx, LevelTrace, msg, args...)
}

func (l *logger) Notice(msg string, args ...any) {
	l.Logger.Log(context.Background(), LevelNotice, msg, args...)
}

func (l *logger) Emergency(msg string, args ...any) {
	l.Logger.Log(context.Background(), LevelEmergency, msg, args...)
}

func (l *logger) SLog() *slog.Logger {
	return l.Logger
}
