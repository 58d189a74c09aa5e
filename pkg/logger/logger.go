package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the structured logger. LOG_FORMAT=console switches to
// human-readable output for local runs.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	WarnStack   bool
	Output      io.Writer
}

// Logger writes JSON lines through zerolog. Per-request fields ride on the
// context, so handlers and services log with whatever the middleware attached.
type Logger struct {
	root      zerolog.Logger
	warnStack bool
}

func New(opts Options) *Logger {
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	return &Logger{
		root:      zerolog.New(out).Level(level).With().Timestamp().Str("service", opts.ServiceName).Logger(),
		warnStack: opts.WarnStack,
	}
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// from returns the context logger, or the root logger when none is attached.
func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if scoped := zerolog.Ctx(ctx); scoped.GetLevel() != zerolog.Disabled {
			return scoped
		}
	}
	return &l.root
}

func (l *Logger) extend(ctx context.Context, build func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	child := build(l.from(ctx).With()).Logger()
	return child.WithContext(ctx)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.extend(ctx, func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) })
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.extend(ctx, func(c zerolog.Context) zerolog.Context { return c.Fields(fields) })
}

func (l *Logger) withString(ctx context.Context, key, value string) context.Context {
	return l.extend(ctx, func(c zerolog.Context) zerolog.Context { return c.Str(key, value) })
}

// WithRequestID tags the HTTP correlation id.
func (l *Logger) WithRequestID(ctx context.Context, id string) context.Context {
	return l.withString(ctx, "request_id", id)
}

func (l *Logger) WithUserID(ctx context.Context, id string) context.Context {
	return l.withString(ctx, "user_id", id)
}

func (l *Logger) WithActorRole(ctx context.Context, role string) context.Context {
	return l.withString(ctx, "actor_role", role)
}

// WithToolRequestID tags the borrow request a log line is about.
func (l *Logger) WithToolRequestID(ctx context.Context, id string) context.Context {
	return l.withString(ctx, "tool_request_id", id)
}

func (l *Logger) WithToolID(ctx context.Context, id string) context.Context {
	return l.withString(ctx, "tool_id", id)
}

func (l *Logger) Debug(ctx context.Context, msg string) { l.from(ctx).Debug().Msg(msg) }

func (l *Logger) Info(ctx context.Context, msg string) { l.from(ctx).Info().Msg(msg) }

func (l *Logger) Warn(ctx context.Context, msg string) {
	ev := l.from(ctx).Warn()
	if l.warnStack {
		ev = ev.Str("stack", stack())
	}
	ev.Msg(msg)
}

// Error always carries a stack; errors are rare enough that the cost is fine.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	l.from(ctx).Error().Err(err).Str("stack", stack()).Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
