package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	fderrors "github.com/YuminosukeSato/fdtree/pkg/errors"
)

var (
	providerMu sync.RWMutex
	root       = newRoot(os.Stderr, LevelInfo)
	provider   LoggerProvider = zerologProvider{}
)

func init() {
	fderrors.SetZerologWarnFunc(func(w error) {
		e := rootLogger().Warn()
		if m, ok := w.(zerolog.LogObjectMarshaler); ok {
			e = e.EmbedObject(m)
		}
		e.Msg(w.Error())
	})
}

func newRoot(w io.Writer, level Level) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger().Level(toZerolog(level))
}

func rootLogger() *zerolog.Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	l := root
	return &l
}

// GetLogger returns a logger from the active provider.
func GetLogger() Logger {
	providerMu.RLock()
	p := provider
	providerMu.RUnlock()
	return p.GetLogger()
}

// GetLoggerWithName returns a logger tagged with the component name.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	p := provider
	providerMu.RUnlock()
	return p.GetLoggerWithName(name)
}

// SetLevel sets the minimum level of the active provider.
func SetLevel(level Level) {
	providerMu.RLock()
	p := provider
	providerMu.RUnlock()
	p.SetLevel(level)
}

// SetOutput redirects the zerolog provider. When console is true records are
// rendered with zerolog.ConsoleWriter instead of JSON lines.
func SetOutput(w io.Writer, console bool) {
	providerMu.Lock()
	defer providerMu.Unlock()
	level := fromZerolog(root.GetLevel())
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	root = newRoot(w, level)
}

// SetProvider replaces the provider used by GetLogger and GetLoggerWithName.
// Passing nil restores the zerolog provider.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	if p == nil {
		p = zerologProvider{}
	}
	provider = p
}

// ParseLevel converts a textual level ("debug", "info", "warn", "error").
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fderrors.NewValidationError("log-level", "must be one of debug, info, warn, error", s)
}

type zerologProvider struct{}

func (zerologProvider) GetLogger() Logger {
	return &zerologLogger{zl: *rootLogger()}
}

func (zerologProvider) GetLoggerWithName(name string) Logger {
	return &zerologLogger{zl: rootLogger().With().Str(ComponentKey, name).Logger()}
}

func (zerologProvider) SetLevel(level Level) {
	providerMu.Lock()
	defer providerMu.Unlock()
	root = root.Level(toZerolog(level))
}

// zerologLogger adapts zerolog.Logger to Logger.
type zerologLogger struct {
	zl zerolog.Logger
}

func (l *zerologLogger) Debug(msg string, fields ...any) { emit(l.zl.Debug(), msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...any)  { emit(l.zl.Info(), msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...any)  { emit(l.zl.Warn(), msg, fields) }

func (l *zerologLogger) Error(msg string, fields ...any) {
	e := l.zl.Error()
	if e == nil {
		return
	}
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			e = e.Err(err)
			if st := extractStacktrace(err); st != "" {
				e = e.Str(StacktraceKey, st)
			}
			fields = fields[1:]
		}
	}
	emit(e, msg, fields)
}

func (l *zerologLogger) With(fields ...any) Logger {
	return &zerologLogger{zl: l.zl.With().Fields(pairs(fields)).Logger()}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	zl := toZerolog(level)
	return zl >= l.zl.GetLevel() && zl >= zerolog.GlobalLevel()
}

func emit(e *zerolog.Event, msg string, fields []any) {
	if e == nil {
		return
	}
	if len(fields) > 0 {
		e = e.Fields(pairs(fields))
	}
	e.Msg(msg)
}

// pairs drops a trailing key without value.
func pairs(fields []any) []any {
	if len(fields)%2 == 1 {
		return fields[:len(fields)-1]
	}
	return fields
}

// extractStacktrace renders the verbose form of a cockroachdb error, which
// includes the stack captured by WithStack. Plain errors yield "".
func extractStacktrace(err error) string {
	if errors.GetReportableStackTrace(err) == nil && errors.UnwrapOnce(err) == nil {
		return ""
	}
	verbose := fmt.Sprintf("%+v", err)
	if verbose == err.Error() {
		return ""
	}
	return verbose
}

func toZerolog(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func fromZerolog(level zerolog.Level) Level {
	switch level {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		return LevelDebug
	case zerolog.InfoLevel:
		return LevelInfo
	case zerolog.WarnLevel:
		return LevelWarn
	default:
		return LevelError
	}
}
