package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"ctgmonitor/internal/config"
	"ctgmonitor/internal/domain"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBlue   = "\x1b[34m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiRed    = "\x1b[31m"
	ansiGray   = "\x1b[90m"
)

// consoleToken matches, in priority order, connection statuses, stream tags,
// websocket endpoints, quoted values, and numbers of one rendered line.
var consoleToken = regexp.MustCompile(
	`status=(connected|connecting|disconnected|error)\b` +
		`|stream=\w+` +
		`|\bwss?://[^\s"]+` +
		`|"[^"\n]*"` +
		`|\b\d+(?:\.\d+)?\b`,
)

var statusColors = map[domain.ConnectionStatus]string{
	domain.StatusConnected:    ansiGreen,
	domain.StatusConnecting:   ansiYellow,
	domain.StatusDisconnected: ansiGray,
	domain.StatusError:        ansiRed,
}

// New builds a logger for configured sinks and returns a cleanup function.
// Params: cfg contains console/file sink settings.
// Returns: slog logger, cleanup callback, and setup error.
func New(cfg config.LogConfig) (*slog.Logger, func(), error) {
	var (
		handlers []slog.Handler
		file     *os.File
	)
	if cfg.Console.Enabled {
		handler, err := newHandler(os.Stdout, cfg.Console, true)
		if err != nil {
			return nil, nil, fmt.Errorf("build console handler: %w", err)
		}
		handlers = append(handlers, handler)
	}
	if cfg.File.Enabled {
		opened, err := os.OpenFile(cfg.File.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %q: %w", cfg.File.Path, err)
		}
		handler, err := newHandler(opened, cfg.File, false)
		if err != nil {
			_ = opened.Close()
			return nil, nil, fmt.Errorf("build file handler: %w", err)
		}
		file = opened
		handlers = append(handlers, handler)
	}

	cleanup := func() {
		if file != nil {
			_ = file.Close()
		}
	}
	switch len(handlers) {
	case 0:
		return nil, nil, errors.New("no log sinks enabled")
	case 1:
		return slog.New(handlers[0]), cleanup, nil
	default:
		return slog.New(fanout(handlers)), cleanup, nil
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

// ForComponent tags logger with component name.
// Params: base logger (nil falls back to slog.Default) and component label.
// Returns: derived logger.
func ForComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component)
}

// ForStream tags logger with component and stream kind.
func ForStream(logger *slog.Logger, component string, stream domain.StreamKind) *slog.Logger {
	return ForComponent(logger, component).With("stream", string(stream))
}

// newHandler builds one sink handler; console sinks drop timestamps and colour line output.
// Params: destination writer, sink level/format, and console flag.
// Returns: configured slog handler or error.
func newHandler(dst io.Writer, sink config.LogSinkConfig, console bool) (slog.Handler, error) {
	level, err := parseLevel(sink.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if console {
		opts.ReplaceAttr = func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) == 0 && attr.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return attr
		}
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line":
		if console {
			dst = consoleWriter{dst: dst}
		}
		return slog.NewTextHandler(dst, opts), nil
	case "json":
		return slog.NewJSONHandler(dst, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", sink.Format)
	}
}

// parseLevel accepts debug, info, warn, and error in any case.
func parseLevel(value string) (slog.Level, error) {
	var level slog.Level
	trimmed := strings.TrimSpace(value)
	switch strings.ToLower(trimmed) {
	case "debug", "info", "warn", "error":
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported level %q", value)
	}
	if err := level.UnmarshalText([]byte(trimmed)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// fanout writes each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range f {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle forwards a clone of record to each enabled sink.
// Returns: first sink error.
func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range f {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(handler slog.Handler) slog.Handler { return handler.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(handler slog.Handler) slog.Handler { return handler.WithGroup(name) })
}

func (f fanout) each(derive func(slog.Handler) slog.Handler) fanout {
	next := make(fanout, len(f))
	for i, handler := range f {
		next[i] = derive(handler)
	}
	return next
}

// consoleWriter colours one rendered text line by level and highlights monitor tokens.
type consoleWriter struct {
	dst io.Writer
}

func (w consoleWriter) Write(payload []byte) (int, error) {
	line := string(payload)
	base := levelColor(line)
	if base == "" {
		return w.dst.Write(payload)
	}
	n, err := io.WriteString(w.dst, base+highlight(line, base)+ansiReset)
	if n > len(payload) {
		n = len(payload)
	}
	return n, err
}

// levelColor maps rendered level token to ANSI code.
func levelColor(line string) string {
	switch {
	case strings.Contains(line, "level=DEBUG"):
		return ansiGray
	case strings.Contains(line, "level=INFO"):
		return ansiBlue
	case strings.Contains(line, "level=WARN"):
		return ansiYellow
	case strings.Contains(line, "level=ERROR"):
		return ansiRed
	default:
		return ""
	}
}

// highlight wraps each console token in its colour and restores base after it.
func highlight(line, base string) string {
	matches := consoleToken.FindAllStringSubmatchIndex(line, -1)
	if len(matches) == 0 {
		return line
	}
	var b strings.Builder
	b.Grow(len(line) + len(matches)*12)
	cursor := 0
	for _, match := range matches {
		start, end := match[0], match[1]
		b.WriteString(line[cursor:start])
		b.WriteString(tokenColor(line[start:end], match))
		b.WriteString(line[start:end])
		b.WriteString(ansiReset)
		b.WriteString(base)
		cursor = end
	}
	b.WriteString(line[cursor:])
	return b.String()
}

func tokenColor(token string, match []int) string {
	switch {
	case match[2] >= 0:
		return statusColors[domain.ConnectionStatus(token[len("status="):])]
	case strings.HasPrefix(token, "stream="), strings.HasPrefix(token, "ws"):
		return ansiCyan
	case strings.HasPrefix(token, `"`):
		return ansiGreen
	default:
		return ansiYellow
	}
}
