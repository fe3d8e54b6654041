package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Level orders console output; lines below the configured level are dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Console writes one line per entry as `[LEVEL] msg key=value ...`.
type Console struct {
	mu     *sync.Mutex
	out    io.Writer
	level  Level
	fields []Field
}

var _ Logger = (*Console)(nil)

// NewConsole returns a console logger writing to out (stderr when nil).
func NewConsole(out io.Writer, level Level) *Console {
	if out == nil {
		out = os.Stderr
	}
	return &Console{
		mu:    &sync.Mutex{},
		out:   out,
		level: level,
	}
}

// With returns a logger that prepends fields to every line.
func (c *Console) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return c
	}
	next := &Console{
		mu:     c.mu,
		out:    c.out,
		level:  c.level,
		fields: make([]Field, 0, len(c.fields)+len(fields)),
	}
	next.fields = append(next.fields, c.fields...)
	next.fields = append(next.fields, fields...)
	return next
}

func (c *Console) Debug(msg string, fields ...Field) { c.log(LevelDebug, msg, fields) }
func (c *Console) Info(msg string, fields ...Field)  { c.log(LevelInfo, msg, fields) }
func (c *Console) Warn(msg string, fields ...Field)  { c.log(LevelWarn, msg, fields) }
func (c *Console) Error(msg string, fields ...Field) { c.log(LevelError, msg, fields) }

func (c *Console) log(level Level, msg string, fields []Field) {
	if level < c.level {
		return
	}
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)
	for _, f := range c.fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	b.WriteString("\n")

	c.mu.Lock()
	_, _ = io.WriteString(c.out, b.String())
	c.mu.Unlock()
}
