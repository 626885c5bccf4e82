// Package corelog is AeroCore's small leveled logger. Every package logs
// through here instead of fmt.Println, call sites are captured via
// go-stack/stack, and output is colorized with fatih/color +
// mattn/go-colorable when the destination is a TTY (mattn/go-isatty).
package corelog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is a logging severity.
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
	case LevelError:
		return "ERROR"
	default:
		return "?"
	}
}

var levelColor = map[Level]*color.Color{
	LevelDebug: color.New(color.FgHiBlack),
	LevelInfo:  color.New(color.FgCyan),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed, color.Bold),
}

// Logger writes leveled, call-site-annotated log lines.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  Level
	color  bool
	prefix string
}

var std = New(os.Stderr, LevelInfo)

// New constructs a Logger writing to w. Colorization is auto-detected via
// isatty unless overridden by SetColor.
func New(w io.Writer, level Level) *Logger {
	colorable := isatty.IsTerminal(fileDescriptor(w))
	return &Logger{out: colorable2(w), level: level, color: colorable}
}

func colorable2(w io.Writer) io.Writer {
	if f, ok := w.(*os.File); ok {
		return colorable.NewColorable(f)
	}
	return w
}

func fileDescriptor(w io.Writer) uintptr {
	if f, ok := w.(*os.File); ok {
		return f.Fd()
	}
	return ^uintptr(0)
}

// SetDefault replaces the package-level default logger used by Debug/Info/
// Warn/Error.
func SetDefault(l *Logger) { std = l }

// SetLevel adjusts the minimum level emitted.
func (l *Logger) SetLevel(level Level) { l.level = level }

// SetColor forces (or disables) ANSI colorization regardless of TTY
// detection, used by config when log.color is explicitly set.
func (l *Logger) SetColor(enabled bool) { l.color = enabled }

func (l *Logger) log(level Level, msg string, kv ...interface{}) {
	if level < l.level {
		return
	}
	call := stack.Caller(2)
	line := fmt.Sprintf("%s", call)
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("15:04:05.000")
	header := fmt.Sprintf("%s [%s] %s", ts, level, msg)
	if l.color {
		header = fmt.Sprintf("%s [%s] %s", ts, levelColor[level].Sprint(level), msg)
	}
	fmt.Fprint(l.out, header)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(l.out, " %v=%v", kv[i], kv[i+1])
	}
	fmt.Fprintf(l.out, " (%s)\n", line)
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.log(LevelDebug, msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.log(LevelInfo, msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.log(LevelWarn, msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.log(LevelError, msg, kv...) }

// Package-level convenience functions logging through the default Logger.
func Debug(msg string, kv ...interface{}) { std.Debug(msg, kv...) }
func Info(msg string, kv ...interface{})  { std.Info(msg, kv...) }
func Warn(msg string, kv ...interface{})  { std.Warn(msg, kv...) }
func Error(msg string, kv ...interface{}) { std.Error(msg, kv...) }
