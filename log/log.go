// Package log provides the keyed, leveled logger used throughout chaincore.
//
// It follows the shape the teacher's call sites expect
// (log.Info("message", "key", value, ...)) without depending on the
// teacher's own log package source, which the retrieval pack did not
// retain. The implementation is the classic log15-style logger carried by
// the go-ethereum lineage: one handler, colorized when attached to a
// terminal, plain logfmt otherwise.
package log

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is the severity of a log record, ordered from most to least severe.
type Lvl int

const (
	LvlError Lvl = iota
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "UNKNOWN"
	}
}

var levelColor = map[Lvl]*color.Color{
	LvlError: color.New(color.FgRed, color.Bold),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// Logger is the interface every component receives. Keeping it an interface
// (rather than depending on the concrete type) lets tests substitute a
// recording logger without touching stdout.
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	New(ctx ...interface{}) Logger
}

type logger struct {
	ctx []interface{}
}

var (
	root      = &logger{}
	mu        sync.Mutex
	out       io.Writer = colorable.NewColorableStdout()
	useColor            = isatty.IsTerminal(os.Stdout.Fd())
	threshold           = LvlInfo
)

// Root returns the process-wide default logger. Components should prefer an
// explicitly passed Logger; Root exists only as the thin ergonomic handle
// the transformation rules allow.
func Root() Logger { return root }

// SetOutput redirects where Root (and any Logger derived from it) writes.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetThreshold filters records below lvl from being emitted.
func SetThreshold(lvl Lvl) {
	mu.Lock()
	defer mu.Unlock()
	threshold = lvl
}

func (l *logger) New(ctx ...interface{}) Logger {
	merged := make([]interface{}, 0, len(l.ctx)+len(ctx))
	merged = append(merged, l.ctx...)
	merged = append(merged, ctx...)
	return &logger{ctx: merged}
}

func (l *logger) write(lvl Lvl, msg string, ctx []interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if lvl > threshold {
		return
	}
	var sb strings.Builder
	sb.WriteString(time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	sb.WriteByte(' ')
	levelField := fmt.Sprintf("%-5s", lvl.String())
	if useColor {
		levelField = levelColor[lvl].Sprint(levelField)
	}
	sb.WriteString(levelField)
	sb.WriteByte(' ')
	sb.WriteString(msg)

	all := make([]interface{}, 0, len(l.ctx)+len(ctx))
	all = append(all, l.ctx...)
	all = append(all, ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		sb.WriteByte(' ')
		sb.WriteString(fmt.Sprintf("%v", all[i]))
		sb.WriteByte('=')
		sb.WriteString(formatValue(all[i+1]))
	}
	if lvl == LvlError || lvl == LvlWarn {
		if call := callSite(); call != "" {
			sb.WriteString(" caller=")
			sb.WriteString(call)
		}
	}
	sb.WriteByte('\n')
	io.WriteString(out, sb.String())
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case error:
		return strconv.Quote(val.Error())
	case string:
		if strings.ContainsAny(val, " \t\n\"") {
			return strconv.Quote(val)
		}
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// callSite reports the immediate caller of the public log methods, skipping
// the logger's own frames, the same way the teacher's log package annotates
// warnings and errors with where they came from.
func callSite() string {
	call := stack.Caller(3)
	return fmt.Sprintf("%+v", call)
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }

// Package-level convenience wrappers, mirroring the teacher's call sites
// (log.Info(...) rather than log.Root().Info(...)).
func Trace(msg string, ctx ...interface{}) { root.Trace(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { root.Debug(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { root.Info(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { root.write(LvlWarn, msg, ctx) }
func Error(msg string, ctx ...interface{}) { root.write(LvlError, msg, ctx) }

// New returns a child logger carrying ctx as a permanent key/value prefix.
func New(ctx ...interface{}) Logger { return root.New(ctx...) }
