// Package log implements the runtime's async log sink: producers format one
// line at a time and push it into a mutex-protected slice; a single writer
// goroutine swaps the slice wholesale each turn and writes to stdout/stderr
// (with ANSI colors by level when attached to a terminal) and optionally to
// a log file. adapted to Go
// idiom with github.com/fatih/color for level coloring and golang.org/x/term
// for color-routing (no color when not a tty or when writing to a file).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package log

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Level is the log sink's severity, ordered most to least severe.
type Level int

const (
	Error Level = iota
	Warn
	Info
	Debug
)

func (l Level) String() string {
	switch l {
	case Error:
		return "EROR"
	case Warn:
		return "WARN"
	case Info:
		return "INFO"
	case Debug:
		return "DBUG"
	default:
		return "????"
	}
}

var levelColor = map[Level]*color.Color{
	Error: color.New(color.FgRed, color.Bold),
	Warn:  color.New(color.FgYellow),
	Info:  color.New(color.FgGreen),
	Debug: color.New(color.FgCyan),
}

type line struct {
	toStdout bool
	level    Level
	tag      string
	text     string
}

// Logger is the async sink. Zero value is not usable; construct with New.
type Logger struct {
	mu       sync.Mutex
	pending  []line
	level    Level
	useColor bool

	fileW *bufio.Writer
	file  *os.File

	notify chan struct{}
	done   chan struct{}
	stopped chan struct{}
}

// New constructs a Logger writing console output at (at most) `level`
// severity, plus the named file if non-empty.
// Color is enabled only when stderr is attached to a terminal.
func New(level Level, filePath string) (*Logger, error) {
	l := &Logger{
		level:    level,
		useColor: term.IsTerminal(int(os.Stderr.Fd())),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, err
		}
		l.file = f
		l.fileW = bufio.NewWriter(f)
	}
	go l.run()
	return l, nil
}

// Errorf logs at Error severity with no tag; errors flush the writer
// eagerly.
func (l *Logger) Errorf(format string, args ...any) { l.logf(true, Error, "", format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(true, Warn, "", format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(true, Info, "", format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.logf(true, Debug, "", format, args...) }

// Tagged returns a view bound to tag (a worker id or ":"+hex service id)
// that producers use so every line they emit carries that tag.
func (l *Logger) Tagged(tag string) *Tagged {
	return &Tagged{l: l, tag: tag}
}

// Tagged is a thin per-producer handle binding a fixed tag onto Logger.
type Tagged struct {
	l   *Logger
	tag string
}

func (t *Tagged) Errorf(format string, args ...any) { t.l.logf(true, Error, t.tag, format, args...) }
func (t *Tagged) Warnf(format string, args ...any)  { t.l.logf(true, Warn, t.tag, format, args...) }
func (t *Tagged) Infof(format string, args ...any)  { t.l.logf(true, Info, t.tag, format, args...) }
func (t *Tagged) Debugf(format string, args ...any) { t.l.logf(true, Debug, t.tag, format, args...) }

func (l *Logger) logf(toStdout bool, lvl Level, tag string, format string, args ...any) {
	if lvl > l.level {
		return
	}
	text := fmt.Sprintf(format, args...)
	l.mu.Lock()
	l.pending = append(l.pending, line{toStdout: toStdout, level: lvl, tag: tag, text: text})
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
	if lvl == Error {
		l.Flush()
	}
}

// Flush blocks until the writer goroutine has drained everything queued as
// of the call.
func (l *Logger) Flush() {
	done := make(chan struct{})
	go func() {
		for {
			l.mu.Lock()
			empty := len(l.pending) == 0
			l.mu.Unlock()
			if empty {
				close(done)
				return
			}
			select {
			case l.notify <- struct{}{}:
			default:
			}
			time.Sleep(time.Millisecond)
		}
	}()
	<-done
}

// Close drains remaining lines and stops the writer.
func (l *Logger) Close() error {
	l.Flush()
	close(l.done)
	<-l.stopped
	if l.fileW != nil {
		l.fileW.Flush()
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) run() {
	defer close(l.stopped)
	for {
		select {
		case <-l.notify:
			l.drain()
		case <-l.done:
			l.drain()
			return
		}
	}
}

func (l *Logger) drain() {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, ln := range batch {
		ts := time.Now().Format("2006-01-02 15:04:05.000")
		plain := fmt.Sprintf("%s %s|%s| %s\n", ts, ln.level, ln.tag, ln.text)

		w := os.Stderr
		if ln.toStdout {
			w = os.Stdout
		}
		if l.useColor {
			levelColor[ln.level].Fprint(w, plain)
		} else {
			fmt.Fprint(w, plain)
		}

		if l.fileW != nil {
			l.fileW.WriteString(plain)
		}
	}
	if l.fileW != nil {
		l.fileW.Flush()
	}
}
