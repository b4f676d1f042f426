// Package `mulog` provides minimal Zap-Sugar-like loggers with convenient
// structured logging `Levelw(msg, kv...)` functions.  It is used with
// `--log=mu` when Zap output is not wanted.
package mulog

import (
	"fmt"
	"io"
	"log"
	"os"
)

// `Logger` prints messages with timestamps, using package `log`.  Debug
// messages are suppressed unless `Debug` is set.
type Logger struct {
	Debug bool
}

func (lg Logger) Debugw(msg string, kv ...interface{}) {
	if !lg.Debug {
		return
	}
	log.Printf("debug: %s %v\n", msg, kv)
}

func (Logger) Infow(msg string, kv ...interface{}) {
	log.Printf("info: %s %v\n", msg, kv)
}

func (Logger) Warnw(msg string, kv ...interface{}) {
	log.Printf("warning: %s %v\n", msg, kv)
}

func (Logger) Errorw(msg string, kv ...interface{}) {
	log.Printf("error: %s %v\n", msg, kv)
}

func (Logger) Fatalw(msg string, kv ...interface{}) {
	log.Fatalf("fatal: %s %v\n", msg, kv)
}

// `Printer` prints undecorated messages to `W`, or stderr if `W` is nil.
// Tests use it with a buffer to inspect what was logged.
type Printer struct {
	W     io.Writer
	Debug bool
}

func (p Printer) out() io.Writer {
	if p.W == nil {
		return os.Stderr
	}
	return p.W
}

func (p Printer) Debugw(msg string, kv ...interface{}) {
	if !p.Debug {
		return
	}
	fmt.Fprintf(p.out(), "debug: %s %v\n", msg, kv)
}

func (p Printer) Infow(msg string, kv ...interface{}) {
	fmt.Fprintf(p.out(), "info: %s %v\n", msg, kv)
}

func (p Printer) Warnw(msg string, kv ...interface{}) {
	fmt.Fprintf(p.out(), "warning: %s %v\n", msg, kv)
}

func (p Printer) Errorw(msg string, kv ...interface{}) {
	fmt.Fprintf(p.out(), "error: %s %v\n", msg, kv)
}

func (p Printer) Fatalw(msg string, kv ...interface{}) {
	fmt.Fprintf(p.out(), "fatal: %s %v\n", msg, kv)
	os.Exit(1)
}
