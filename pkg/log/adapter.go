// Package log adapts a log.Logger to the logging interfaces of
// the libraries the worker uses.
package log

import (
	"context"
	"fmt"
	"strings"

	"github.com/hamba/pkg/log"
)

// Level is the log level that will be used.
type Level int

// The log level constants.
const (
	Debug Level = iota
	Info
	Error
)

func (l Level) writer(logger log.Logger) func(msg string, ctx ...interface{}) {
	switch l {
	case Debug:
		return logger.Debug
	case Error:
		return logger.Error
	default:
		return logger.Info
	}
}

// Printer writes formatted lines to a logger at a fixed level.
//
// It satisfies the go-redis logging interface.
type Printer struct {
	log    func(msg string, ctx ...interface{})
	prefix string
}

// NewPrinter returns a printer.
func NewPrinter(l log.Logger, lvl Level, prefix string) *Printer {
	if l == nil {
		l = log.Null
	}

	return &Printer{
		log:    lvl.writer(l),
		prefix: prefix,
	}
}

// Printf logs a formatted line.
func (p *Printer) Printf(_ context.Context, format string, v ...interface{}) {
	p.log(p.prefix + strings.TrimRight(fmt.Sprintf(format, v...), "\n"))
}

// Cron is a structured cron logger.
//
// Cron reports every schedule run at info level, these are
// logged at debug level.
type Cron struct {
	log    log.Logger
	prefix string
}

// NewCron returns a cron logger.
func NewCron(l log.Logger, prefix string) *Cron {
	if l == nil {
		l = log.Null
	}

	return &Cron{
		log:    l,
		prefix: prefix,
	}
}

// Info logs a routine message.
func (c *Cron) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(c.prefix+msg, keysAndValues...)
}

// Error logs an error.
func (c *Cron) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(c.prefix+msg, append(keysAndValues, "error", err)...)
}
