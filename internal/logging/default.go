// Package logging provides Logger implementations a caller can set as
// Config.Logger: a plain stdlib-backed logger, a logrus-backed one and
// a prometheus/common/log-backed one. None of them is installed by
// default; a Config without a Logger gets a no-op logger from
// Config.Validate.
package logging

import (
	"fmt"
	"log"
	"os"
)

const (
	calldepth = 3
	debugTag  = "DEBUG"
	infoTag   = "INFO"
	warnTag   = "WARN"
	errorTag  = "ERROR"
	fatalTag  = "FATAL"
)

// Default wraps the standard library's log.Logger with the level
// helpers the engines expect, prefixing every line with a run id so
// multiple peers sharing one process's stderr stay distinguishable.
type Default struct {
	*log.Logger
	runID string
	debug bool
}

// NewDefault builds a Default logger tagged with runID. Pass an empty
// runID to omit the tag.
func NewDefault(runID string) *Default {
	return &Default{
		Logger: log.New(os.Stderr, "", log.LstdFlags),
		runID:  runID,
	}
}

// ToggleDebug enables or disables Debugf output, returning the new
// state.
func (d *Default) ToggleDebug(value bool) bool {
	d.debug = value
	return d.debug
}

func (d *Default) level(tag, message string) string {
	if d.runID == "" {
		return fmt.Sprintf("[%s] %s", tag, message)
	}
	return fmt.Sprintf("[%s][%s] %s", tag, d.runID, message)
}

func (d *Default) Debugf(format string, v ...interface{}) {
	if d.debug {
		d.Output(calldepth, d.level(debugTag, fmt.Sprintf(format, v...)))
	}
}

func (d *Default) Infof(format string, v ...interface{}) {
	d.Output(calldepth, d.level(infoTag, fmt.Sprintf(format, v...)))
}

func (d *Default) Warnf(format string, v ...interface{}) {
	d.Output(calldepth, d.level(warnTag, fmt.Sprintf(format, v...)))
}

func (d *Default) Errorf(format string, v ...interface{}) {
	d.Output(calldepth, d.level(errorTag, fmt.Sprintf(format, v...)))
}

func (d *Default) Fatalf(format string, v ...interface{}) {
	d.Output(calldepth, d.level(fatalTag, fmt.Sprintf(format, v...)))
	os.Exit(1)
}
