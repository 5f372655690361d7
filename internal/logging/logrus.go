package logging

import "github.com/sirupsen/logrus"

// Logrus adapts a *logrus.Entry to the engine's Logger contract, for
// callers who already run a logrus-structured logging pipeline and
// want engine diagnostics folded into it rather than written to a
// second, separate stream.
type Logrus struct {
	entry *logrus.Entry
}

// NewLogrus wraps entry, pre-populated with any fields the caller
// wants attached to every line (peer id, run id, and so on).
func NewLogrus(entry *logrus.Entry) *Logrus {
	return &Logrus{entry: entry}
}

func (l *Logrus) Debugf(format string, v ...interface{}) { l.entry.Debugf(format, v...) }
func (l *Logrus) Infof(format string, v ...interface{})  { l.entry.Infof(format, v...) }
func (l *Logrus) Warnf(format string, v ...interface{})  { l.entry.Warnf(format, v...) }
func (l *Logrus) Errorf(format string, v ...interface{}) { l.entry.Errorf(format, v...) }
func (l *Logrus) Fatalf(format string, v ...interface{}) { l.entry.Fatalf(format, v...) }
