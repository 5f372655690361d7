package logging

import promlog "github.com/prometheus/common/log"

// Prom adapts prometheus/common/log's package-level logger to the
// engine's Logger contract, for callers already running a Prometheus
// exporter in the same process who want engine diagnostics folded into
// that logger rather than a third, separate one.
type Prom struct{}

// NewProm returns a Logger backed by prometheus/common/log's global
// logger.
func NewProm() Prom { return Prom{} }

func (Prom) Debugf(format string, v ...interface{}) { promlog.Debugf(format, v...) }
func (Prom) Infof(format string, v ...interface{})  { promlog.Infof(format, v...) }
func (Prom) Warnf(format string, v ...interface{})  { promlog.Warnf(format, v...) }
func (Prom) Errorf(format string, v ...interface{}) { promlog.Errorf(format, v...) }
func (Prom) Fatalf(format string, v ...interface{}) { promlog.Fatalf(format, v...) }
