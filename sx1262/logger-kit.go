package sx1262

import (
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// NewKitLogger adapts a go-kit logger to the driver Logger.
func NewKitLogger(logger log.Logger) Logger {
	return &kitLogger{logger: log.With(logger, "component", "sx1262")}
}

type kitLogger struct {
	logger log.Logger
}

func (l *kitLogger) Debug(msg string) {
	level.Debug(l.logger).Log("msg", msg)
}

func (l *kitLogger) Info(msg string) {
	level.Info(l.logger).Log("msg", msg)
}

func (l *kitLogger) Warn(msg string) {
	level.Warn(l.logger).Log("msg", msg)
}

func (l *kitLogger) Error(msg string) {
	level.Error(l.logger).Log("msg", msg)
}
