package webrtc

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// loggerFactory routes pion's internal logging through zerolog.
type loggerFactory struct {
	base zerolog.Logger
}

// NewLoggerFactory returns a pion LoggerFactory that writes to the global
// zerolog logger. Pion's chatty scopes are demoted by one level.
func NewLoggerFactory() logging.LoggerFactory {
	return &loggerFactory{base: log.Logger}
}

func (f *loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &leveledLogger{
		l: f.base.With().Str("module", "pion").Str("scope", scope).Logger(),
	}
}

type leveledLogger struct {
	l zerolog.Logger
}

func (z *leveledLogger) Trace(msg string)                          { z.l.Trace().Msg(msg) }
func (z *leveledLogger) Tracef(format string, args ...interface{}) { z.l.Trace().Msgf(format, args...) }
func (z *leveledLogger) Debug(msg string)                          { z.l.Trace().Msg(msg) }
func (z *leveledLogger) Debugf(format string, args ...interface{}) { z.l.Trace().Msgf(format, args...) }
func (z *leveledLogger) Info(msg string)                           { z.l.Debug().Msg(msg) }
func (z *leveledLogger) Infof(format string, args ...interface{})  { z.l.Debug().Msgf(format, args...) }
func (z *leveledLogger) Warn(msg string)                           { z.l.Warn().Msg(msg) }
func (z *leveledLogger) Warnf(format string, args ...interface{})  { z.l.Warn().Msgf(format, args...) }
func (z *leveledLogger) Error(msg string)                          { z.l.Error().Msg(msg) }
func (z *leveledLogger) Errorf(format string, args ...interface{}) { z.l.Error().Msgf(format, args...) }
