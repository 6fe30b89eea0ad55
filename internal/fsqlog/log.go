// Package fsqlog provides the single structured logger used across the
// daemon, client and tooling in this module.
package fsqlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Level mirrors the five verbosity levels named in the config file and CLI
// surface: error, warn, message, info, debug.
type Level int

// Verbosity levels, from quietest to loudest.
const (
	LevelError Level = iota
	LevelWarn
	LevelMessage
	LevelInfo
	LevelDebug
)

var levelNames = map[string]Level{
	"error":   LevelError,
	"warn":    LevelWarn,
	"message": LevelMessage,
	"info":    LevelInfo,
	"debug":   LevelDebug,
}

// ParseLevel maps a config/CLI verbosity string onto a Level. Unknown
// strings fall back to LevelMessage, matching the daemon's default.
func ParseLevel(s string) Level {
	if lvl, ok := levelNames[s]; ok {
		return lvl
	}
	return LevelMessage
}

var std = logrus.New()

func init() {
	std.Out = os.Stderr
	std.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	SetLevel(LevelMessage)
}

// SetLevel configures the shared logger's verbosity. LevelMessage and
// LevelInfo both map to logrus.InfoLevel since logrus has only that one
// level between warn and debug; message-level lines are distinguished by being
// logged through Messagef rather than by logrus level.
func SetLevel(lvl Level) {
	switch lvl {
	case LevelError:
		std.SetLevel(logrus.ErrorLevel)
	case LevelWarn:
		std.SetLevel(logrus.WarnLevel)
	case LevelMessage, LevelInfo:
		std.SetLevel(logrus.InfoLevel)
	case LevelDebug:
		std.SetLevel(logrus.DebugLevel)
	}
}

// Debugf logs at debug level.
func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }

// Infof logs at info level.
func Infof(format string, args ...interface{}) { std.Infof(format, args...) }

// Messagef logs an operator-visible success/status line.
func Messagef(format string, args ...interface{}) { std.Infof(format, args...) }

// Warnf logs at warn level.
func Warnf(format string, args ...interface{}) { std.Warnf(format, args...) }

// Errorf logs at error level.
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }
