// Package linklog wires the link's LogFunc callback to a structured
// logrus logger, the way h5_transport.cpp's log() methods fall back to
// std::clog when no sink is configured.
package linklog

import (
	"github.com/sirupsen/logrus"

	"github.com/Jinwook-Song/h5link/internal/transport"
)

// New returns a transport.LogFunc that writes each message to logger
// at the matching logrus level.
func New(logger *logrus.Logger) transport.LogFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(level transport.LogLevel, message string) {
		entry := logger.WithField("component", "h5link")
		switch level {
		case transport.LogLevelTrace:
			entry.Trace(message)
		case transport.LogLevelDebug:
			entry.Debug(message)
		case transport.LogLevelInfo:
			entry.Info(message)
		case transport.LogLevelWarn:
			entry.Warn(message)
		case transport.LogLevelError:
			entry.Error(message)
		default:
			entry.Info(message)
		}
	}
}

// Default is the package-level LogFunc used when a caller opens a
// link without supplying its own logger.
var Default = New(nil)
