// Package logging provides per-component loggers backed by logrus.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var master = newMaster()

func newMaster() *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	l.Level = logrus.InfoLevel
	return l
}

// MustGetLogger returns a logger tagged with the given component name.
func MustGetLogger(module string) *logrus.Entry {
	return master.WithField("_module", module)
}

// SetLevel parses and applies a level name such as "debug" or "warn".
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return err
	}
	master.SetLevel(lvl)
	return nil
}
