// Package stacklog centralizes logrus setup for the stack binaries,
// grounded on firestige-Otus/otus-packet/pkg/log's logrus wrapper: a
// package-level logger configured once at startup, handed out as
// component-scoped *logrus.Entry values via WithField.
package stacklog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger with the given level and output, formatted as
// text for interactive use (JSON output is left to callers that want it,
// via SetJSONFormatter on the returned logger).
func New(level string, out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stderr
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// Component returns a logger entry scoped to name, the way each
// rxring/txring/dispatch instance tags its own log lines.
func Component(l *logrus.Logger, name string) *logrus.Entry {
	return l.WithField("component", name)
}
