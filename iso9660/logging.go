package iso9660

import (
	"io"

	"github.com/sirupsen/logrus"
)

// newNopLogger returns a logrus.Entry that discards everything. Readers are
// constructed with one by default so library consumers pay no logging cost
// unless they opt in with Reader.SetLogger.
func newNopLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
