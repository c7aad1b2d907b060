package blockdev

import "github.com/sirupsen/logrus"

// log is the package-wide structured logger. It carries debug-level events
// for opening and formatting a container and fatal-level events followed by
// process exit (the original C implementation's ONERROR macro). Individual
// block allocations and frees are not logged.
var log = logrus.WithField("component", "blockdev")

func fatalf(op string, fields logrus.Fields, format string, args ...interface{}) {
	entry := log.WithField("op", op)
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}
	entry.Fatalf(format, args...)
}
