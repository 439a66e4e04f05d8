package kernel

import "github.com/sirupsen/logrus"

// log is this package's structured logger: one shared entry per
// subsystem, fields attached with WithFields rather than formatted into
// the message string.
var log = logrus.WithField("subsystem", "kernel")
