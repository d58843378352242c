package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the gateway's root logger. verbosity follows the config file's
// "debug" integer: 0 errors only, 1 adds warnings, 2 adds info, 3 adds debug.
func New(verbosity int, json bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if json {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(NewConsoleFormatter())
	}

	switch {
	case verbosity >= 3:
		log.SetLevel(logrus.DebugLevel)
	case verbosity == 2:
		log.SetLevel(logrus.InfoLevel)
	case verbosity == 1:
		log.SetLevel(logrus.WarnLevel)
	default:
		log.SetLevel(logrus.ErrorLevel)
	}

	return log
}

// Component returns a FieldLogger scoped to one named component, mirroring
// the per-plugin Logger field pattern used throughout the gateway.
func Component(log logrus.FieldLogger, name string) logrus.FieldLogger {
	return log.WithField("component", name)
}
