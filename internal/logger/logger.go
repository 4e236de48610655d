package logger

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

func init() {
	Logger = logrus.New()
	Logger.SetOutput(os.Stdout)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	Logger.SetLevel(levelFromEnv(logrus.InfoLevel))
}

// levelFromEnv reads LOG_LEVEL (e.g. LOG_LEVEL=debug), falling back to def.
func levelFromEnv(def logrus.Level) logrus.Level {
	raw := os.Getenv("LOG_LEVEL")
	if raw == "" {
		return def
	}
	level, err := logrus.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return def
	}
	return level
}

// SetLevel parses level and applies it. An invalid level leaves the current one untouched.
func SetLevel(level string) error {
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	Logger.SetLevel(parsed)
	return nil
}

// WithComponent adds a component field to the logger
func WithComponent(component string) *logrus.Entry {
	return Logger.WithField("component", component)
}

// WithResource adds component and resource fields. The resource is logged by file name.
func WithResource(component, resourceID string) *logrus.Entry {
	return Logger.WithFields(logrus.Fields{
		"component": component,
		"resource":  filepath.Base(resourceID),
	})
}
