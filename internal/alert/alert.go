// Package alert surfaces operator-facing failures through Honeybadger.
package alert

import (
	"errors"
	"os"
	"sync"

	honeybadger "github.com/honeybadger-io/honeybadger-go"
	"github.com/sirupsen/logrus"

	"github.com/bassista/sheetwatch/internal/trigger"
	"github.com/bassista/sheetwatch/internal/workbook"
)

var (
	configureOnce sync.Once
	enabled       bool
)

// Configure sets up Honeybadger from HONEYBADGER_API_KEY and GO_ENV.
// It reports whether reporting is enabled; later calls return the first answer.
func Configure(logger *logrus.Logger) bool {
	configureOnce.Do(func() {
		apiKey := os.Getenv("HONEYBADGER_API_KEY")
		if apiKey == "" {
			logger.Info("Honeybadger is not active. To enable error reporting, set the HONEYBADGER_API_KEY environment variable.")
			return
		}
		honeybadger.Configure(honeybadger.Configuration{
			APIKey: apiKey,
			Env:    os.Getenv("GO_ENV"),
		})
		enabled = true
		logger.Info("Honeybadger error reporting is enabled.")
	})
	return enabled
}

// Notifier is the reporting function, honeybadger.Notify in production.
type Notifier func(err interface{}, extra ...interface{}) (string, error)

// Reporter sends watcher failures that need an operator.
type Reporter struct {
	logger *logrus.Logger
	notify Notifier
}

// NewReporter returns a Reporter backed by Honeybadger, or a log-only one
// when Honeybadger is not configured.
func NewReporter(logger *logrus.Logger) *Reporter {
	r := &Reporter{logger: logger}
	if Configure(logger) {
		r.notify = honeybadger.Notify
	}
	return r
}

// NewReporterWith uses notify instead of Honeybadger.
func NewReporterWith(logger *logrus.Logger, notify Notifier) *Reporter {
	return &Reporter{logger: logger, notify: notify}
}

// SourceFailure reports a dead trigger source: no further change signals
// will arrive for the affected resources.
func (r *Reporter) SourceFailure(kind trigger.Kind, err error) {
	r.logger.WithField("component", "alert").WithField("trigger", string(kind)).Errorf("trigger source failed: %v", err)
	if r.notify == nil {
		return
	}
	if _, nerr := r.notify(err, honeybadger.Context{"trigger": string(kind)}, honeybadger.Tags{"trigger", "fatal"}); nerr != nil {
		r.logger.Warnf("cannot notify Honeybadger: %v", nerr)
	}
}

// ResourceFailure reports resource errors that will not fix themselves.
// Transient classes (unavailable, write conflict) are only logged by the watcher.
func (r *Reporter) ResourceFailure(resourceID string, err error) {
	if r.notify == nil || err == nil {
		return
	}
	if errors.Is(err, workbook.ErrResourceUnavailable) || errors.Is(err, workbook.ErrWriteConflict) {
		return
	}
	if _, nerr := r.notify(err, honeybadger.Context{"resource": resourceID}, honeybadger.Tags{"resource"}); nerr != nil {
		r.logger.Warnf("cannot notify Honeybadger: %v", nerr)
	}
}

// Flush waits for pending notices to be sent.
func (r *Reporter) Flush() {
	if r.notify != nil && enabled {
		honeybadger.Flush()
	}
}
