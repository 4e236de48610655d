package trigger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/bassista/sheetwatch/internal/logger"
)

// ErrNotStarted is returned by Modified before Start or after Stop.
var ErrNotStarted = errors.New("callback trigger is not running")

// CallbackAdapter receives "document modified" calls from a host application.
// Modified may be called from any goroutine; it only forwards the signal and
// never does capture work on the caller's goroutine.
type CallbackAdapter struct {
	paths map[string]struct{}

	mu       sync.RWMutex
	notifier Notifier

	errs chan error
}

func NewCallbackAdapter(resources []string) *CallbackAdapter {
	return &CallbackAdapter{
		paths: resourceSet(resources),
		errs:  make(chan error, 1),
	}
}

func (a *CallbackAdapter) Kind() Kind { return KindCallback }

func (a *CallbackAdapter) Errors() <-chan error { return a.errs }

func (a *CallbackAdapter) Start(_ context.Context, n Notifier) error {
	if n == nil {
		return errors.New("notifier is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifier = n
	logger.WithComponent("callback").Debugf("callback trigger ready for %d resources", len(a.paths))
	return nil
}

func (a *CallbackAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifier = nil
	return nil
}

// Modified signals that resourceID changed. sheet is an optional hint
// forwarded to notifiers implementing SheetNotifier.
func (a *CallbackAdapter) Modified(resourceID, sheet string) error {
	path := filepath.Clean(resourceID)
	if _, ok := a.paths[path]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownResource, resourceID)
	}

	a.mu.RLock()
	n := a.notifier
	a.mu.RUnlock()
	if n == nil {
		return ErrNotStarted
	}

	logger.WithComponent("callback").Tracef("modified %s (sheet %q)", filepath.Base(path), sheet)
	if sn, ok := n.(SheetNotifier); ok {
		sn.NotifySheet(path, sheet)
		return nil
	}
	n.Notify(path)
	return nil
}
