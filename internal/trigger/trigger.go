// Package trigger delivers "resource may have changed" signals to the
// watcher. Every strategy (filesystem events, lock polling, host application
// callback) sits behind the same Adapter interface.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Kind identifies a trigger strategy.
type Kind string

const (
	KindFSNotify Kind = "fsnotify"
	KindPolling  Kind = "polling"
	KindCallback Kind = "callback"
)

// ErrTriggerSource marks a failure of the underlying notification channel.
// An adapter that reports it delivers no further signals.
var ErrTriggerSource = errors.New("trigger source failure")

// ErrUnknownResource is returned by the callback adapter for resources it was not configured with.
var ErrUnknownResource = errors.New("unknown resource")

// Notifier receives change signals. Implementations must not block.
type Notifier interface {
	Notify(resourceID string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(resourceID string)

func (f NotifierFunc) Notify(resourceID string) { f(resourceID) }

// SheetNotifier is implemented by notifiers that want the sheet hint a host
// application callback carries.
type SheetNotifier interface {
	NotifySheet(resourceID, sheet string)
}

// Adapter produces change signals for a fixed set of resources.
type Adapter interface {
	Kind() Kind
	// Start begins delivering signals to n. It returns once the source is set up.
	Start(ctx context.Context, n Notifier) error
	// Stop releases the source. No signal is delivered after Stop returns.
	Stop() error
	// Errors reports fatal source failures wrapping ErrTriggerSource.
	Errors() <-chan error
}

// Prober reports whether a file is held open by another process.
type Prober interface {
	Probe(path string) (bool, error)
}

// Options configures the adapters created by New.
type Options struct {
	Debounce     time.Duration
	PollInterval time.Duration
	Prober       Prober
}

// New creates the adapter for kind watching resources (absolute paths).
func New(kind Kind, resources []string, opts Options) (Adapter, error) {
	switch kind {
	case KindFSNotify, "":
		return NewFSNotifyAdapter(resources, opts.Debounce), nil
	case KindPolling:
		if opts.Prober == nil {
			return nil, errors.New("polling trigger needs a prober")
		}
		return NewPollingAdapter(resources, opts.Prober, opts.PollInterval), nil
	case KindCallback:
		return NewCallbackAdapter(resources), nil
	default:
		return nil, fmt.Errorf("unknown trigger type: %s (supported: %s, %s, %s)", kind, KindFSNotify, KindPolling, KindCallback)
	}
}

func resourceSet(resources []string) map[string]struct{} {
	set := make(map[string]struct{}, len(resources))
	for _, r := range resources {
		set[filepath.Clean(r)] = struct{}{}
	}
	return set
}

// sendErr delivers a fatal error without blocking; only the first one is kept.
func sendErr(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}
