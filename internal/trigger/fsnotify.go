package trigger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bassista/sheetwatch/internal/logger"
)

// FSNotifyAdapter turns filesystem write events into change signals.
//
// It watches the parent directories (not the files) so atomic replace
// sequences (temp+rename) keep being observed. Events are filtered by path
// and debounced per resource to collapse write bursts.
type FSNotifyAdapter struct {
	paths    map[string]struct{}
	debounce time.Duration

	mu       sync.Mutex
	timers   map[string]*time.Timer
	watcher  *fsnotify.Watcher
	stopped  bool
	inflight sync.WaitGroup // debounced notifications being delivered

	errs chan error
	stop chan struct{}
	done chan struct{}
}

func NewFSNotifyAdapter(resources []string, debounce time.Duration) *FSNotifyAdapter {
	return &FSNotifyAdapter{
		paths:    resourceSet(resources),
		debounce: debounce,
		timers:   map[string]*time.Timer{},
		errs:     make(chan error, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (a *FSNotifyAdapter) Kind() Kind { return KindFSNotify }

func (a *FSNotifyAdapter) Errors() <-chan error { return a.errs }

func (a *FSNotifyAdapter) Start(ctx context.Context, n Notifier) error {
	if n == nil {
		return errors.New("notifier is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: create watcher: %v", ErrTriggerSource, err)
	}

	for _, dir := range a.dirs() {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("%w: watch dir %s: %v", ErrTriggerSource, dir, err)
		}
		logger.WithComponent("fsnotify").Debugf("watching directory %s", dir)
	}

	a.mu.Lock()
	a.watcher = watcher
	a.mu.Unlock()

	go a.loop(ctx, watcher, n)
	return nil
}

func (a *FSNotifyAdapter) loop(ctx context.Context, watcher *fsnotify.Watcher, n Notifier) {
	defer close(a.done)
	log := logger.WithComponent("fsnotify")

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				a.fail(errors.New("event channel closed"))
				return
			}
			path := filepath.Clean(event.Name)
			if _, watched := a.paths[path]; !watched {
				continue
			}
			// Write covers in-place saves; Create/Rename/Remove cover atomic replace.
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			log.Tracef("event %s on %s", event.Op, filepath.Base(path))
			a.schedule(path, n)
		case err, ok := <-watcher.Errors:
			if !ok {
				a.fail(errors.New("error channel closed"))
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// events were dropped: every resource may have changed
				log.Warnf("watcher queue overflow, rescanning all resources")
				for path := range a.paths {
					a.schedule(path, n)
				}
				continue
			}
			log.Errorf("watcher error: %v", err)
		}
	}
}

// schedule (re)arms the debounce timer of path. If the timer is stopped
// before it fires, the pending notification does not run.
func (a *FSNotifyAdapter) schedule(path string, n Notifier) {
	if a.debounce <= 0 {
		n.Notify(path)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if t, ok := a.timers[path]; ok {
		t.Stop()
	}
	a.timers[path] = time.AfterFunc(a.debounce, func() {
		a.mu.Lock()
		delete(a.timers, path)
		if a.stopped {
			a.mu.Unlock()
			return
		}
		a.inflight.Add(1)
		a.mu.Unlock()

		defer a.inflight.Done()
		n.Notify(path)
	})
}

func (a *FSNotifyAdapter) fail(err error) {
	wrapped := fmt.Errorf("%w: fsnotify: %v", ErrTriggerSource, err)
	logger.WithComponent("fsnotify").Error(wrapped)
	sendErr(a.errs, wrapped)
}

func (a *FSNotifyAdapter) Stop() error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	for path, t := range a.timers {
		t.Stop()
		delete(a.timers, path)
	}
	watcher := a.watcher
	a.mu.Unlock()

	// callbacks that passed the stopped check before it was set
	a.inflight.Wait()
	if watcher == nil {
		return nil
	}
	close(a.stop)
	<-a.done
	return watcher.Close()
}

func (a *FSNotifyAdapter) dirs() []string {
	set := map[string]struct{}{}
	for path := range a.paths {
		set[filepath.Dir(path)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for dir := range set {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}
