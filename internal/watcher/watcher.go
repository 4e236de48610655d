// Package watcher turns change signals into capture, diff and highlight
// passes over a static set of workbooks.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bassista/sheetwatch/internal/cache"
	"github.com/bassista/sheetwatch/internal/logger"
	"github.com/bassista/sheetwatch/internal/snapshot"
	"github.com/bassista/sheetwatch/internal/trigger"
	"github.com/bassista/sheetwatch/internal/workbook"
)

// Resource is a watched workbook. Path is its ID.
type Resource struct {
	Name string
	Path string
}

// Options tunes the watcher.
type Options struct {
	Workers           int
	CaptureRetries    int
	CaptureRetryDelay time.Duration
	// Highlight is applied after every triggered pass when not nil.
	Highlight workbook.Predicate
	// OnSourceFailure is called once per fatal trigger source error.
	OnSourceFailure func(err error)
	// OnResourceError is called for every failed pass.
	OnResourceError func(resourceID string, err error)
}

type queueState int

const (
	stateQueued queueState = iota + 1
	stateProcessing
	stateRerun // processing, one more pass requested
)

// Watcher owns the coalescing queue and the worker pool.
//
// A resource is in at most one of queued, processing or processing+rerun.
// Signals for a queued resource are dropped; signals for a processing
// resource set the rerun flag, so any number of signals during a pass yield
// at most one extra pass.
type Watcher struct {
	backend   workbook.Backend
	store     cache.SnapshotStore
	adapter   trigger.Adapter
	opts      Options
	resources map[string]Resource

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []string
	states map[string]queueState
	quit   chan struct{}

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a watcher. Resources are registered in store.
func New(resources []Resource, backend workbook.Backend, store cache.SnapshotStore, adapter trigger.Adapter, opts Options) (*Watcher, error) {
	if backend == nil {
		return nil, errors.New("backend is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if adapter == nil {
		return nil, errors.New("trigger adapter is nil")
	}
	if len(resources) == 0 {
		return nil, errors.New("no resources to watch")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	w := &Watcher{
		backend:   backend,
		store:     store,
		adapter:   adapter,
		opts:      opts,
		resources: make(map[string]Resource, len(resources)),
		states:    map[string]queueState{},
		locks:     map[string]*sync.Mutex{},
	}
	w.cond = sync.NewCond(&w.mu)

	for _, r := range resources {
		r.Path = filepath.Clean(r.Path)
		if r.Name == "" {
			r.Name = filepath.Base(r.Path)
		}
		if _, dup := w.resources[r.Path]; dup {
			return nil, fmt.Errorf("resource %s listed twice", r.Path)
		}
		if err := store.Register(r.Name, r.Path); err != nil {
			return nil, err
		}
		w.resources[r.Path] = r
	}
	return w, nil
}

// Resources returns the watched resources.
func (w *Watcher) Resources() []Resource {
	out := make([]Resource, 0, len(w.resources))
	for _, r := range w.resources {
		out = append(out, r)
	}
	return out
}

// Adapter returns the trigger adapter feeding the watcher.
func (w *Watcher) Adapter() trigger.Adapter {
	return w.adapter
}

// Running reports whether the watcher accepts signals.
func (w *Watcher) Running() bool {
	return w.running.Load()
}

// Start captures a baseline of every resource, starts the workers and then
// the trigger adapter.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("watcher already running")
	}
	log := logger.WithComponent("watcher")
	log.Infof("starting watcher: %d resources, trigger %s, %d workers", len(w.resources), w.adapter.Kind(), w.opts.Workers)

	w.mu.Lock()
	w.quit = make(chan struct{})
	quit := w.quit
	w.mu.Unlock()

	for id := range w.resources {
		w.prime(ctx, id)
	}

	for i := 0; i < w.opts.Workers; i++ {
		w.wg.Add(1)
		go w.worker(ctx)
	}

	if err := w.adapter.Start(ctx, w); err != nil {
		w.shutdownWorkers()
		return err
	}
	go w.watchSource(ctx, quit)
	return nil
}

// Stop rejects new signals, lets in-flight passes finish and then releases
// the trigger source. Resources still queued are not processed.
func (w *Watcher) Stop() error {
	if !w.running.Load() {
		return nil
	}
	w.shutdownWorkers()
	err := w.adapter.Stop()
	logger.WithComponent("watcher").Info("watcher stopped")
	return err
}

func (w *Watcher) shutdownWorkers() {
	w.mu.Lock()
	w.running.Store(false)
	w.queue = nil
	if w.quit != nil {
		close(w.quit)
		w.quit = nil
	}
	for id, st := range w.states {
		if st == stateQueued {
			delete(w.states, id)
		}
	}
	w.cond.Broadcast()
	w.mu.Unlock()
	w.wg.Wait()
}

// Notify implements trigger.Notifier. It never blocks on processing.
func (w *Watcher) Notify(resourceID string) {
	id := filepath.Clean(resourceID)
	if _, ok := w.resources[id]; !ok {
		logger.WithComponent("watcher").Debugf("signal for unknown resource %s ignored", resourceID)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running.Load() {
		return
	}
	switch w.states[id] {
	case stateQueued, stateRerun:
		// already covered by a pending pass
	case stateProcessing:
		w.states[id] = stateRerun
	default:
		w.states[id] = stateQueued
		w.queue = append(w.queue, id)
		w.cond.Signal()
	}
}

// NotifySheet implements trigger.SheetNotifier. The sheet is a hint only:
// the whole resource is captured.
func (w *Watcher) NotifySheet(resourceID, sheet string) {
	if sheet != "" {
		logger.WithResource("watcher", resourceID).Debugf("modification reported on sheet %q", sheet)
	}
	w.Notify(resourceID)
}

func (w *Watcher) worker(ctx context.Context) {
	defer w.wg.Done()
	for {
		id, ok := w.next()
		if !ok {
			return
		}
		if err := w.Process(ctx, id); err != nil {
			logger.WithResource("watcher", id).Tracef("pass ended with error: %v", err)
		}
		w.done(id)
	}
}

// next pops the next queued resource, waiting while the queue is empty.
func (w *Watcher) next() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for len(w.queue) == 0 && w.running.Load() {
		w.cond.Wait()
	}
	if !w.running.Load() {
		return "", false
	}
	id := w.queue[0]
	w.queue = w.queue[1:]
	w.states[id] = stateProcessing
	return id, true
}

func (w *Watcher) done(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.states[id] == stateRerun && w.running.Load() {
		w.states[id] = stateQueued
		w.queue = append(w.queue, id)
		w.cond.Signal()
		return
	}
	delete(w.states, id)
}

// Pending returns the number of resources queued or being processed.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.states)
}

func (w *Watcher) watchSource(ctx context.Context, quit <-chan struct{}) {
	select {
	case <-ctx.Done():
	case <-quit:
	case err, ok := <-w.adapter.Errors():
		if !ok || err == nil {
			return
		}
		logger.WithComponent("watcher").WithError(err).Errorf("trigger %s failed, no further signals will be delivered", w.adapter.Kind())
		if w.opts.OnSourceFailure != nil {
			w.opts.OnSourceFailure(err)
		}
	}
}

func (w *Watcher) lockFor(id string) *sync.Mutex {
	w.locksMu.Lock()
	defer w.locksMu.Unlock()
	l, ok := w.locks[id]
	if !ok {
		l = &sync.Mutex{}
		w.locks[id] = l
	}
	return l
}

// prime stores the startup baseline. Failures are logged; the first
// successful triggered pass then becomes the baseline.
func (w *Watcher) prime(ctx context.Context, id string) {
	l := w.lockFor(id)
	l.Lock()
	defer l.Unlock()

	log := logger.WithResource("watcher", id)
	snap, err := w.capture(ctx, id)
	if err != nil {
		w.report(log, id, err)
		return
	}
	if err := w.store.Commit(id, snap, nil); err != nil {
		log.Errorf("store baseline: %v", err)
		return
	}
	log.Infof("initial state loaded: %d sheets, %d cells", len(snap), snap.CellCount())
}

// Process runs one pass over the resource: capture, diff against the stored
// snapshot, log and store the events, then highlight when configured.
// The stored snapshot always reflects the final on-disk state.
func (w *Watcher) Process(ctx context.Context, resourceID string) error {
	id := filepath.Clean(resourceID)
	if _, ok := w.resources[id]; !ok {
		return fmt.Errorf("%w: %s", trigger.ErrUnknownResource, resourceID)
	}

	l := w.lockFor(id)
	l.Lock()
	defer l.Unlock()

	log := logger.WithResource("watcher", id)
	log.Debug("change detected, capturing")

	cur, err := w.capture(ctx, id)
	if err != nil {
		w.report(log, id, err)
		return err
	}

	old := w.store.Baseline(id)
	if old == nil {
		if err := w.store.Commit(id, cur, nil); err != nil {
			return err
		}
		log.Infof("baseline captured: %d sheets, %d cells", len(cur), cur.CellCount())
	} else {
		events := snapshot.DiffResource(id, old, cur)
		logEvents(log, events)
		if err := w.store.Commit(id, cur, events); err != nil {
			return err
		}
	}

	if w.opts.Highlight == nil {
		return nil
	}
	return w.highlight(ctx, log, id, cur)
}

func (w *Watcher) highlight(ctx context.Context, log *logrus.Entry, id string, captured snapshot.Snapshot) error {
	res, err := w.backend.Highlight(ctx, id, w.opts.Highlight)
	if err != nil {
		w.report(log, id, err)
		return err
	}
	if !res.Modified {
		log.Trace("no cells to highlight")
		return nil
	}

	for _, cell := range res.Cells {
		log.WithField("cell", cell).Info("trigger text found, cell highlighted")
	}
	log.WithField("backup", res.BackupPath).Infof("highlighted %d cells, backup created", len(res.Cells))
	w.store.RecordHighlight(id, res)

	final, err := w.capture(ctx, id)
	if err != nil {
		w.report(log, id, err)
		return err
	}
	events := snapshot.DiffResource(id, captured, final)
	logEvents(log, events)
	return w.store.Commit(id, final, events)
}

// capture retries a bounded number of times while the resource is unavailable.
func (w *Watcher) capture(ctx context.Context, id string) (snapshot.Snapshot, error) {
	var err error
	for attempt := 0; ; attempt++ {
		var snap snapshot.Snapshot
		snap, err = w.backend.Capture(ctx, id)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, workbook.ErrResourceUnavailable) || attempt >= w.opts.CaptureRetries {
			return nil, err
		}
		logger.WithResource("watcher", id).Debugf("resource busy, retry %d/%d in %v", attempt+1, w.opts.CaptureRetries, w.opts.CaptureRetryDelay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.opts.CaptureRetryDelay):
		}
	}
}

// report logs err at the level its class calls for and records it on the resource.
func (w *Watcher) report(log *logrus.Entry, id string, err error) {
	w.store.RecordError(id, err)
	switch {
	case errors.Is(err, workbook.ErrResourceUnavailable):
		log.WithError(err).Warn("resource unavailable, waiting for next trigger")
	case errors.Is(err, workbook.ErrWriteConflict):
		log.WithError(err).Warn("write conflict, highlight abandoned")
	case errors.Is(err, workbook.ErrFormat):
		log.WithError(err).Error("cannot parse workbook, skipped until next trigger")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.WithError(err).Debug("pass cancelled")
		return
	default:
		log.WithError(err).Error("pass failed")
	}
	if w.opts.OnResourceError != nil {
		w.opts.OnResourceError(id, err)
	}
}

func logEvents(log *logrus.Entry, events []snapshot.ChangeEvent) {
	if len(events) == 0 {
		log.Debug("no changes")
		return
	}
	for _, ev := range events {
		log.WithFields(logrus.Fields{
			"event": string(ev.Kind),
			"sheet": ev.Sheet,
			"cell":  ev.Cell,
			"old":   ev.OldValue,
			"new":   ev.NewValue,
		}).Info("Event: " + ev.String())
	}
}
