package trigger

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/bassista/sheetwatch/internal/logger"
)

// ProbeState is what the poller remembers about a resource between ticks.
type ProbeState struct {
	Seen      bool
	Locked    bool
	Available bool
	Size      int64
	ModTime   time.Time
}

// PollingAdapter probes every resource on a fixed interval and signals a change when:
// - the resource is locked (an editor holds it open);
// - it was locked on the previous tick and is now released;
// - its size or modification time moved since the previous tick;
// - it became available again after being missing.
//
// NOTE: state is in-memory only. The first tick records state and only
// signals for resources that are already locked.
type PollingAdapter struct {
	paths  []string
	prober Prober
	poll   time.Duration
	stat   func(path string) (os.FileInfo, error)

	mu     sync.Mutex
	states map[string]ProbeState
	cancel context.CancelFunc
	done   chan struct{}

	errs chan error
}

func NewPollingAdapter(resources []string, prober Prober, interval time.Duration) *PollingAdapter {
	set := resourceSet(resources)
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	return &PollingAdapter{
		paths:  paths,
		prober: prober,
		poll:   interval,
		stat:   os.Stat,
		states: map[string]ProbeState{},
		errs:   make(chan error, 1),
	}
}

func (a *PollingAdapter) Kind() Kind { return KindPolling }

func (a *PollingAdapter) Errors() <-chan error { return a.errs }

func (a *PollingAdapter) Start(ctx context.Context, n Notifier) error {
	if n == nil {
		return errors.New("notifier is required")
	}
	if a.poll <= 0 {
		return errors.New("poll interval must be positive")
	}

	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		return errors.New("polling trigger already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	done := a.done
	a.mu.Unlock()

	logger.WithComponent("poll").Debugf("starting polling trigger with interval: %v, resources: %d", a.poll, len(a.paths))
	ticker := time.NewTicker(a.poll)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.WithComponent("poll").Info("polling trigger stopped")
				return
			case <-ticker.C:
				a.tick(ctx, n)
			}
		}
	}()
	return nil
}

func (a *PollingAdapter) tick(ctx context.Context, n Notifier) {
	for _, path := range a.paths {
		// allow early exit during long iterations
		select {
		case <-ctx.Done():
			return
		default:
		}

		prev := a.getState(path)
		cur := a.probe(path)
		a.setState(path, cur)

		if changed(prev, cur) {
			logger.WithComponent("poll").Tracef("change detected on %s (locked=%v, was locked=%v)", path, cur.Locked, prev.Locked)
			n.Notify(path)
		}
	}
}

func (a *PollingAdapter) probe(path string) ProbeState {
	state := ProbeState{Seen: true}

	locked, err := a.prober.Probe(path)
	if err != nil {
		logger.WithComponent("poll").Debugf("probe %s: %v", path, err)
		return state
	}
	state.Available = true
	state.Locked = locked

	if info, err := a.stat(path); err == nil {
		state.Size = info.Size()
		state.ModTime = info.ModTime()
	}
	return state
}

// changed decides whether the transition prev -> cur is a change signal.
func changed(prev, cur ProbeState) bool {
	if !cur.Available {
		return false
	}
	if cur.Locked {
		return true
	}
	if !prev.Seen {
		return false
	}
	if !prev.Available || prev.Locked {
		return true
	}
	return cur.Size != prev.Size || !cur.ModTime.Equal(prev.ModTime)
}

func (a *PollingAdapter) getState(path string) ProbeState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.states[path]
}

func (a *PollingAdapter) setState(path string, state ProbeState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states[path] = state
}

func (a *PollingAdapter) Stop() error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
