package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bassista/sheetwatch/internal/alert"
	"github.com/bassista/sheetwatch/internal/cache"
	"github.com/bassista/sheetwatch/internal/config"
	"github.com/bassista/sheetwatch/internal/logger"
	"github.com/bassista/sheetwatch/internal/trigger"
	"github.com/bassista/sheetwatch/internal/watcher"
	"github.com/bassista/sheetwatch/internal/workbook"
)

// App is the application container (immutable dependencies + lifecycle context).
// It is not a request context; handlers should still use gin's request context.
type App struct {
	Config  *config.Config
	Backend workbook.Backend
	Cache   cache.AppStore
	Trigger trigger.Adapter
	Watcher *watcher.Watcher
	Alerts  *alert.Reporter

	BaseCtx context.Context
	Cancel  context.CancelFunc
}

func New(cfg *config.Config, backend workbook.Backend, store cache.AppStore, adapter trigger.Adapter, reporter *alert.Reporter) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if backend == nil {
		return nil, errors.New("backend is nil")
	}
	if store == nil {
		return nil, errors.New("cache store is nil")
	}
	if adapter == nil {
		return nil, errors.New("trigger is nil")
	}
	if reporter == nil {
		return nil, errors.New("alert reporter is nil")
	}

	opts := watcher.Options{
		Workers:           cfg.Watch.Workers,
		CaptureRetries:    cfg.Watch.CaptureRetries,
		CaptureRetryDelay: cfg.Watch.CaptureRetryDelay,
		OnSourceFailure: func(err error) {
			reporter.SourceFailure(adapter.Kind(), err)
		},
		OnResourceError: reporter.ResourceFailure,
	}
	if cfg.Highlight.Enabled {
		predicate, err := workbook.NewPredicate(cfg.Highlight.Marker, cfg.Highlight.Condition)
		if err != nil {
			return nil, err
		}
		opts.Highlight = predicate
	}

	resources := make([]watcher.Resource, 0, len(cfg.Watch.Resources))
	for _, r := range cfg.Watch.Resources {
		resources = append(resources, watcher.Resource{Name: r.Name, Path: r.Path})
	}
	w, err := watcher.New(resources, backend, store, adapter, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot init watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		Config:  cfg,
		Backend: backend,
		Cache:   store,
		Trigger: adapter,
		Watcher: w,
		Alerts:  reporter,
		BaseCtx: ctx,
		Cancel:  cancel,
	}, nil
}

// NewFromConfig builds the backend, store, trigger and reporter described by cfg.
func NewFromConfig(cfg *config.Config, log *logrus.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	backend, err := workbook.NewBackendFromConfig(cfg.Watch.Backend, cfg.Highlight.FillColor)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(cfg.Watch.Resources))
	for _, r := range cfg.Watch.Resources {
		paths = append(paths, r.Path)
	}
	adapter, err := trigger.New(trigger.Kind(cfg.Watch.Trigger), paths, trigger.Options{
		Debounce:     cfg.Watch.Debounce,
		PollInterval: cfg.Watch.PollInterval,
		Prober:       backend,
	})
	if err != nil {
		return nil, err
	}

	return New(cfg, backend, cache.NewStore(cfg.Watch.EventHistory), adapter, alert.NewReporter(log))
}

// Callback returns the callback adapter when it is the active trigger, nil otherwise.
func (a *App) Callback() *trigger.CallbackAdapter {
	cb, _ := a.Trigger.(*trigger.CallbackAdapter)
	return cb
}

func (a *App) Shutdown() {
	if a == nil || a.Cancel == nil {
		return
	}
	if a.Watcher != nil {
		if err := a.Watcher.Stop(); err != nil {
			logger.WithComponent("app").Warnf("stop watcher: %v", err)
		}
	}
	a.Cancel()
	if a.Alerts != nil {
		a.Alerts.Flush()
	}
}

// StartWatchers captures the baselines and starts delivering change signals.
func (a *App) StartWatchers() error {
	if err := a.Watcher.Start(a.BaseCtx); err != nil {
		return fmt.Errorf("cannot start %s trigger: %w", a.Trigger.Kind(), err)
	}
	return nil
}
