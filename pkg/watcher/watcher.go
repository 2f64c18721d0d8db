// Package watcher re-triggers aggregation passes on an interval and when
// new run directories appear in a scenario.
package watcher

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Defaults for Config.
const (
	DefaultInterval = 5 * time.Minute
	DefaultDebounce = 10 * time.Second
)

// PassFunc runs one aggregation pass.
type PassFunc func(ctx context.Context) error

// Config configures a watcher.
type Config struct {
	// Dir is the scenario directory whose new sub-directories trigger a pass.
	Dir string
	// Interval between periodic passes.
	Interval time.Duration
	// Debounce collapses bursts of new directories into one pass.
	Debounce time.Duration
}

// Watcher runs passes until its context ends.
type Watcher interface {
	Run(ctx context.Context, pass PassFunc) error
}

type watcher struct {
	log logrus.FieldLogger
	cfg Config
}

// Ensure interface compliance.
var _ Watcher = (*watcher)(nil)

// New creates a watcher.
func New(log logrus.FieldLogger, cfg Config) Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	return &watcher{
		log: log.WithField("component", "watcher"),
		cfg: cfg,
	}
}

// Run executes a pass immediately, then again on every interval tick and
// after new run directories settle. A failed pass is logged and the watch
// continues. Run returns when ctx is done.
func (w *watcher) Run(ctx context.Context, pass PassFunc) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fs watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.cfg.Dir, err)
	}

	w.log.WithFields(logrus.Fields{
		"dir":      w.cfg.Dir,
		"interval": w.cfg.Interval.String(),
	}).Info("Watching scenario")

	trigger := make(chan struct{}, 1)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)

	defer func() {
		timerMu.Lock()
		defer timerMu.Unlock()

		if timer != nil {
			timer.Stop()
		}
	}()

	schedule := func() {
		timerMu.Lock()
		defer timerMu.Unlock()

		if timer != nil {
			timer.Stop()
		}

		timer = time.AfterFunc(w.cfg.Debounce, func() {
			select {
			case trigger <- struct{}{}:
			default:
			}
		})
	}

	w.runPass(ctx, pass, "startup")

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.runPass(ctx, pass, "interval")
		case <-trigger:
			w.runPass(ctx, pass, "new runs")
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}

			if isNewDir(event) {
				w.log.WithField("path", event.Name).Debug("New run directory")
				schedule()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}

			w.log.WithError(err).Warn("Watcher error")
		}
	}
}

func (w *watcher) runPass(ctx context.Context, pass PassFunc, reason string) {
	start := time.Now()

	if err := pass(ctx); err != nil {
		w.log.WithError(err).WithField("trigger", reason).Warn("Pass failed")

		return
	}

	w.log.WithFields(logrus.Fields{
		"trigger":  reason,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("Pass finished")
}

func isNewDir(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}

	info, err := os.Stat(event.Name)

	return err == nil && info.IsDir()
}
