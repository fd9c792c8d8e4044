// Package watch re-runs the reconciliation cycle on a cron schedule,
// reloading the configuration when its file changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/pwci/pw-ci/internal/config"
)

// Watcher schedules repeated runs of one cycle function. Run receives the
// freshest successfully loaded configuration; a failing cycle is logged
// and the schedule keeps going.
type Watcher struct {
	ConfigPath string
	Schedule   string
	Run        func(cfg *config.Config) error
}

func parseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("bad cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// Start runs one cycle immediately, then on schedule until the context is
// cancelled. It returns nil on a clean shutdown.
func (w *Watcher) Start(ctx context.Context) error {
	sched, err := parseSchedule(w.Schedule)
	if err != nil {
		return err
	}

	reload := make(chan struct{}, 1)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return w.watchConfig(ctx, reload) })
	g.Go(func() error { return w.loop(ctx, sched, reload) })

	return g.Wait()
}

func (w *Watcher) loadConfig() (*config.Config, error) {
	if w.ConfigPath == "" {
		return config.Default(), nil
	}
	return config.Load(w.ConfigPath)
}

func (w *Watcher) loop(ctx context.Context, sched cron.Schedule, reload <-chan struct{}) error {
	cfg, err := w.loadConfig()
	if err != nil {
		return err
	}

	w.cycle(cfg)

	for {
		timer := time.NewTimer(time.Until(sched.Next(time.Now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-reload:
			timer.Stop()
			fresh, err := w.loadConfig()
			if err != nil {
				fmt.Printf("Config reload failed: %v\n", err)
				continue
			}
			cfg = fresh
			fmt.Printf("Config reloaded from %s\n", w.ConfigPath)
		case <-timer.C:
			w.cycle(cfg)
		}
	}
}

func (w *Watcher) cycle(cfg *config.Config) {
	if err := w.Run(cfg); err != nil {
		fmt.Printf("Cycle failed: %v\n", err)
	}
}

// watchConfig signals reload when the config file is rewritten. The parent
// directory is watched so editors that replace the file are still seen.
func (w *Watcher) watchConfig(ctx context.Context, reload chan<- struct{}) error {
	if w.ConfigPath == "" {
		<-ctx.Done()
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.ConfigPath)); err != nil {
		return err
	}

	name := filepath.Base(w.ConfigPath)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			select {
			case reload <- struct{}{}:
			default:
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			fmt.Printf("Config watch error: %v\n", err)
		}
	}
}
