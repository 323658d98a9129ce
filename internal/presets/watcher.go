package presets

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ephemcp/pkg/logging"
)

const (
	defaultDebounce = 300 * time.Millisecond
	relevantOps     = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename
)

// Watch reloads the catalog whenever a YAML file in the user directory is
// created, written, removed or renamed. Bursts of events are debounced.
// onReload, if set, is called after every reload attempt. Watch blocks until
// ctx is done.
func (c *Catalog) Watch(ctx context.Context, debounce time.Duration, onReload func(error)) error {
	if c.dir == "" {
		return fmt.Errorf("no preset directory configured")
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create preset directory %s: %w", c.dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", c.dir, err)
	}
	logging.Info("Presets", "Watching %s for preset changes", c.dir)

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		err := c.Reload()
		if err != nil {
			logging.Error("Presets", err, "Failed to reload presets")
		} else {
			logging.Info("Presets", "Reloaded presets from %s", c.dir)
		}
		if onReload != nil {
			onReload(err)
		}
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isYAMLFile(event.Name) || event.Op&relevantOps == 0 {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("Presets", err, "Preset watcher error")
		}
	}
}
