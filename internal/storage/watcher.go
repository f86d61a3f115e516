package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of file events into one callback.
const DefaultDebounce = 150 * time.Millisecond

// Watch reports changes made to a FileStore directory, typically by
// another process sharing it. onChange receives the set of keys touched
// since the previous call. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, dir string, debounce time.Duration, logger *slog.Logger, onChange func(keys []string)) error {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info("watching storage directory", slog.String("dir", dir))

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
	)
	flush := func() {
		mu.Lock()
		keys := make([]string, 0, len(pending))
		for key := range pending {
			keys = append(keys, key)
		}
		pending = make(map[string]struct{})
		mu.Unlock()

		if len(keys) > 0 && ctx.Err() == nil {
			onChange(keys)
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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			key, ok := KeyForFile(event.Name)
			if !ok {
				continue
			}
			mu.Lock()
			pending[key] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(debounce, flush)
			} else {
				timer.Reset(debounce)
			}
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("storage watcher error", slog.String("error", err.Error()))
		}
	}
}
