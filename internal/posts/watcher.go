package posts

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// StartWatcher watches the index directory and reloads the index when post
// files change. Bursts of events are coalesced; onChange runs after each
// reload so the caller can broadcast.
func StartWatcher(ctx context.Context, idx *Index, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(idx.Dir()); err != nil {
		watcher.Close()
		return err
	}

	go runWatcher(ctx, watcher, idx, onChange)

	slog.Info("posts watcher started", "dir", idx.Dir())
	return nil
}

func runWatcher(ctx context.Context, watcher *fsnotify.Watcher, idx *Index, onChange func()) {
	defer watcher.Close()

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, func() {
			if err := idx.Reload(); err != nil {
				slog.Warn("posts reload", "err", err)
			}
			slog.Debug("posts reloaded", "count", len(idx.All()))
			if onChange != nil {
				onChange()
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !IsPostFile(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				trigger()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("posts watcher error", "err", err)
		}
	}
}
