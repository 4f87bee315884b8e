package draft

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the event burst of one atomic write.
const DefaultWatchDebounce = 200 * time.Millisecond

// Watch observes the draft directory until ctx is cancelled and calls cb
// once per burst of changes to the draft file made by another writer.
// Changes this store made itself are ignored.
func (f *FS) Watch(ctx context.Context, logger *slog.Logger, debounce time.Duration, cb func()) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(f.dir); err != nil {
		return err
	}
	logger.Info("draft watcher: started", slog.String("dir", f.dir))

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("draft watcher: stopped")
			return nil

		case <-fire:
			fire = nil
			if f.changedExternally() {
				logger.Debug("draft watcher: external change", slog.String("path", f.Path()))
				cb()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != FileName {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("draft watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
