package builder

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch rebuilds the manifest after each burst of library changes until ctx
// is done. onBuild receives every rebuild outcome; a failed rebuild does not
// stop the loop.
func (b *Builder) Watch(ctx context.Context, debounce time.Duration, onBuild func(Result, error)) error {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := b.addTree(w, b.root); err != nil {
		return err
	}
	b.log.Info("watching library", zap.String("root", b.root), zap.Duration("debounce", debounce))

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !b.relevant(event) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if err := b.addTree(w, event.Name); err != nil {
					b.log.Debug("watch new dir failed", zap.String("dir", event.Name), zap.Error(err))
				}
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			res, err := b.Build(ctx)
			if err != nil {
				b.log.Error("rebuild failed", zap.Error(err))
			}
			if onBuild != nil {
				onBuild(res, err)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			b.log.Warn("watch error", zap.Error(err))
		}
	}
}

// relevant drops events for hidden entries and the manifest itself.
func (b *Builder) relevant(event fsnotify.Event) bool {
	if event.Name == b.output || IsHidden(filepath.Base(event.Name)) {
		return false
	}
	return event.Op != fsnotify.Chmod
}

// addTree watches dir and every visible directory below it. Non-directories
// are ignored.
func (b *Builder) addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && IsHidden(d.Name()) {
			return fs.SkipDir
		}
		if err := w.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}
