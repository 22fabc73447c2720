// Package watch reruns an action whenever one of a set of files changes.
package watch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const DefaultDebounce = 300 * time.Millisecond

type Action func(ctx context.Context) error

type Watcher struct {
	log      *zap.Logger
	paths    []string
	debounce time.Duration
}

func New(log *zap.Logger, debounce time.Duration, paths ...string) *Watcher {
	return &Watcher{log: log, paths: paths, debounce: lo.Ternary(debounce > 0, debounce, DefaultDebounce)}
}

// Run invokes action once and then after every burst of changes to the
// watched files, until ctx is cancelled. Action errors are logged and do not
// stop the loop.
func (w *Watcher) Run(ctx context.Context, action Action) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrapf(err, "failed to init file watcher")
	}
	defer fw.Close()

	watched := map[string]bool{}
	for _, p := range w.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return errors.Wrapf(err, "failed to resolve %s", p)
		}
		watched[abs] = true
	}
	// editors replace files on save, so the parent directories are watched
	for _, dir := range lo.Uniq(lo.Map(lo.Keys(watched), func(p string, _ int) string { return filepath.Dir(p) })) {
		if err := fw.Add(dir); err != nil {
			return errors.Wrapf(err, "failed to watch %s", dir)
		}
	}

	w.invoke(ctx, action)
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.log.Debug("watched file changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			fire = time.After(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("file watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			w.invoke(ctx, action)
		}
	}
}

func (w *Watcher) invoke(ctx context.Context, action Action) {
	if err := action(ctx); err != nil && ctx.Err() == nil {
		w.log.Warn("watched run failed", zap.Error(err))
	}
}
