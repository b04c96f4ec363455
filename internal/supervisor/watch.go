package supervisor

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watcher turns changes to the entries of the service root into wake-ups for
// the supervision loop. It never reports what changed; the loop rescans.
type Watcher struct {
	w      *fsnotify.Watcher
	wake   chan struct{}
	logger *slog.Logger
}

// NewWatcher watches dir until ctx is cancelled.
func NewWatcher(ctx context.Context, dir string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create watcher")
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, errors.Wrap(err, "failed to watch dir")
	}

	w := &Watcher{
		w:      fw,
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
	go w.watch(ctx)
	return w, nil
}

// Wake receives at most one pending notification per burst of changes.
func (w *Watcher) Wake() <-chan struct{} { return w.wake }

func (w *Watcher) watch(ctx context.Context) {
	defer func() { _ = w.w.Close() }()

	for {
		select {
		case <-ctx.Done():
			return

		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inotify error", "error", err)

		case evt, ok := <-w.w.Events:
			if !ok {
				return
			}
			// Rename is reported for the old name only; treat it like remove.
			if !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Remove) && !evt.Has(fsnotify.Rename) {
				continue
			}
			select {
			case w.wake <- struct{}{}:
			default:
			}
		}
	}
}
