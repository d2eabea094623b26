package adapter

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	m "nest.dev/pkg/nest/internal/model"
)

// Watcher reports batches of changed files.
type Watcher interface {
	// Watch observes the given files and directories until ctx is done. Each
	// value sent on the returned channel is a sorted, de-duplicated batch of
	// paths that changed within one debounce window. The channel is closed
	// when watching stops.
	Watch(ctx context.Context, paths []m.Path) (<-chan []m.Path, error)
}

// FSNotifyWatcher is the fsnotify-backed Watcher.
type FSNotifyWatcher struct {
	debounce time.Duration
}

// NewFSNotifyWatcher constructs a FSNotifyWatcher. A non-positive debounce
// defaults to 100ms.
func NewFSNotifyWatcher(debounce time.Duration) *FSNotifyWatcher {
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	return &FSNotifyWatcher{debounce: debounce}
}

// Watch implements Watcher.
func (w *FSNotifyWatcher) Watch(ctx context.Context, paths []m.Path) (<-chan []m.Path, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	for _, p := range paths {
		if err := addTree(fsw, string(p)); err != nil {
			_ = fsw.Close()

			return nil, fmt.Errorf("failed to watch %s: %w", p, err)
		}
	}

	out := make(chan []m.Path)

	go w.loop(ctx, fsw, out)

	return out, nil
}

func (w *FSNotifyWatcher) loop(ctx context.Context, fsw *fsnotify.Watcher, out chan<- []m.Path) {
	defer close(out)
	defer func() { _ = fsw.Close() }()

	pending := map[m.Path]struct{}{}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}

			if ignoredEvent(event) {
				continue
			}

			slog.Debug("file changed", "path", event.Name, "op", event.Op.String())

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(fsw, event.Name); err != nil {
						slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}

			pending[m.Path(event.Name)] = struct{}{}

			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}

			slog.Error("watch error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}

			batch := make([]m.Path, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}

			sort.Slice(batch, func(i, j int) bool { return batch[i] < batch[j] })

			pending = map[m.Path]struct{}{}

			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}

func ignoredEvent(event fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return true
	}

	return !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename)
}

// addTree watches root and, when it is a directory, every subdirectory that
// may hold source units.
func addTree(fsw *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fsw.Add(root)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		base := d.Name()
		if path != root && (strings.HasPrefix(base, ".") || base == "testdata" || base == "vendor") {
			return filepath.SkipDir
		}

		return fsw.Add(path)
	})
}
