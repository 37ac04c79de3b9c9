package keymap

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a key map file must stay quiet before it is reloaded.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a key map file whenever it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	c        chan KeyMap
	// readyC is closed once the directory is being watched.
	readyC    chan struct{}
	readyOnce sync.Once
}

func NewWatcher(path string) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	return &Watcher{
		path:     absPath,
		debounce: DefaultDebounce,
		c:        make(chan KeyMap, 1),
		readyC:   make(chan struct{}),
	}, nil
}

func (w *Watcher) String() string {
	return fmt.Sprintf("keymap.Watcher(path=%s)", w.path)
}

// C carries the newest successfully parsed key map.
// A table that was never received is replaced by a newer one.
func (w *Watcher) C() <-chan KeyMap {
	return w.c
}

func (w *Watcher) Serve(ctx context.Context) error {
	slog := slog.With("service", w.String())

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsWatcher.Close()

	// Editors replace files by renaming, so watch the directory.
	if err := fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.readyOnce.Do(func() { close(w.readyC) })

	// A writer truncates before it writes, so reload only once the file settles.
	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reload:
			reload = nil

			km, err := Load(w.path)
			if err != nil {
				slog.Error("Failed to reload key map", "error", err)
				continue
			}

			slog.Info("Reloaded key map", "keys", km.Len())
			w.publish(km)
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			return err
		case ev, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			reload = timer.C
		}
	}
}

func (w *Watcher) publish(km KeyMap) {
	for {
		select {
		case w.c <- km:
			return
		default:
		}

		select {
		case <-w.c:
		default:
		}
	}
}
