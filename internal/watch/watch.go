// Package watch reports batches of file changes under a codebase root. It
// drives `xployt watch`, which re-runs the pipeline after each batch.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period that closes a batch.
const DefaultDebounce = 2 * time.Second

// Batch is a set of changed paths, relative to the root, in sorted order.
type Batch struct {
	Paths []string
}

// Options configure a Watcher.
type Options struct {
	Debounce    time.Duration // 0 uses DefaultDebounce
	ExcludeDirs []string      // directory names never descended into
	// Ignore reports paths (absolute) whose changes are discarded, such as
	// the run output directory when it lives inside the root.
	Ignore func(path string) bool
}

// Watcher monitors a directory tree using fsnotify. Directories created
// after Start are watched as they appear.
type Watcher struct {
	Root    string
	Batches <-chan Batch // Read-only external channel

	batches chan Batch // Internal write channel
	done    chan struct{}
	watcher *fsnotify.Watcher
	opts    Options
	exclude map[string]bool
}

// NewWatcher creates a watcher for the tree under root.
func NewWatcher(root string, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	exclude := make(map[string]bool, len(opts.ExcludeDirs))
	for _, d := range opts.ExcludeDirs {
		exclude[d] = true
	}

	ch := make(chan Batch, 1)
	return &Watcher{
		Root:    abs,
		Batches: ch,
		batches: ch,
		done:    make(chan struct{}),
		watcher: fw,
		opts:    opts,
		exclude: exclude,
	}, nil
}

// Start registers every directory under the root and begins watching.
func (w *Watcher) Start() error {
	if err := w.addTree(w.Root); err != nil {
		w.watcher.Close()
		return err
	}
	go w.loop()
	return nil
}

// Stop closes the watcher and the Batches channel.
func (w *Watcher) Stop() {
	w.watcher.Close()
	<-w.done // Wait for loop to exit
	close(w.batches)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil // unreadable subtree
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && w.skipDir(p) {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}

func (w *Watcher) skipDir(p string) bool {
	return w.exclude[filepath.Base(p)] || w.ignored(p)
}

func (w *Watcher) ignored(p string) bool {
	return w.opts.Ignore != nil && w.opts.Ignore(p)
}

// relevant reports whether an event on p should join the current batch.
func (w *Watcher) relevant(p string) bool {
	if w.ignored(p) {
		return false
	}
	rel, err := filepath.Rel(w.Root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if w.exclude[part] {
			return false
		}
	}
	base := filepath.Base(p)
	// Editor swap files and atomic-write temporaries.
	return !strings.HasSuffix(base, "~") && !strings.HasSuffix(base, ".swp") && !strings.HasSuffix(base, ".tmp")
}

func (w *Watcher) loop() {
	defer close(w.done)

	pending := make(map[string]bool)
	var last time.Time
	ticker := time.NewTicker(w.opts.Debounce / 4)
	defer ticker.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		slices.Sort(paths)
		clear(pending)
		// Coalesce with an unconsumed batch rather than blocking.
		select {
		case w.batches <- Batch{Paths: paths}:
		case prev := <-w.batches:
			merged := slices.Compact(slices.Sorted(slices.Values(append(prev.Paths, paths...))))
			w.batches <- Batch{Paths: merged}
		}
	}

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				flush()
				return
			}
			if !w.relevant(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addTree(event.Name)
				}
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				rel, _ := filepath.Rel(w.Root, event.Name)
				pending[filepath.ToSlash(rel)] = true
				last = time.Now()
			}

		case <-ticker.C:
			if len(pending) > 0 && time.Since(last) >= w.opts.Debounce {
				flush()
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Ignore watch errors; they're non-fatal.
		}
	}
}
