package watch

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func startWatcher(t *testing.T, root string, opts Options) *Watcher {
	t.Helper()
	if opts.Debounce == 0 {
		opts.Debounce = 100 * time.Millisecond
	}
	w, err := NewWatcher(root, opts)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func waitBatch(t *testing.T, w *Watcher, want string) Batch {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case b := <-w.Batches:
			if slices.Contains(b.Paths, want) {
				return b
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a batch containing %q", want)
		}
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, root, Options{})

	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644); err != nil {
		t.Fatalf("failed to update file: %v", err)
	}
	waitBatch(t, w, "main.go")
}

func TestWatcher_BatchesBurst(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, Options{Debounce: 200 * time.Millisecond})

	for _, name := range []string{"a.go", "b.go", "c.go"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	b := waitBatch(t, w, "a.go")
	if !slices.Equal(b.Paths, []string{"a.go", "b.go", "c.go"}) {
		t.Errorf("batch = %v, want all three files in one batch", b.Paths)
	}
}

func TestWatcher_IgnoresExcludedDirs(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, root, Options{ExcludeDirs: []string{"node_modules"}})

	if err := os.WriteFile(filepath.Join(root, "node_modules", "pkg", "index.js"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case b := <-w.Batches:
		t.Errorf("unexpected batch: %+v", b)
	case <-time.After(400 * time.Millisecond):
		// Expected: nothing under an excluded directory.
	}
}

func TestWatcher_IgnoreFunc(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "output")
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, root, Options{Ignore: func(p string) bool {
		return p == out || strings.HasPrefix(p, out+string(filepath.Separator))
	}})

	if err := os.WriteFile(filepath.Join(out, "run_summary.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "app.py"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	b := waitBatch(t, w, "app.py")
	for _, p := range b.Paths {
		if strings.HasPrefix(p, "output") {
			t.Errorf("ignored path %q reported", p)
		}
	}
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, Options{})

	if err := os.Mkdir(filepath.Join(root, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	waitBatch(t, w, "pkg")

	if err := os.WriteFile(filepath.Join(root, "pkg", "x.go"), []byte("package pkg\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitBatch(t, w, "pkg/x.go")
}

func TestNewWatcher_MissingRoot(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "absent"), Options{})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(); err == nil {
		t.Error("Start should fail for a missing root")
	}
}
