// Package tree extracts a deterministic directory/file tree from a codebase
// root and provides path lookup and budget-bounded rendering over it.
package tree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// DefaultMaxDepth is the deepest directory level that is descended into.
const DefaultMaxDepth = 6

// DefaultExcludeDirs lists directory (and stray file) names that are pruned
// from every extraction unless overridden.
var DefaultExcludeDirs = []string{
	"node_modules", ".git", ".next", "dist", "build", "__pycache__",
	".venv", ".idea", ".vscode", ".DS_Store", ".turbo", ".husky",
}

// ErrNotDir is wrapped by FilesystemError when the root is not a directory.
var ErrNotDir = errors.New("not a directory")

// Kind distinguishes files from directories.
type Kind string

// Node kinds.
const (
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

// Node is one entry of the extracted tree. Path is slash-separated and
// relative to the root; the root itself has Path ".".
type Node struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	Type      Kind    `json:"type"`
	Truncated bool    `json:"truncated,omitempty"`
	Children  []*Node `json:"children,omitempty"`
}

// IsDir reports whether n is a directory.
func (n *Node) IsDir() bool { return n.Type == KindDir }

// Options control an extraction.
type Options struct {
	ExcludeDirs []string
	MaxDepth    int // 0 uses DefaultMaxDepth
}

// FilesystemError reports a root that is missing, not a directory, or
// unreadable.
type FilesystemError struct {
	Path string
	Op   string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("tree: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// Extract walks root and returns its tree. Excluded names are never listed
// or descended into, symlinks are skipped, and unreadable subdirectories are
// kept as empty nodes. Directories below MaxDepth are listed but marked
// Truncated.
func Extract(ctx context.Context, root string, opts Options) (*Node, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &FilesystemError{Path: root, Op: "resolve", Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &FilesystemError{Path: abs, Op: "stat", Err: err}
	}
	if !info.IsDir() {
		return nil, &FilesystemError{Path: abs, Op: "stat", Err: ErrNotDir}
	}

	w := walker{
		exclude:  make(map[string]bool, len(opts.ExcludeDirs)),
		maxDepth: opts.MaxDepth,
	}
	if w.maxDepth <= 0 {
		w.maxDepth = DefaultMaxDepth
	}
	for _, name := range opts.ExcludeDirs {
		w.exclude[name] = true
	}

	node := &Node{Name: filepath.Base(abs), Path: ".", Type: KindDir}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, &FilesystemError{Path: abs, Op: "readdir", Err: err}
	}
	if err := w.fill(ctx, node, abs, entries, 1); err != nil {
		return nil, err
	}
	return node, nil
}

type walker struct {
	exclude  map[string]bool
	maxDepth int
}

// fill populates node's children from entries, recursing into directories.
func (w *walker) fill(ctx context.Context, node *Node, dir string, entries []os.DirEntry, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var dirs, files []*Node
	for _, e := range entries {
		name := e.Name()
		if w.exclude[name] || e.Type()&os.ModeSymlink != 0 {
			continue
		}
		child := &Node{Name: name, Path: join(node.Path, name)}
		if !e.IsDir() {
			if !e.Type().IsRegular() {
				continue
			}
			child.Type = KindFile
			files = append(files, child)
			continue
		}
		child.Type = KindDir
		dirs = append(dirs, child)
		if depth >= w.maxDepth {
			child.Truncated = true
			continue
		}
		sub := filepath.Join(dir, name)
		subEntries, err := os.ReadDir(sub)
		if err != nil {
			continue
		}
		if err := w.fill(ctx, child, sub, subEntries, depth+1); err != nil {
			return err
		}
	}
	sortNodes(dirs)
	sortNodes(files)
	node.Children = append(dirs, files...)
	return nil
}

func sortNodes(ns []*Node) {
	sort.Slice(ns, func(i, j int) bool { return ns[i].Name < ns[j].Name })
}

func join(parent, name string) string {
	if parent == "." || parent == "" {
		return name
	}
	return path.Join(parent, name)
}

// Walk calls fn for every node in depth-first, children-in-order sequence.
func Walk(n *Node, fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// Count returns the number of files and directories below root, excluding
// root itself.
func Count(root *Node) (files, dirs int) {
	Walk(root, func(n *Node) {
		if n == root {
			return
		}
		if n.IsDir() {
			dirs++
		} else {
			files++
		}
	})
	return files, dirs
}
