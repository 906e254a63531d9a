package tree

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// writeFiles creates each relative path under dir with placeholder content.
func writeFiles(t *testing.T, dir string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("MkdirAll(%q): %v", filepath.Dir(full), err)
		}
		if err := os.WriteFile(full, []byte("x\n"), 0o644); err != nil {
			t.Fatalf("WriteFile(%q): %v", full, err)
		}
	}
}

func paths(root *Node) []string {
	var out []string
	Walk(root, func(n *Node) {
		if n != root {
			out = append(out, n.Path)
		}
	})
	return out
}

func TestExtract(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir,
		"main.go",
		"api/routes.js",
		"api/auth/login.js",
		"node_modules/lib/index.js",
		".git/HEAD",
		"web/app.tsx",
	)

	root, err := Extract(context.Background(), dir, Options{ExcludeDirs: DefaultExcludeDirs})
	if err != nil {
		t.Fatalf("Extract(%q): %v", dir, err)
	}

	want := []string{
		"api",
		"api/auth",
		"api/auth/login.js",
		"api/routes.js",
		"web",
		"web/app.tsx",
		"main.go",
	}
	if got := paths(root); !reflect.DeepEqual(got, want) {
		t.Errorf("paths = %v, want %v", got, want)
	}
	if root.Path != "." || root.Type != KindDir {
		t.Errorf("root = {%q %q}, want {\".\" dir}", root.Path, root.Type)
	}

	files, dirs := Count(root)
	if files != 4 || dirs != 3 {
		t.Errorf("Count = (%d, %d), want (4, 3)", files, dirs)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir, "b.go", "a.go", "z/c.go", "m/d.go")

	first, err := Extract(context.Background(), dir, Options{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	second, err := Extract(context.Background(), dir, Options{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("extractions differ:\n%s\n%s", a, b)
	}
}

func TestExtract_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir, "file.txt")

	tests := []struct {
		name    string
		root    string
		wantErr error
	}{
		{"missing root", filepath.Join(dir, "nope"), os.ErrNotExist},
		{"file root", filepath.Join(dir, "file.txt"), ErrNotDir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Extract(context.Background(), tt.root, Options{})
			var fsErr *FilesystemError
			if !errors.As(err, &fsErr) {
				t.Fatalf("Extract(%q) error = %v, want *FilesystemError", tt.root, err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Extract(%q) error = %v, want wrapping %v", tt.root, err, tt.wantErr)
			}
		})
	}
}

func TestExtract_MaxDepth(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir, "a/b/c/deep.go", "a/top.go")

	root, err := Extract(context.Background(), dir, Options{MaxDepth: 2})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	idx := NewIndex(root)
	if !idx.IsDir("a/b") {
		t.Fatal("a/b should be listed")
	}
	if idx.Contains("a/b/c") {
		t.Error("a/b/c should not be descended into at depth 2")
	}
	var truncated bool
	Walk(root, func(n *Node) {
		if n.Path == "a/b" {
			truncated = n.Truncated
		}
	})
	if !truncated {
		t.Error("a/b should be marked truncated")
	}
}

func TestExtract_Cancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir, "a/b.go")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Extract(ctx, dir, Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Extract with cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestIndex(t *testing.T) {
	t.Parallel()

	root := &Node{Name: "proj", Path: ".", Type: KindDir, Children: []*Node{
		{Name: "src", Path: "src", Type: KindDir, Children: []*Node{
			{Name: "b.js", Path: "src/b.js", Type: KindFile},
			{Name: "a.js", Path: "src/a.js", Type: KindFile},
		}},
		{Name: "srcx.js", Path: "srcx.js", Type: KindFile},
	}}
	idx := NewIndex(root)

	tests := []struct {
		in       string
		wantPath string
		wantOK   bool
	}{
		{"src/a.js", "src/a.js", true},
		{"./src/a.js", "src/a.js", true},
		{"/src/a.js", "src/a.js", true},
		{"src\\a.js", "src/a.js", true},
		{"proj/src/a.js", "src/a.js", true},
		{"src/../src/a.js", "src/a.js", true},
		{"../etc/passwd", "", false},
		{"src/missing.js", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, _, ok := idx.Resolve(tt.in)
		if got != tt.wantPath || ok != tt.wantOK {
			t.Errorf("Resolve(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.wantPath, tt.wantOK)
		}
	}

	if got, want := idx.FilesUnder("src"), []string{"src/a.js", "src/b.js"}; !reflect.DeepEqual(got, want) {
		t.Errorf("FilesUnder(src) = %v, want %v", got, want)
	}
	if got := idx.FilesUnder("src/a.js"); got != nil {
		t.Errorf("FilesUnder(file) = %v, want nil", got)
	}
	if !idx.IsDir("src") || idx.IsFile("src") || !idx.IsFile("srcx.js") {
		t.Error("kind lookups disagree with the tree")
	}
	if got := len(idx.Files()); got != 3 {
		t.Errorf("len(Files()) = %d, want 3", got)
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	t.Run("BasicRender", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFiles(t, dir, "cmd/root.go", "internal/loop/loop.go", "main.go", "README.md")
		root, err := Extract(context.Background(), dir, Options{})
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		out := Render(root, RenderOptions{Skip: IsNoise})
		for _, want := range []string{"cmd/", "internal/", "loop.go", "main.go"} {
			if !strings.Contains(out, want) {
				t.Errorf("Render missing %q:\n%s", want, out)
			}
		}
		if strings.Contains(out, "README.md") {
			t.Errorf("Render should skip noise files:\n%s", out)
		}
	})

	t.Run("ByteBudget", func(t *testing.T) {
		t.Parallel()
		root := &Node{Name: "r", Path: ".", Type: KindDir}
		for i := 0; i < 15; i++ {
			name := fmt.Sprintf("file_with_a_long_name_%02d.go", i)
			root.Children = append(root.Children, &Node{Name: name, Path: name, Type: KindFile})
		}
		out := Render(root, RenderOptions{MaxBytes: 100})
		if len(out) > 100 {
			t.Errorf("len(Render) = %d, want <= 100", len(out))
		}
	})

	t.Run("CollapseLargeDirs", func(t *testing.T) {
		t.Parallel()
		big := &Node{Name: "big", Path: "a/big", Type: KindDir}
		for i := 0; i < collapseThreshold+5; i++ {
			name := fmt.Sprintf("f%02d.go", i)
			big.Children = append(big.Children, &Node{Name: name, Path: "a/big/" + name, Type: KindFile})
		}
		root := &Node{Name: "r", Path: ".", Type: KindDir, Children: []*Node{
			{Name: "a", Path: "a", Type: KindDir, Children: []*Node{big}},
		}}
		out := Render(root, RenderOptions{})
		if !strings.Contains(out, "big/ (25 entries)") {
			t.Errorf("expected collapsed summary line:\n%s", out)
		}
	})
}

func TestIsNoise(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want bool
	}{
		{"src/app.test.js", true},
		{"src/__tests__/x.js", true},
		{"tests/helper.py", true},
		{"docs/guide.md", true},
		{"yarn.lock", true},
		{"styles/main.css", true},
		{"src/app.js", false},
		{"server/routes/auth.py", false},
		{"latest/handler.go", false},
	}
	for _, tt := range tests {
		if got := IsNoise(tt.path); got != tt.want {
			t.Errorf("IsNoise(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
