package arch_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

const internalPrefix = "github.com/papapumpkin/xployt/internal/"

// internalDir returns the internal/ directory. Tests run with the package
// directory as working directory.
func internalDir(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	return filepath.Dir(wd)
}

// packages returns every package under internal/ as a slash path relative to
// it ("collab", "collab/collabtest"), skipping this one.
func packages(t *testing.T) []string {
	t.Helper()
	root := internalDir(t)
	var pkgs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == root {
			return err
		}
		rel := filepath.ToSlash(mustRel(t, root, path))
		if rel == "arch_test" {
			return filepath.SkipDir
		}
		if len(sourceFiles(t, path, false)) > 0 {
			pkgs = append(pkgs, rel)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walking %s: %v", root, err)
	}
	slices.Sort(pkgs)
	return pkgs
}

// sourceFiles lists the .go files directly in dir, with or without tests.
func sourceFiles(t *testing.T, dir string, withTests bool) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") {
			continue
		}
		if !withTests && strings.HasSuffix(name, "_test.go") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	return files
}

// parsePackage parses the non-test files of an internal package.
func parsePackage(t *testing.T, pkg string, mode parser.Mode) (*token.FileSet, []*ast.File) {
	t.Helper()
	fset := token.NewFileSet()
	var files []*ast.File
	for _, path := range sourceFiles(t, filepath.Join(internalDir(t), filepath.FromSlash(pkg)), false) {
		f, err := parser.ParseFile(fset, path, nil, mode)
		if err != nil {
			t.Fatalf("parsing %s: %v", path, err)
		}
		files = append(files, f)
	}
	return fset, files
}

// internalImports returns the internal packages imported by pkg's non-test
// files.
func internalImports(t *testing.T, pkg string) []string {
	t.Helper()
	_, files := parsePackage(t, pkg, parser.ImportsOnly)
	var out []string
	for _, f := range files {
		for _, imp := range f.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if rel, ok := strings.CutPrefix(path, internalPrefix); ok && !slices.Contains(out, rel) {
				out = append(out, rel)
			}
		}
	}
	slices.Sort(out)
	return out
}

func mustRel(t *testing.T, base, path string) string {
	t.Helper()
	rel, err := filepath.Rel(base, path)
	if err != nil {
		t.Fatal(err)
	}
	return rel
}

// isGenerated reports whether a file carries the standard generated-code
// header.
func isGenerated(f *ast.File) bool {
	for _, cg := range f.Comments {
		if cg.Pos() >= f.Package {
			break
		}
		if strings.Contains(cg.Text(), "Code generated") {
			return true
		}
	}
	return false
}
