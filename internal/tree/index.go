package tree

import (
	"path"
	"sort"
	"strings"
)

// Index is a path lookup over an extracted tree.
type Index struct {
	rootName string
	kinds    map[string]Kind
	files    []string
}

// NewIndex builds an Index for root.
func NewIndex(root *Node) *Index {
	idx := &Index{kinds: make(map[string]Kind)}
	if root == nil {
		return idx
	}
	idx.rootName = root.Name
	Walk(root, func(n *Node) {
		if n == root {
			return
		}
		idx.kinds[n.Path] = n.Type
		if n.Type == KindFile {
			idx.files = append(idx.files, n.Path)
		}
	})
	sort.Strings(idx.files)
	return idx
}

// Normalize converts p to the slash-separated, root-relative form used by
// Node.Path. It returns "" for paths that escape the root.
func Normalize(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	p = strings.TrimPrefix(p, "./")
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return ""
	}
	return p
}

// Resolve returns the canonical path and kind for p. A leading segment equal
// to the root directory's name is tolerated, since collaborators often echo
// the root back.
func (idx *Index) Resolve(p string) (string, Kind, bool) {
	n := Normalize(p)
	if n == "" {
		return "", "", false
	}
	if k, ok := idx.kinds[n]; ok {
		return n, k, true
	}
	if idx.rootName != "" {
		if rest, ok := strings.CutPrefix(n, idx.rootName+"/"); ok {
			if k, ok := idx.kinds[rest]; ok {
				return rest, k, true
			}
		}
	}
	return "", "", false
}

// Contains reports whether p resolves to any node.
func (idx *Index) Contains(p string) bool {
	_, _, ok := idx.Resolve(p)
	return ok
}

// IsFile reports whether p resolves to a file.
func (idx *Index) IsFile(p string) bool {
	_, k, ok := idx.Resolve(p)
	return ok && k == KindFile
}

// IsDir reports whether p resolves to a directory.
func (idx *Index) IsDir(p string) bool {
	_, k, ok := idx.Resolve(p)
	return ok && k == KindDir
}

// Files returns every file path in lexicographic order.
func (idx *Index) Files() []string {
	out := make([]string, len(idx.files))
	copy(out, idx.files)
	return out
}

// FilesUnder returns the files beneath dir in lexicographic order.
func (idx *Index) FilesUnder(dir string) []string {
	canon, k, ok := idx.Resolve(dir)
	if !ok || k != KindDir {
		return nil
	}
	prefix := canon + "/"
	start := sort.SearchStrings(idx.files, prefix)
	var out []string
	for _, f := range idx.files[start:] {
		if !strings.HasPrefix(f, prefix) {
			break
		}
		out = append(out, f)
	}
	return out
}
