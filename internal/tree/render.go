package tree

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// collapseThreshold is the maximum number of entries (files + dirs) before
// a directory is collapsed to a summary line.
const collapseThreshold = 20

// DefaultRenderBytes bounds a rendering when RenderOptions.MaxBytes is unset.
const DefaultRenderBytes = 32000

// noisePattern matches files that rarely matter for a security review:
// tests, fixtures, docs, lock files and styling.
var noisePattern = regexp.MustCompile(`(?i)(\.test\.|\.spec\.|\.mock\.|(^|/)tests?/|(^|/)__tests__/|(^|/)fixtures?/|README|LICENSE|\.md$|(^|/)images/|\.lock$|\.map$|\.snap$|\.log$|\.sample\.|\.css$|\.scss$|\.less$)`)

// IsNoise reports whether a file path matches the built-in noise filter.
func IsNoise(p string) bool {
	return noisePattern.MatchString(p)
}

// RenderOptions bound a text rendering.
type RenderOptions struct {
	MaxBytes int               // 0 uses DefaultRenderBytes
	MaxDepth int               // 0 renders every level
	Skip     func(string) bool // files for which Skip returns true are omitted
}

// Render renders the tree as an indented text block, directories first.
// Rendering stops once MaxBytes would be exceeded and the output never ends
// inside a multi-byte character.
func Render(root *Node, opts RenderOptions) string {
	if root == nil {
		return ""
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultRenderBytes
	}
	var b strings.Builder
	b.WriteString(root.Name + "/\n")
	r := renderer{b: &b, opts: opts}
	r.node(root, 1)
	return truncateUTF8(b.String(), opts.MaxBytes)
}

type renderer struct {
	b    *strings.Builder
	opts RenderOptions
	full bool
}

// write appends line unless the byte budget is spent.
func (r *renderer) write(line string) bool {
	if r.full || r.b.Len()+len(line) > r.opts.MaxBytes {
		r.full = true
		return false
	}
	r.b.WriteString(line)
	return true
}

func (r *renderer) node(n *Node, depth int) {
	if r.opts.MaxDepth > 0 && depth > r.opts.MaxDepth {
		return
	}
	indent := strings.Repeat("  ", depth)
	for _, c := range n.Children {
		if r.full {
			return
		}
		if !c.IsDir() {
			if r.opts.Skip != nil && r.opts.Skip(c.Path) {
				continue
			}
			r.write(indent + c.Name + "\n")
			continue
		}
		if len(c.Children) > collapseThreshold && depth > 1 {
			r.write(fmt.Sprintf("%s%s/ (%d entries)\n", indent, c.Name, len(c.Children)))
			continue
		}
		if !r.write(indent + c.Name + "/\n") {
			return
		}
		r.node(c, depth+1)
	}
}

// truncateUTF8 truncates s to at most maxBytes without splitting a multi-byte
// UTF-8 character.
func truncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
