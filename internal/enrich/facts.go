package enrich

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// importScanLines bounds how far into a file import statements are looked for.
const importScanLines = 100

var extLanguage = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "js",
	".mjs":   "js",
	".cjs":   "js",
	".jsx":   "jsx",
	".ts":    "ts",
	".tsx":   "tsx",
	".java":  "java",
	".kt":    "kotlin",
	".rb":    "ruby",
	".php":   "php",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".swift": "swift",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
	".json":  "json",
	".yml":   "yaml",
	".yaml":  "yaml",
	".toml":  "toml",
	".html":  "html",
	".css":   "css",
	".vue":   "vue",
}

var shebangLanguage = map[string]string{
	"python":  "python",
	"python3": "python",
	"node":    "js",
	"bash":    "shell",
	"sh":      "shell",
	"zsh":     "shell",
	"ruby":    "ruby",
	"php":     "php",
	"perl":    "perl",
}

// importPatterns capture the imported module in group 1. Patterns are
// matched against trimmed lines.
var importPatterns = map[string][]*regexp.Regexp{
	"go": {
		regexp.MustCompile(`^import\s+(?:[\w.]+\s+)?"([^"]+)"`),
		regexp.MustCompile(`^(?:[\w.]+\s+)?"([^"]+)"$`),
	},
	"python": {
		regexp.MustCompile(`^from\s+([\w.]+)\s+import\b`),
		regexp.MustCompile(`^import\s+([\w.]+)`),
	},
	"js":  jsImports,
	"jsx": jsImports,
	"ts":  jsImports,
	"tsx": jsImports,
	"vue": jsImports,
	"java": {
		regexp.MustCompile(`^import\s+(?:static\s+)?([\w.*]+)\s*;`),
	},
	"kotlin": {
		regexp.MustCompile(`^import\s+([\w.*]+)`),
	},
	"ruby": {
		regexp.MustCompile(`^require(?:_relative)?\s*\(?\s*['"]([^'"]+)['"]`),
	},
	"php": {
		regexp.MustCompile(`^use\s+([\w\\]+)`),
		regexp.MustCompile(`^(?:require|include)(?:_once)?\s*\(?\s*['"]([^'"]+)['"]`),
	},
	"rust": {
		regexp.MustCompile(`^use\s+([\w:]+)`),
	},
	"c": {
		regexp.MustCompile(`^#\s*include\s*[<"]([^>"]+)[>"]`),
	},
	"cpp": {
		regexp.MustCompile(`^#\s*include\s*[<"]([^>"]+)[>"]`),
	},
	"csharp": {
		regexp.MustCompile(`^using\s+([\w.]+)\s*;`),
	},
}

var jsImports = []*regexp.Regexp{
	regexp.MustCompile(`^import\s+(?:[^'"]*?\s+from\s+)?['"]([^'"]+)['"]`),
	regexp.MustCompile(`\brequire\(\s*['"]([^'"]+)['"]\s*\)`),
	regexp.MustCompile(`^export\s+[^'"]*?\s+from\s+['"]([^'"]+)['"]`),
}

// DetectLanguage guesses a file's language from its extension, falling back
// to the interpreter named on a shebang line. Unknown extensions are
// reported by name without the dot; files with neither return "".
func DetectLanguage(path string, content []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extLanguage[ext]; ok {
		return lang
	}
	if lang := shebang(content); lang != "" {
		return lang
	}
	return strings.TrimPrefix(ext, ".")
}

func shebang(content []byte) string {
	if !bytes.HasPrefix(content, []byte("#!")) {
		return ""
	}
	line, _, _ := bytes.Cut(content[2:], []byte("\n"))
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return ""
	}
	interp := filepath.Base(fields[0])
	if interp == "env" && len(fields) > 1 {
		interp = fields[1]
	}
	return shebangLanguage[interp]
}

// CountLOC counts the non-blank lines of content.
func CountLOC(content []byte) int {
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			n++
		}
	}
	return n
}

// ExtractImports returns the sorted, de-duplicated modules imported in the
// first lines of content. Languages without patterns yield nil.
func ExtractImports(language string, content []byte) []string {
	patterns := importPatterns[language]
	if len(patterns) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	inGoBlock := false
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for i := 0; i < importScanLines && sc.Scan(); i++ {
		line := strings.TrimSpace(sc.Text())
		if language == "go" {
			// Bare quoted paths only count inside an import ( ... ) block.
			switch {
			case strings.HasPrefix(line, "import ("):
				inGoBlock = true
				continue
			case inGoBlock && line == ")":
				inGoBlock = false
				continue
			}
			if !inGoBlock && !strings.HasPrefix(line, "import ") {
				continue
			}
		}
		for _, re := range patterns {
			if m := re.FindStringSubmatch(line); m != nil {
				seen[m[1]] = true
				break
			}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Hash returns the hex SHA-256 of content, the cache key for its summary.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
