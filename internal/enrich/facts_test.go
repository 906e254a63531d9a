package enrich

import (
	"reflect"
	"testing"
)

func TestDetectLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path    string
		content string
		want    string
	}{
		{"main.go", "", "go"},
		{"app/views.PY", "", "python"},
		{"web/App.tsx", "", "tsx"},
		{"bin/deploy", "#!/usr/bin/env bash\necho hi\n", "shell"},
		{"bin/tool", "#!/usr/bin/python3\n", "python"},
		{"schema.graphql", "", "graphql"},
		{"LICENSE", "MIT", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			if got := DetectLanguage(tt.path, []byte(tt.content)); got != tt.want {
				t.Errorf("DetectLanguage(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestCountLOC(t *testing.T) {
	t.Parallel()

	if got := CountLOC([]byte("a\n\n  \nb\n\tc")); got != 3 {
		t.Errorf("CountLOC = %d, want 3", got)
	}
	if got := CountLOC(nil); got != 0 {
		t.Errorf("CountLOC(nil) = %d, want 0", got)
	}
}

func TestExtractImports(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		lang    string
		content string
		want    []string
	}{
		{
			name: "go block",
			lang: "go",
			content: "package x\n\nimport (\n\t\"fmt\"\n\tdb \"database/sql\"\n)\n\n" +
				"var s = \"not an import\"\n",
			want: []string{"database/sql", "fmt"},
		},
		{
			name:    "go single",
			lang:    "go",
			content: "package x\nimport \"os\"\n",
			want:    []string{"os"},
		},
		{
			name:    "python",
			lang:    "python",
			content: "import os\nfrom flask import request\nimport os\n",
			want:    []string{"flask", "os"},
		},
		{
			name:    "javascript",
			lang:    "js",
			content: "import express from 'express'\nimport './side-effect'\nconst db = require(\"pg\")\nexport { x } from './x'\n",
			want:    []string{"./side-effect", "./x", "express", "pg"},
		},
		{
			name:    "java",
			lang:    "java",
			content: "package a;\nimport java.util.List;\nimport static org.junit.Assert.*;\n",
			want:    []string{"java.util.List", "org.junit.Assert.*"},
		},
		{
			name:    "c",
			lang:    "c",
			content: "#include <stdio.h>\n#include \"local.h\"\n",
			want:    []string{"local.h", "stdio.h"},
		},
		{
			name:    "unknown language",
			lang:    "json",
			content: "{\"import\": 1}",
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ExtractImports(tt.lang, []byte(tt.content))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractImports(%q) = %v, want %v", tt.lang, got, tt.want)
			}
		})
	}
}

func TestExtractImports_OnlyScansLeadingLines(t *testing.T) {
	t.Parallel()

	content := ""
	for range importScanLines {
		content += "x = 1\n"
	}
	content += "import late\n"
	if got := ExtractImports("python", []byte(content)); got != nil {
		t.Errorf("ExtractImports = %v, want nil for imports past the scan window", got)
	}
}

func TestHash(t *testing.T) {
	t.Parallel()

	const want = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Hash(nil); got != want {
		t.Errorf("Hash(nil) = %s, want %s", got, want)
	}
	if Hash([]byte("a")) == Hash([]byte("b")) {
		t.Error("distinct content should hash differently")
	}
}
