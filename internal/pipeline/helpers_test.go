package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/papapumpkin/xployt/internal/artifact"
	"github.com/papapumpkin/xployt/internal/catalog"
	"github.com/papapumpkin/xployt/internal/collab"
	"github.com/papapumpkin/xployt/internal/logging"
)

// writeTree creates files (slash paths relative to root) with the given
// contents.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// shopFiles is a small web application used across tests.
var shopFiles = map[string]string{
	"api/handlers.py":   "from flask import request\nimport db\n\ndef get_user():\n    return db.query(request.args['id'])\n",
	"api/auth.py":       "import jwt\n\ndef login(user, pw):\n    return jwt.encode({'u': user}, 'secret')\n",
	"db.py":             "import sqlite3\n\ndef query(q):\n    return sqlite3.connect('x').execute(q)\n",
	"web/app.js":        "import express from 'express'\nconst app = express()\n",
	"web/app.test.js":   "test('x', () => {})\n",
	"README.md":         "# shop\n",
	"node_modules/x.js": "module.exports = 1\n",
}

// newTestContext returns a RunContext over a fresh codebase and run store.
func newTestContext(t *testing.T, c collab.Collaborator, files map[string]string) *RunContext {
	t.Helper()
	root := filepath.Join(t.TempDir(), "shop")
	writeTree(t, root, files)
	store, err := artifact.Open(t.TempDir(), "run-test")
	if err != nil {
		t.Fatalf("artifact.Open: %v", err)
	}
	return &RunContext{
		Config:  RunConfig{RunID: "run-test", CodebaseRoot: root}.withDefaults(),
		Run:     artifact.Run{ID: "run-test", CodebaseRoot: root},
		Store:   store,
		Collab:  c,
		Catalog: catalog.Default(),
		Logger:  logging.Discard(),
	}
}

func fileSet(paths ...string) map[string]bool {
	m := make(map[string]bool, len(paths))
	for _, p := range paths {
		m[p] = true
	}
	return m
}
