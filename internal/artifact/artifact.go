// Package artifact persists the files a run produces under
// <output_root>/<run_id>/. Every write is atomic: data goes to a temporary
// file in the same directory, is fsynced, then renamed into place, so a
// reader never observes a partial artifact.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Artifact file names within a run directory.
const (
	RunFile         = "run.toml"
	TreeFile        = "file_tree.json"
	SelectionFile   = "selection.json"
	MetadataFile    = "metadata.json"
	SubsetsFile     = "subsets.json"
	SuggestionsFile = "suggestions.json"
	OutputsDir      = "pipeline_outputs"
	SummaryFile     = "run_summary.json"
	EventsFile      = "events.jsonl"
)

// ErrMissing is wrapped when a requested artifact does not exist.
var ErrMissing = errors.New("artifact missing")

// Run identifies one pipeline execution.
type Run struct {
	ID           string    `toml:"run_id" json:"run_id"`
	CodebaseRoot string    `toml:"codebase_root" json:"codebase_root"`
	CreatedAt    time.Time `toml:"created_at" json:"created_at"`
}

// IOError reports a failed artifact read or write.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("artifact: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Store reads and writes the artifacts of a single run.
type Store struct {
	dir string
}

// Open returns the Store for runID under root, creating its directory.
func Open(root, runID string) (*Store, error) {
	if runID == "" || runID != filepath.Base(runID) || runID == "." || runID == ".." {
		return nil, &IOError{Op: "open", Path: runID, Err: errors.New("invalid run id")}
	}
	dir := filepath.Join(root, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &IOError{Op: "mkdir", Path: dir, Err: err}
	}
	return &Store{dir: dir}, nil
}

// Dir returns the run directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the absolute location of the named artifact.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, filepath.FromSlash(name))
}

// Exists reports whether the named artifact is present.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// SaveRun writes run.toml.
func (s *Store) SaveRun(r Run) error {
	data, err := toml.Marshal(r)
	if err != nil {
		return &IOError{Op: "encode", Path: RunFile, Err: err}
	}
	return s.WriteFile(RunFile, data)
}

// LoadRun reads run.toml.
func (s *Store) LoadRun() (Run, error) {
	var r Run
	data, err := s.ReadFile(RunFile)
	if err != nil {
		return r, err
	}
	if err := toml.Unmarshal(data, &r); err != nil {
		return r, &IOError{Op: "decode", Path: RunFile, Err: err}
	}
	return r, nil
}

// WriteJSON encodes v as indented JSON into the named artifact.
func (s *Store) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &IOError{Op: "encode", Path: name, Err: err}
	}
	return s.WriteFile(name, append(data, '\n'))
}

// ReadJSON decodes the named artifact into v.
func (s *Store) ReadJSON(name string, v any) error {
	data, err := s.ReadFile(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &IOError{Op: "decode", Path: name, Err: err}
	}
	return nil
}

// ReadFile returns the raw bytes of the named artifact. A missing artifact
// yields an error wrapping ErrMissing.
func (s *Store) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &IOError{Op: "read", Path: name, Err: ErrMissing}
	}
	if err != nil {
		return nil, &IOError{Op: "read", Path: name, Err: err}
	}
	return data, nil
}

// WriteFile atomically replaces the named artifact with data.
func (s *Store) WriteFile(name string, data []byte) error {
	path := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: name, Err: err}
	}
	if err := writeAtomic(path, data); err != nil {
		return &IOError{Op: "write", Path: name, Err: err}
	}
	return nil
}

// Remove deletes the named artifacts. Directories are removed recursively
// and missing names are ignored.
func (s *Store) Remove(names ...string) error {
	for _, name := range names {
		if err := os.RemoveAll(s.Path(name)); err != nil {
			return &IOError{Op: "remove", Path: name, Err: err}
		}
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
