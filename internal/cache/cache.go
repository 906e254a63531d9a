// Package cache stores collaborator summaries keyed by file content hash.
// Entries are shared across runs and are append-only by key: a hash's
// summary is never replaced, only removed by explicit deletion.
package cache

import (
	"context"
	"fmt"
)

// Store is the content cache used by the metadata enricher.
type Store interface {
	// Get returns the summary stored under hash. ok is false on a miss.
	Get(ctx context.Context, hash string) (summary string, ok bool, err error)
	// Put records summary under hash. Writing an existing key is a no-op.
	Put(ctx context.Context, hash, summary string) error
}

// Stats describes the contents of a cache.
type Stats struct {
	Entries      int64
	SummaryBytes int64
}

// IOError reports an unreadable or corrupt cache. Callers treat it as a miss.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cache: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Disabled is a Store that misses on every lookup and drops every write. It
// stands in when the cache database cannot be opened.
type Disabled struct{}

var _ Store = Disabled{}

// Get always misses.
func (Disabled) Get(context.Context, string) (string, bool, error) {
	return "", false, nil
}

// Put discards the entry.
func (Disabled) Put(context.Context, string, string) error {
	return nil
}
