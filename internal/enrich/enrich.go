// Package enrich computes per-file metadata for the selected files of a run:
// static facts (language, size, imports, content hash) plus a collaborator
// summary that is cached by content hash across runs.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/papapumpkin/xployt/internal/cache"
	"github.com/papapumpkin/xployt/internal/collab"
)

// Defaults applied by New for zero-valued Options.
const (
	DefaultWorkers      = 8
	DefaultExcerptBytes = 4000
)

// Record is the metadata of one enriched file.
type Record struct {
	Path        string   `json:"path"`
	Language    string   `json:"language"`
	LOC         int      `json:"loc"`
	Imports     []string `json:"imports"`
	ContentHash string   `json:"content_hash"`
	Summary     string   `json:"summary"`
	CacheHit    bool     `json:"cache_hit"`
	Degraded    bool     `json:"degraded,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Digest returns the compact view of r sent to the collaborator.
func (r Record) Digest() collab.FileDigest {
	return collab.FileDigest{Path: r.Path, Language: r.Language, Imports: r.Imports, Summary: r.Summary}
}

// Options configure an Enricher.
type Options struct {
	Workers      int // files processed concurrently
	MaxFiles     int // keep the first N paths in lexicographic order; 0 keeps all
	ExcerptBytes int // bytes of content sent for summarization
	Logger       *slog.Logger
}

// Enricher produces Records for files under a codebase root.
type Enricher struct {
	root   string
	collab collab.Collaborator
	cache  cache.Store
	opts   Options
	log    *slog.Logger

	flight singleflight.Group
}

// New returns an Enricher reading files below root. A nil store disables
// caching.
func New(root string, c collab.Collaborator, store cache.Store, opts Options) *Enricher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.ExcerptBytes <= 0 {
		opts.ExcerptBytes = DefaultExcerptBytes
	}
	if store == nil {
		store = cache.Disabled{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Enricher{root: root, collab: c, cache: store, opts: opts, log: log}
}

// Plan returns the paths Enrich would process: de-duplicated, sorted, and
// capped at MaxFiles.
func (e *Enricher) Plan(paths []string) []string {
	out := slices.Clone(paths)
	slices.Sort(out)
	out = slices.Compact(out)
	if e.opts.MaxFiles > 0 && len(out) > e.opts.MaxFiles {
		out = out[:e.opts.MaxFiles]
	}
	return out
}

// Enrich returns one Record per planned path, in plan order. Per-file
// failures produce degraded records and never fail the batch; the only
// error returned is the context's, after in-flight files have finished.
func (e *Enricher) Enrich(ctx context.Context, paths []string) ([]Record, error) {
	planned := e.Plan(paths)
	records := make([]Record, len(planned))

	var cacheWarn sync.Once
	g := new(errgroup.Group)
	g.SetLimit(e.opts.Workers)
	for i, p := range planned {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			records[i] = e.enrichOne(ctx, p, &cacheWarn)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		for i := range records {
			if records[i].Path == "" {
				records[i] = Record{Path: planned[i], Degraded: true, Error: "run cancelled"}
			}
		}
		return records, err
	}

	degraded := 0
	hits := 0
	for _, r := range records {
		if r.Degraded {
			degraded++
		}
		if r.CacheHit {
			hits++
		}
	}
	e.log.Info("enrichment complete", "files", len(records), "cache_hits", hits, "degraded", degraded)
	return records, nil
}

func (e *Enricher) enrichOne(ctx context.Context, path string, cacheWarn *sync.Once) Record {
	rec := Record{Path: path}

	content, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(path)))
	if err != nil {
		e.log.Warn("file unreadable", "path", path, "error", err)
		rec.Degraded = true
		rec.Error = fmt.Sprintf("read: %v", err)
		return rec
	}

	rec.ContentHash = Hash(content)
	rec.Language = DetectLanguage(path, content)
	rec.LOC = CountLOC(content)
	rec.Imports = ExtractImports(rec.Language, content)

	summary, ok, err := e.cache.Get(ctx, rec.ContentHash)
	if err != nil {
		cacheWarn.Do(func() {
			e.log.Warn("cache lookup failed, treating as miss", "error", err)
		})
	}
	if ok {
		rec.Summary = summary
		rec.CacheHit = true
		return rec
	}

	v, err, _ := e.flight.Do(rec.ContentHash, func() (any, error) {
		s, err := e.collab.Summarize(ctx, collab.SummarizeRequest{
			Path:     path,
			Language: rec.Language,
			Content:  excerpt(content, e.opts.ExcerptBytes),
		})
		if err != nil {
			return "", err
		}
		if err := e.cache.Put(context.WithoutCancel(ctx), rec.ContentHash, s); err != nil {
			e.log.Warn("cache write failed", "path", path, "error", err)
		}
		return s, nil
	})
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		e.log.Log(ctx, level, "summary unavailable", "path", path, "error", err)
		rec.Degraded = true
		rec.Error = err.Error()
		return rec
	}
	rec.Summary = v.(string)
	return rec
}

// excerpt returns at most n bytes of content without splitting a rune.
func excerpt(content []byte, n int) string {
	if len(content) <= n {
		return string(content)
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return strings.ToValidUTF8(string(content[:cut]), "")
}
