package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/papapumpkin/xployt/internal/artifact"
	"github.com/papapumpkin/xployt/internal/catalog"
	"github.com/papapumpkin/xployt/internal/collab"
	"github.com/papapumpkin/xployt/internal/enrich"
)

// errRunCancelled is recorded on pairs that could not finish because the run
// was cancelled.
const errRunCancelled = "run cancelled"

// Executor runs the suggested pipelines of every subset. Pairs run
// concurrently and fail independently; stages within a pair run in order,
// each persisted before the next starts.
type Executor struct {
	Collab       collab.Collaborator
	Catalog      *catalog.Catalog
	Store        *artifact.Store
	Root         string // codebase root, for code excerpts
	ExcerptBytes int
	Workers      int
	Logger       *slog.Logger
	OnPair       func(ManifestEntry) // called once per pair when it ends; may be nil
}

type pairJob struct {
	subset Subset
	choice PipelineChoice
}

// Execute runs every (subset, pipeline) pair and returns the manifest. It
// fails outright only when the output directory cannot be created. On
// cancellation the returned manifest is complete, with unfinished pairs
// failed, and the error is the context's.
func (x *Executor) Execute(ctx context.Context, runID string, subsets []Subset, suggestions []Suggestion, records []enrich.Record) (Manifest, error) {
	manifest := Manifest{RunID: runID, Entries: []ManifestEntry{}}
	if err := os.MkdirAll(x.Store.Path(artifact.OutputsDir), 0o755); err != nil {
		return manifest, &artifact.IOError{Op: "mkdir", Path: artifact.OutputsDir, Err: err}
	}
	log := x.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	byID := make(map[string]Subset, len(subsets))
	for _, s := range subsets {
		byID[s.ID] = s
	}
	summaries := make(map[string]string, len(records))
	for _, r := range records {
		summaries[r.Path] = r.Summary
	}

	var jobs []pairJob
	for _, sg := range suggestions {
		s, ok := byID[sg.SubsetID]
		if !ok {
			log.Warn("suggestion for unknown subset", "subset", sg.SubsetID)
			continue
		}
		for _, c := range sg.Pipelines {
			jobs = append(jobs, pairJob{subset: s, choice: c})
		}
	}

	workers := x.Workers
	if workers <= 0 {
		workers = DefaultPairWorkers
	}
	entries := make([]ManifestEntry, len(jobs))
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, job := range jobs {
		g.Go(func() error {
			entries[i] = x.runPair(ctx, job, summaries, log)
			if x.OnPair != nil {
				x.OnPair(entries[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(entries, func(a, b ManifestEntry) int {
		return cmp.Or(cmp.Compare(a.SubsetID, b.SubsetID), cmp.Compare(a.PipelineID, b.PipelineID))
	})
	manifest.Entries = entries
	return manifest, ctx.Err()
}

// runPair drives one pair through its stages. It never returns an error;
// failures are recorded on the entry.
func (x *Executor) runPair(ctx context.Context, job pairJob, summaries map[string]string, log *slog.Logger) ManifestEntry {
	entry := ManifestEntry{
		SubsetID:            job.subset.ID,
		PipelineID:          job.choice.PipelineID,
		OutputArtifactPaths: []string{},
		Stages:              []StageOutput{},
	}
	log = log.With("subset", entry.SubsetID, "pipeline", entry.PipelineID)

	st := newPairState()
	fail := func(stage string, err error) ManifestEntry {
		if tErr := st.transition(PairFailed); tErr != nil {
			log.Error("pair state", "error", tErr)
		}
		msg := err.Error()
		if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
			msg = errRunCancelled
		}
		entry.Status = StatusFailed
		entry.Error = msg
		if stage != "" {
			entry.Stages = append(entry.Stages, StageOutput{
				SubsetID: entry.SubsetID, PipelineID: entry.PipelineID, Stage: stage,
				Status: StatusFailed, Error: msg,
			})
		}
		return entry
	}

	if err := st.transition(PairRunning); err != nil {
		return fail("", err)
	}

	var excerpt string
	input := ""
	for i, name := range job.choice.Stages {
		if ctx.Err() != nil {
			return fail("", ctx.Err())
		}
		if i > 0 {
			if err := st.transition(PairRunning); err != nil {
				return fail(name, err)
			}
		}
		def, ok := x.Catalog.Stage(name)
		if !ok {
			return fail(name, &StageExecutionError{
				SubsetID: entry.SubsetID, PipelineID: entry.PipelineID, Stage: name,
				Err: fmt.Errorf("%w %q", ErrUnknownStage, name),
			})
		}

		req := collab.AnalyzeRequest{
			SubsetID:     entry.SubsetID,
			PipelineID:   entry.PipelineID,
			Stage:        name,
			Instructions: def.Prompt,
			Input:        input,
		}
		if i == 0 || def.IncludeCode {
			if excerpt == "" {
				excerpt = buildExcerpt(x.Root, job.subset.Files, summaries, x.ExcerptBytes)
			}
			if i == 0 {
				req.Input = excerpt
			} else {
				req.Code = excerpt
			}
		}

		out, err := x.Collab.Analyze(ctx, req)
		if err != nil {
			return fail(name, &StageExecutionError{
				SubsetID: entry.SubsetID, PipelineID: entry.PipelineID, Stage: name, Err: err,
			})
		}
		files, err := x.Store.WriteStage(artifact.StageRecord{
			SubsetID: entry.SubsetID, PipelineID: entry.PipelineID, Stage: name, Content: out,
		})
		if err != nil {
			return fail(name, &StageExecutionError{
				SubsetID: entry.SubsetID, PipelineID: entry.PipelineID, Stage: name, Err: err,
			})
		}

		entry.OutputArtifactPaths = append(entry.OutputArtifactPaths, files.JSON)
		entry.Stages = append(entry.Stages, StageOutput{
			SubsetID: entry.SubsetID, PipelineID: entry.PipelineID, Stage: name,
			ArtifactPath: files.JSON, ReadablePath: files.Markdown, Status: StatusOK,
		})
		log.Debug("stage complete", "stage", name, "cursor", st.cursor)
		input = out
	}

	if err := st.transition(PairCompleted); err != nil {
		return fail("", err)
	}
	entry.Status = StatusOK
	return entry
}

// buildExcerpt concatenates, for each member in sorted order, a header, its
// summary and its code, stopping at maxBytes.
func buildExcerpt(root string, files []string, summaries map[string]string, maxBytes int) string {
	if maxBytes <= 0 {
		maxBytes = DefaultExcerptBytes
	}
	sorted := slices.Clone(files)
	slices.Sort(sorted)

	var b strings.Builder
	for _, f := range sorted {
		if b.Len() >= maxBytes {
			break
		}
		fmt.Fprintf(&b, "### %s\n", f)
		if s := summaries[f]; s != "" {
			fmt.Fprintf(&b, "Summary: %s\n", s)
		}
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(f)))
		if err != nil {
			fmt.Fprintf(&b, "(unreadable: %v)\n\n", err)
			continue
		}
		b.WriteString("```\n")
		b.Write(content)
		b.WriteString("\n```\n\n")
	}
	return truncate(b.String(), maxBytes)
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
