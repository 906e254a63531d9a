package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papapumpkin/xployt/internal/artifact"
	"github.com/papapumpkin/xployt/internal/cache"
	"github.com/papapumpkin/xployt/internal/catalog"
	"github.com/papapumpkin/xployt/internal/collab"
	"github.com/papapumpkin/xployt/internal/logging"
	"github.com/papapumpkin/xployt/internal/telemetry"
)

// setupStage names failures that happen before the first stage runs.
const setupStage = "setup"

// Event reports run progress to a Stream callback. Kind is one of the
// telemetry.Kind* constants.
type Event struct {
	Kind     string
	RunID    string
	Stage    string
	Output   string
	Duration time.Duration
	Pair     *ManifestEntry // pair_done
	Result   *Result        // run_done, and run_error when a partial result exists
	Err      *RunError      // run_error
}

// Orchestrator sequences the stages of a run.
type Orchestrator struct {
	collab    collab.Collaborator
	cache     cache.Store
	catalog   *catalog.Catalog
	log       *slog.Logger
	telemetry bool
	stages    []Stage
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache sets the content cache. The default disables caching.
func WithCache(s cache.Store) Option {
	return func(o *Orchestrator) { o.cache = s }
}

// WithCatalog sets the pipeline catalog. The default is catalog.Default().
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *Orchestrator) { o.catalog = c }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithTelemetry enables or disables the per-run events.jsonl file.
func WithTelemetry(enabled bool) Option {
	return func(o *Orchestrator) { o.telemetry = enabled }
}

// WithStages replaces the stage sequence. Intended for tests.
func WithStages(stages ...Stage) Option {
	return func(o *Orchestrator) { o.stages = stages }
}

// New returns an Orchestrator delegating judgment calls to c.
func New(c collab.Collaborator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		collab:    c,
		cache:     cache.Disabled{},
		log:       logging.Discard(),
		telemetry: true,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.catalog == nil {
		o.catalog = catalog.Default()
	}
	if o.stages == nil {
		o.stages = Stages()
	}
	return o
}

// Run executes a run and returns its result. See Stream.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	return o.Stream(ctx, req, nil)
}

// Stream executes the stages in order, calling fn (if non-nil) for every
// progress event. Calls to fn are serialized.
//
// Any stage failure aborts the run with a *RunError. When the execute stage
// is interrupted by cancellation, the partial result is returned together
// with the error.
func (o *Orchestrator) Stream(ctx context.Context, req Request, fn func(Event)) (*Result, error) {
	cfg := req.Config.withDefaults()
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if abs, err := filepath.Abs(cfg.CodebaseRoot); err == nil {
		cfg.CodebaseRoot = abs
	}

	var mu sync.Mutex
	var em *telemetry.Emitter
	emit := func(ev Event) {
		ev.RunID = cfg.RunID
		mu.Lock()
		defer mu.Unlock()
		if fn != nil {
			fn(ev)
		}
		if err := em.Emit(ev.Telemetry()); err != nil {
			o.log.Warn("telemetry write failed", "error", err)
		}
	}
	abort := func(stage string, err error, output string, res *Result) (*Result, error) {
		runErr := &RunError{Stage: stage, Code: classify(err), Output: output, Err: err}
		o.log.Error("run aborted", "run", cfg.RunID, "stage", stage, "code", runErr.Code, "error", err)
		emit(Event{Kind: telemetry.KindRunError, Stage: stage, Output: output, Err: runErr, Result: res})
		return res, runErr
	}

	start := 0
	if req.From != "" {
		i, err := o.indexOf(req.From)
		if err != nil {
			return abort(setupStage, err, "", nil)
		}
		start = i
	}

	store, err := artifact.Open(cfg.OutputRoot, cfg.RunID)
	if err != nil {
		return abort(setupStage, err, "", nil)
	}
	if o.telemetry {
		if em, err = telemetry.NewEmitter(store.Path(artifact.EventsFile)); err != nil {
			o.log.Warn("telemetry disabled", "error", err)
		}
		defer em.Close()
	}

	run, err := store.LoadRun()
	if start == 0 || err != nil {
		run = artifact.Run{ID: cfg.RunID, CodebaseRoot: cfg.CodebaseRoot, CreatedAt: o.now().UTC()}
		if err := store.SaveRun(run); err != nil {
			return abort(setupStage, err, "", nil)
		}
	}

	result := &Result{Run: run, RunDir: store.Dir(), Manifest: Manifest{RunID: run.ID, Entries: []ManifestEntry{}}}
	rc := &RunContext{
		Config:  cfg,
		Run:     run,
		Store:   store,
		Collab:  o.collab,
		Cache:   o.cache,
		Catalog: o.catalog,
		OnPair: func(e ManifestEntry) {
			emit(Event{Kind: telemetry.KindPairDone, Stage: StageExecute, Pair: &e})
		},
	}

	emit(Event{Kind: telemetry.KindRunStart})
	o.log.Info("run started", "run", run.ID, "root", cfg.CodebaseRoot, "dir", store.Dir())

	for i := start; i < len(o.stages); i++ {
		stage := o.stages[i]
		name := stage.Name()

		if err := ctx.Err(); err != nil {
			return abort(name, err, "", nil)
		}
		if err := o.clearFrom(store, i); err != nil {
			return abort(name, err, "", nil)
		}

		capture := logging.NewCapture(0)
		rc.Logger = logging.Tee(o.log.With("run", run.ID, "stage", name), capture)

		emit(Event{Kind: telemetry.KindStageStart, Stage: name})
		began := o.now()
		out, err := stage.Execute(ctx, rc)
		if err != nil {
			var partial *Result
			if name == StageExecute && len(rc.Manifest.Entries) > 0 {
				result.Manifest = rc.Manifest
				partial = result
			}
			output := out
			if output == "" {
				output = capture.String()
			}
			return abort(name, err, output, partial)
		}
		result.Output = out
		emit(Event{Kind: telemetry.KindStageDone, Stage: name, Output: out, Duration: o.now().Sub(began)})
	}

	result.Manifest = rc.Manifest
	if result.Manifest.RunID == "" {
		result.Manifest.RunID = run.ID
	}
	if result.Manifest.Entries == nil {
		result.Manifest.Entries = []ManifestEntry{}
	}
	emit(Event{Kind: telemetry.KindRunDone, Output: result.Output, Result: result})
	ok, failed := result.Manifest.Counts()
	o.log.Info("run complete", "run", run.ID, "pipelines_ok", ok, "pipelines_failed", failed)
	return result, nil
}

func (o *Orchestrator) indexOf(name string) (int, error) {
	for i, s := range o.stages {
		if s.Name() == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w %q", ErrUnknownStage, name)
}

// clearFrom removes the artifacts of stage i and every later stage, so a
// failure never leaves stale downstream results behind.
func (o *Orchestrator) clearFrom(store *artifact.Store, i int) error {
	for _, s := range o.stages[i:] {
		if err := store.Remove(stageArtifacts[s.Name()]...); err != nil {
			return err
		}
	}
	return nil
}

// Telemetry converts ev to the record written to events.jsonl.
func (ev Event) Telemetry() telemetry.Event {
	t := telemetry.Event{Kind: ev.Kind, RunID: ev.RunID, Stage: ev.Stage, Message: ev.Output}
	switch {
	case ev.Pair != nil:
		t.SubsetID = ev.Pair.SubsetID
		t.PipelineID = ev.Pair.PipelineID
		t.Message = ev.Pair.Error
		t.Data = map[string]any{"status": ev.Pair.Status, "artifacts": ev.Pair.OutputArtifactPaths}
	case ev.Err != nil:
		t.Message = ev.Err.Error()
		data := map[string]any{"code": ev.Err.Code}
		if ev.Err.Err != nil {
			data["error"] = ev.Err.Err.Error()
		}
		t.Data = data
	case ev.Kind == telemetry.KindStageDone:
		t.Data = map[string]any{"duration_ms": ev.Duration.Milliseconds()}
	case ev.Kind == telemetry.KindRunDone && ev.Result != nil:
		ok, failed := ev.Result.Manifest.Counts()
		t.Data = map[string]any{"ok": ok, "failed": failed}
	}
	return t
}
