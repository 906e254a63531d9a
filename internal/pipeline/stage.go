package pipeline

import (
	"context"
	"log/slog"

	"github.com/papapumpkin/xployt/internal/artifact"
	"github.com/papapumpkin/xployt/internal/cache"
	"github.com/papapumpkin/xployt/internal/catalog"
	"github.com/papapumpkin/xployt/internal/collab"
)

// Stage names, in execution order.
const (
	StageTree    = "tree"
	StageSelect  = "select"
	StageEnrich  = "enrich"
	StageCluster = "cluster"
	StageSuggest = "suggest"
	StageExecute = "execute"
)

// Stage is one step of a run. Execute reads the previous stage's artifact
// from rc.Store, writes its own, and returns a short line of terminal output.
type Stage interface {
	Name() string
	Execute(ctx context.Context, rc *RunContext) (string, error)
}

// RunContext is the state shared by the stages of a single run.
type RunContext struct {
	Config  RunConfig
	Run     artifact.Run
	Store   *artifact.Store
	Collab  collab.Collaborator
	Cache   cache.Store
	Catalog *catalog.Catalog
	Logger  *slog.Logger

	// OnPair is called when a (subset, pipeline) pair reaches a terminal
	// state. It may be nil.
	OnPair func(ManifestEntry)

	// Manifest is set by the execute stage.
	Manifest Manifest
}

// Stages returns the fixed stage sequence.
func Stages() []Stage {
	return []Stage{treeStage{}, selectStage{}, enrichStage{}, clusterStage{}, suggestStage{}, executeStage{}}
}

// StageNames returns the names of Stages in order.
func StageNames() []string {
	stages := Stages()
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
	}
	return names
}

// stageArtifacts maps each stage to the artifacts it owns within the run
// directory.
var stageArtifacts = map[string][]string{
	StageTree:    {artifact.TreeFile},
	StageSelect:  {artifact.SelectionFile},
	StageEnrich:  {artifact.MetadataFile},
	StageCluster: {artifact.SubsetsFile},
	StageSuggest: {artifact.SuggestionsFile},
	StageExecute: {artifact.OutputsDir},
}

// warn logs a dropped value and returns its message for the stage artifact.
func warn(log *slog.Logger, v *ValidationError) string {
	log.Warn("dropped collaborator value", "stage", v.Stage, "kind", v.Kind, "value", v.Value, "reason", v.Reason)
	return v.Error()
}
