// Package pipeline runs the six fixed stages of an analysis run (tree,
// select, enrich, cluster, suggest, execute), each consuming the previous
// stage's persisted artifact, and aggregates per-(subset, pipeline) results
// into a Manifest.
package pipeline

import (
	"github.com/papapumpkin/xployt/internal/artifact"
	"github.com/papapumpkin/xployt/internal/tree"
)

// RunConfig carries every run-scoped setting. It is built once per run and
// passed by value; nothing in this package reads process-wide configuration.
type RunConfig struct {
	RunID           string
	CodebaseRoot    string
	OutputRoot      string
	MaxFiles        int      // 0 means no cap
	ExcludeDirs     []string // nil uses tree.DefaultExcludeDirs
	TreeMaxDepth    int
	TreePromptBytes int
	ExcerptBytes    int // code excerpt for the first stage of each pipeline
	EnrichWorkers   int
	PairWorkers     int
	ClusterHints    []string
}

// Default values for zero-valued RunConfig fields.
const (
	DefaultTreePromptBytes = 32000
	DefaultExcerptBytes    = 8000
	DefaultPairWorkers     = 4
)

// DefaultClusterHints are the relationships the clusterer is asked to group by.
var DefaultClusterHints = []string{"shared data flow", "layering", "shared mutable state"}

func (c RunConfig) withDefaults() RunConfig {
	if c.TreePromptBytes <= 0 {
		c.TreePromptBytes = DefaultTreePromptBytes
	}
	if c.ExcerptBytes <= 0 {
		c.ExcerptBytes = DefaultExcerptBytes
	}
	if c.PairWorkers <= 0 {
		c.PairWorkers = DefaultPairWorkers
	}
	if c.ExcludeDirs == nil {
		c.ExcludeDirs = tree.DefaultExcludeDirs
	}
	if len(c.ClusterHints) == 0 {
		c.ClusterHints = DefaultClusterHints
	}
	return c
}

// SelectionArtifact is the persisted output of the select stage.
type SelectionArtifact struct {
	Folders  []string `json:"folders"`
	Files    []string `json:"files"`
	Warnings []string `json:"warnings,omitempty"`
}

// Subset is a group of files analyzed together.
type Subset struct {
	ID        string   `json:"subset_id"`
	Files     []string `json:"files"`
	Rationale string   `json:"rationale"`
}

// PipelineChoice is one pipeline selected for a subset with its validated
// stage list.
type PipelineChoice struct {
	PipelineID string   `json:"pipeline_id"`
	Stages     []string `json:"stages"`
}

// Suggestion lists the pipelines to run on one subset.
type Suggestion struct {
	SubsetID  string           `json:"subset_id"`
	Pipelines []PipelineChoice `json:"pipelines"`
}

// Status is the outcome of a stage or a (subset, pipeline) pair.
type Status string

// Statuses recorded in outputs and manifest entries.
const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// StageOutput records one executed stage.
type StageOutput struct {
	SubsetID     string `json:"subset_id"`
	PipelineID   string `json:"pipeline_id"`
	Stage        string `json:"stage_name"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	ReadablePath string `json:"readable_path,omitempty"`
	Status       Status `json:"status"`
	Error        string `json:"error,omitempty"`
}

// ManifestEntry is the aggregate result of one (subset, pipeline) pair.
type ManifestEntry struct {
	SubsetID            string        `json:"subset_id"`
	PipelineID          string        `json:"pipeline_id"`
	OutputArtifactPaths []string      `json:"output_artifact_paths"`
	Status              Status        `json:"status"`
	Stages              []StageOutput `json:"stages"`
	Error               string        `json:"error,omitempty"`
}

// Manifest aggregates every pair of a run, sorted by (subset_id,
// pipeline_id). Artifact paths are relative to the run's pipeline_outputs
// directory.
type Manifest struct {
	RunID   string          `json:"run_id"`
	Entries []ManifestEntry `json:"entries"`
}

// Counts returns how many entries succeeded and failed.
func (m Manifest) Counts() (ok, failed int) {
	for _, e := range m.Entries {
		if e.Status == StatusOK {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// Request starts a run.
type Request struct {
	Config RunConfig
	// From names the first stage to execute. Earlier stages are skipped and
	// their persisted artifacts reused. Empty runs every stage.
	From string
}

// Result is a finished (or partially finished) run.
type Result struct {
	Run      artifact.Run
	Manifest Manifest
	// Output is the terminal output of the last stage that ran.
	Output string
	// RunDir is the directory holding the run's artifacts.
	RunDir string
}

// Success reports whether the run produced manifest entries.
func (r *Result) Success() bool {
	return r != nil && len(r.Manifest.Entries) > 0
}
