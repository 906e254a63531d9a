// Package collab defines the reasoning collaborator the pipeline delegates
// judgment calls to, and a client that drives it through an agent.Invoker
// with bounded retries and a shared concurrency ceiling.
package collab

import (
	"context"
	"errors"
	"fmt"
)

// Operation names, used in errors, logs and usage accounting.
const (
	OpSelect    = "select"
	OpSummarize = "summarize"
	OpCluster   = "cluster"
	OpSuggest   = "suggest"
	OpAnalyze   = "analyze"
)

// ErrMalformed is wrapped when a response cannot be decoded into the
// expected structure.
var ErrMalformed = errors.New("malformed collaborator response")

// Collaborator is the capability interface for every judgment call the
// pipeline makes. Implementations must be safe for concurrent use.
type Collaborator interface {
	Select(ctx context.Context, req SelectRequest) (Selection, error)
	Summarize(ctx context.Context, req SummarizeRequest) (string, error)
	Cluster(ctx context.Context, req ClusterRequest) ([]SubsetProposal, error)
	Suggest(ctx context.Context, req SuggestRequest) ([]PipelineProposal, error)
	Analyze(ctx context.Context, req AnalyzeRequest) (string, error)
}

// SelectRequest asks which paths of a codebase merit attention.
type SelectRequest struct {
	RootName string
	Tree     string // bounded text rendering
	Files    int    // total files in the tree, for context
}

// Selection is the collaborator's raw answer to a SelectRequest.
type Selection struct {
	Folders []string `json:"folders"`
	Files   []string `json:"files"`
}

// SummarizeRequest asks for a short natural-language summary of one file.
type SummarizeRequest struct {
	Path     string
	Language string
	Content  string // bounded excerpt
}

// FileDigest is the compact view of an enriched file sent to the clusterer
// and suggester.
type FileDigest struct {
	Path     string   `json:"path"`
	Language string   `json:"language,omitempty"`
	Imports  []string `json:"imports,omitempty"`
	Summary  string   `json:"summary,omitempty"`
}

// ClusterRequest asks for files to be grouped into subsets.
type ClusterRequest struct {
	Files []FileDigest
	Hints []string
}

// SubsetProposal is one subset as returned by the collaborator, before
// validation.
type SubsetProposal struct {
	ID        string   `json:"subset_id,omitempty"`
	Files     []string `json:"files"`
	Rationale string   `json:"rationale,omitempty"`
}

// SuggestRequest asks which pipelines should run on one subset.
type SuggestRequest struct {
	SubsetID  string
	Rationale string
	Files     []FileDigest
	Catalog   string // rendered listing of known pipelines and stages
}

// PipelineProposal is one suggested pipeline before validation. Empty Stages
// means the pipeline's default stage list.
type PipelineProposal struct {
	PipelineID string   `json:"pipeline_id"`
	Stages     []string `json:"stages,omitempty"`
}

// AnalyzeRequest runs one pipeline stage.
type AnalyzeRequest struct {
	SubsetID     string
	PipelineID   string
	Stage        string
	Instructions string
	Input        string // code excerpt for a first stage, else the previous stage's output
	Code         string // optional code excerpt for later stages
}

// Error is a failed or malformed collaborator call after retries were
// exhausted (or stopped by cancellation).
type Error struct {
	Op       string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("collaborator %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
