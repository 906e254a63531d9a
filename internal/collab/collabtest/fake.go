// Package collabtest provides a scripted, deterministic Collaborator for
// tests.
package collabtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/papapumpkin/xployt/internal/collab"
)

// Fake is a Collaborator whose behavior is supplied per operation. Nil
// functions fall back to simple deterministic answers. Fake is safe for
// concurrent use and counts every call.
type Fake struct {
	SelectFn    func(context.Context, collab.SelectRequest) (collab.Selection, error)
	SummarizeFn func(context.Context, collab.SummarizeRequest) (string, error)
	ClusterFn   func(context.Context, collab.ClusterRequest) ([]collab.SubsetProposal, error)
	SuggestFn   func(context.Context, collab.SuggestRequest) ([]collab.PipelineProposal, error)
	AnalyzeFn   func(context.Context, collab.AnalyzeRequest) (string, error)

	mu       sync.Mutex
	calls    map[string]int
	analyzed []collab.AnalyzeRequest
}

var _ collab.Collaborator = (*Fake)(nil)

func (f *Fake) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls returns the number of calls across all operations.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// Analyzed returns every AnalyzeRequest received, in arrival order.
func (f *Fake) Analyzed() []collab.AnalyzeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]collab.AnalyzeRequest, len(f.analyzed))
	copy(out, f.analyzed)
	return out
}

// Select returns SelectFn's answer or an empty selection.
func (f *Fake) Select(ctx context.Context, req collab.SelectRequest) (collab.Selection, error) {
	f.record(collab.OpSelect)
	if f.SelectFn != nil {
		return f.SelectFn(ctx, req)
	}
	return collab.Selection{}, nil
}

// Summarize returns SummarizeFn's answer or "summary of <path>".
func (f *Fake) Summarize(ctx context.Context, req collab.SummarizeRequest) (string, error) {
	f.record(collab.OpSummarize)
	if f.SummarizeFn != nil {
		return f.SummarizeFn(ctx, req)
	}
	return "summary of " + req.Path, nil
}

// Cluster returns ClusterFn's answer or one subset holding every file.
func (f *Fake) Cluster(ctx context.Context, req collab.ClusterRequest) ([]collab.SubsetProposal, error) {
	f.record(collab.OpCluster)
	if f.ClusterFn != nil {
		return f.ClusterFn(ctx, req)
	}
	files := make([]string, 0, len(req.Files))
	for _, d := range req.Files {
		files = append(files, d.Path)
	}
	return []collab.SubsetProposal{{Files: files, Rationale: "all files"}}, nil
}

// Suggest returns SuggestFn's answer or no pipelines.
func (f *Fake) Suggest(ctx context.Context, req collab.SuggestRequest) ([]collab.PipelineProposal, error) {
	f.record(collab.OpSuggest)
	if f.SuggestFn != nil {
		return f.SuggestFn(ctx, req)
	}
	return nil, nil
}

// Analyze returns AnalyzeFn's answer or a line naming the stage.
func (f *Fake) Analyze(ctx context.Context, req collab.AnalyzeRequest) (string, error) {
	f.record(collab.OpAnalyze)
	f.mu.Lock()
	f.analyzed = append(f.analyzed, req)
	f.mu.Unlock()
	if f.AnalyzeFn != nil {
		return f.AnalyzeFn(ctx, req)
	}
	return fmt.Sprintf("%s/%s/%s ok", req.SubsetID, req.PipelineID, req.Stage), nil
}
