package pipeline

import (
	"context"
	"fmt"

	"github.com/papapumpkin/xployt/internal/artifact"
	"github.com/papapumpkin/xployt/internal/catalog"
	"github.com/papapumpkin/xployt/internal/collab"
	"github.com/papapumpkin/xployt/internal/enrich"
)

type suggestStage struct{}

func (suggestStage) Name() string { return StageSuggest }

func (suggestStage) Execute(ctx context.Context, rc *RunContext) (string, error) {
	subsets, err := loadSubsets(rc)
	if err != nil {
		return "", err
	}
	records, err := loadRecords(rc)
	if err != nil {
		return "", err
	}
	byPath := make(map[string]enrich.Record, len(records))
	for _, r := range records {
		byPath[r.Path] = r
	}

	listing := rc.Catalog.Render()
	suggestions := make([]Suggestion, 0, len(subsets))
	pairs := 0
	for _, s := range subsets {
		digests := make([]collab.FileDigest, 0, len(s.Files))
		for _, f := range s.Files {
			if r, ok := byPath[f]; ok {
				digests = append(digests, r.Digest())
			} else {
				digests = append(digests, collab.FileDigest{Path: f})
			}
		}
		proposals, err := rc.Collab.Suggest(ctx, collab.SuggestRequest{
			SubsetID:  s.ID,
			Rationale: s.Rationale,
			Files:     digests,
			Catalog:   listing,
		})
		if err != nil {
			return "", fmt.Errorf("%w: subset %s: %w", ErrSuggestion, s.ID, err)
		}
		choices := validatePipelines(proposals, rc.Catalog, rc)
		pairs += len(choices)
		suggestions = append(suggestions, Suggestion{SubsetID: s.ID, Pipelines: choices})
	}

	if err := rc.Store.WriteJSON(artifact.SuggestionsFile, suggestions); err != nil {
		return "", err
	}
	return fmt.Sprintf("suggested %d pipelines across %d subsets", pairs, len(subsets)), nil
}

// validatePipelines filters proposals against the catalog. Unknown pipelines
// are dropped, unknown stages filtered out, an empty stage list falls back to
// the pipeline's defaults, and duplicate pipelines or stages keep their
// first occurrence.
func validatePipelines(proposals []collab.PipelineProposal, cat *catalog.Catalog, rc *RunContext) []PipelineChoice {
	choices := []PipelineChoice{}
	seen := make(map[string]bool)
	for _, p := range proposals {
		def, ok := cat.Pipeline(p.PipelineID)
		if !ok {
			warn(rc.Logger, &ValidationError{
				Stage: StageSuggest, Kind: "pipeline", Value: p.PipelineID, Reason: "not in catalog",
			})
			continue
		}
		if seen[p.PipelineID] {
			continue
		}

		stages := def.Stages
		if len(p.Stages) > 0 {
			stages = nil
			named := make(map[string]bool, len(p.Stages))
			for _, name := range p.Stages {
				if !cat.HasStage(name) {
					warn(rc.Logger, &ValidationError{
						Stage: StageSuggest, Kind: "stage", Value: name, Reason: "not in catalog",
					})
					continue
				}
				if named[name] {
					warn(rc.Logger, &ValidationError{
						Stage: StageSuggest, Kind: "stage", Value: name, Reason: "duplicate stage",
					})
					continue
				}
				named[name] = true
				stages = append(stages, name)
			}
		}
		if len(stages) == 0 {
			warn(rc.Logger, &ValidationError{
				Stage: StageSuggest, Kind: "pipeline", Value: p.PipelineID, Reason: "no valid stages",
			})
			continue
		}
		seen[p.PipelineID] = true
		choices = append(choices, PipelineChoice{PipelineID: p.PipelineID, Stages: stages})
	}
	return choices
}

// loadSuggestions reads the persisted suggestions artifact.
func loadSuggestions(rc *RunContext) ([]Suggestion, error) {
	var suggestions []Suggestion
	if err := rc.Store.ReadJSON(artifact.SuggestionsFile, &suggestions); err != nil {
		return nil, err
	}
	return suggestions, nil
}
