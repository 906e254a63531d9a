package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/papapumpkin/xployt/internal/artifact"
	"github.com/papapumpkin/xployt/internal/collab"
	"github.com/papapumpkin/xployt/internal/enrich"
	"github.com/papapumpkin/xployt/internal/tree"
)

// unassignedRationale labels the subset that gathers files the collaborator
// left out.
const unassignedRationale = "files not assigned by the collaborator"

type clusterStage struct{}

func (clusterStage) Name() string { return StageCluster }

func (clusterStage) Execute(ctx context.Context, rc *RunContext) (string, error) {
	records, err := loadRecords(rc)
	if err != nil {
		return "", err
	}

	subsets := []Subset{}
	if len(records) > 0 {
		digests := make([]collab.FileDigest, len(records))
		for i, r := range records {
			digests[i] = r.Digest()
		}
		proposals, err := rc.Collab.Cluster(ctx, collab.ClusterRequest{Files: digests, Hints: rc.Config.ClusterHints})
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrClustering, err)
		}
		subsets = buildSubsets(proposals, records, rc)
	}

	if err := rc.Store.WriteJSON(artifact.SubsetsFile, subsets); err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "no files to cluster", nil
	}
	return fmt.Sprintf("grouped %d files into %d subsets", len(records), len(subsets)), nil
}

// buildSubsets validates proposals against the enriched files, renumbers
// survivors subset-001, subset-002, ... in response order, and appends a
// catch-all subset for enriched files no proposal covered.
func buildSubsets(proposals []collab.SubsetProposal, records []enrich.Record, rc *RunContext) []Subset {
	known := make(map[string]bool, len(records))
	for _, r := range records {
		known[r.Path] = true
	}

	covered := make(map[string]bool, len(records))
	subsets := []Subset{}
	for _, p := range proposals {
		var members []string
		seen := make(map[string]bool, len(p.Files))
		for _, raw := range p.Files {
			f := tree.Normalize(raw)
			if !known[f] {
				warn(rc.Logger, &ValidationError{
					Stage: StageCluster, Kind: "subset member", Value: raw, Reason: "not an enriched file",
				})
				continue
			}
			if seen[f] {
				continue
			}
			seen[f] = true
			members = append(members, f)
		}
		if len(members) == 0 {
			continue
		}
		slices.Sort(members)
		for _, f := range members {
			covered[f] = true
		}
		subsets = append(subsets, Subset{
			ID:        subsetID(len(subsets) + 1),
			Files:     members,
			Rationale: p.Rationale,
		})
	}

	if len(subsets) == 0 {
		return subsets
	}

	var rest []string
	for _, r := range records {
		if !covered[r.Path] {
			rest = append(rest, r.Path)
		}
	}
	if len(rest) > 0 {
		slices.Sort(rest)
		subsets = append(subsets, Subset{
			ID:        subsetID(len(subsets) + 1),
			Files:     rest,
			Rationale: unassignedRationale,
		})
	}
	return subsets
}

func subsetID(n int) string {
	return fmt.Sprintf("subset-%03d", n)
}

// loadSubsets reads the persisted subsets artifact.
func loadSubsets(rc *RunContext) ([]Subset, error) {
	var subsets []Subset
	if err := rc.Store.ReadJSON(artifact.SubsetsFile, &subsets); err != nil {
		return nil, err
	}
	return subsets, nil
}
