package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/papapumpkin/xployt/internal/artifact"
	"github.com/papapumpkin/xployt/internal/enrich"
	"github.com/papapumpkin/xployt/internal/tree"
)

type enrichStage struct{}

func (enrichStage) Name() string { return StageEnrich }

func (enrichStage) Execute(ctx context.Context, rc *RunContext) (string, error) {
	root, err := loadTree(rc)
	if err != nil {
		return "", err
	}
	var sel SelectionArtifact
	if err := rc.Store.ReadJSON(artifact.SelectionFile, &sel); err != nil {
		return "", err
	}

	paths := expandSelection(tree.NewIndex(root), sel)
	e := enrich.New(rc.Config.CodebaseRoot, rc.Collab, rc.Cache, enrich.Options{
		Workers:  rc.Config.EnrichWorkers,
		MaxFiles: rc.Config.MaxFiles,
		Logger:   rc.Logger,
	})
	records, err := e.Enrich(ctx, paths)
	if err != nil {
		return "", err
	}
	if records == nil {
		records = []enrich.Record{}
	}
	if err := rc.Store.WriteJSON(artifact.MetadataFile, records); err != nil {
		return "", err
	}

	var hits, degraded int
	for _, r := range records {
		if r.CacheHit {
			hits++
		}
		if r.Degraded {
			degraded++
		}
	}
	return fmt.Sprintf("enriched %d files (%d cached, %d degraded)", len(records), hits, degraded), nil
}

// expandSelection turns selected folders into their files, skipping noise
// files, and merges them with the explicitly selected files.
func expandSelection(idx *tree.Index, sel SelectionArtifact) []string {
	paths := slices.Clone(sel.Files)
	for _, dir := range sel.Folders {
		for _, f := range idx.FilesUnder(dir) {
			if !tree.IsNoise(f) {
				paths = append(paths, f)
			}
		}
	}
	slices.Sort(paths)
	return slices.Compact(paths)
}

// loadRecords reads the persisted metadata artifact.
func loadRecords(rc *RunContext) ([]enrich.Record, error) {
	var records []enrich.Record
	if err := rc.Store.ReadJSON(artifact.MetadataFile, &records); err != nil {
		return nil, err
	}
	return records, nil
}
