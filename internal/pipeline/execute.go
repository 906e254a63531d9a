package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/papapumpkin/xployt/internal/artifact"
)

type executeStage struct{}

func (executeStage) Name() string { return StageExecute }

func (executeStage) Execute(ctx context.Context, rc *RunContext) (string, error) {
	subsets, err := loadSubsets(rc)
	if err != nil {
		return "", err
	}
	suggestions, err := loadSuggestions(rc)
	if err != nil {
		return "", err
	}
	records, err := loadRecords(rc)
	if err != nil {
		return "", err
	}

	x := &Executor{
		Collab:       rc.Collab,
		Catalog:      rc.Catalog,
		Store:        rc.Store,
		Root:         rc.Config.CodebaseRoot,
		ExcerptBytes: rc.Config.ExcerptBytes,
		Workers:      rc.Config.PairWorkers,
		Logger:       rc.Logger,
		OnPair:       rc.OnPair,
	}
	manifest, err := x.Execute(ctx, rc.Run.ID, subsets, suggestions, records)
	rc.Manifest = manifest
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	if wErr := rc.Store.WriteJSON(path.Join(artifact.OutputsDir, artifact.SummaryFile), manifest); wErr != nil {
		return "", errors.Join(err, wErr)
	}
	if err != nil {
		return "", err
	}

	ok, failed := manifest.Counts()
	if len(manifest.Entries) == 0 {
		return "no pipelines to execute", nil
	}
	return fmt.Sprintf("executed %d pipelines: %d ok, %d failed", len(manifest.Entries), ok, failed), nil
}
