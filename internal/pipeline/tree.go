package pipeline

import (
	"context"
	"fmt"

	"github.com/papapumpkin/xployt/internal/artifact"
	"github.com/papapumpkin/xployt/internal/tree"
)

type treeStage struct{}

func (treeStage) Name() string { return StageTree }

func (treeStage) Execute(ctx context.Context, rc *RunContext) (string, error) {
	root, err := tree.Extract(ctx, rc.Config.CodebaseRoot, tree.Options{
		ExcludeDirs: rc.Config.ExcludeDirs,
		MaxDepth:    rc.Config.TreeMaxDepth,
	})
	if err != nil {
		return "", err
	}
	if err := rc.Store.WriteJSON(artifact.TreeFile, root); err != nil {
		return "", err
	}
	files, dirs := tree.Count(root)
	rc.Logger.Info("tree extracted", "root", rc.Config.CodebaseRoot, "files", files, "dirs", dirs)
	return fmt.Sprintf("extracted %d files in %d directories", files, dirs), nil
}

// loadTree reads the persisted tree artifact.
func loadTree(rc *RunContext) (*tree.Node, error) {
	var root tree.Node
	if err := rc.Store.ReadJSON(artifact.TreeFile, &root); err != nil {
		return nil, err
	}
	return &root, nil
}
