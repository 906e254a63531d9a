package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/papapumpkin/xployt/internal/artifact"
	"github.com/papapumpkin/xployt/internal/collab"
	"github.com/papapumpkin/xployt/internal/tree"
)

type selectStage struct{}

func (selectStage) Name() string { return StageSelect }

func (selectStage) Execute(ctx context.Context, rc *RunContext) (string, error) {
	root, err := loadTree(rc)
	if err != nil {
		return "", err
	}

	files, _ := tree.Count(root)
	rendered := tree.Render(root, tree.RenderOptions{
		MaxBytes: rc.Config.TreePromptBytes,
		Skip:     tree.IsNoise,
	})
	sel, err := rc.Collab.Select(ctx, collab.SelectRequest{RootName: root.Name, Tree: rendered, Files: files})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSelection, err)
	}

	out := validateSelection(tree.NewIndex(root), sel, rc)
	if err := rc.Store.WriteJSON(artifact.SelectionFile, out); err != nil {
		return "", err
	}
	return fmt.Sprintf("selected %d folders and %d files (%d dropped)", len(out.Folders), len(out.Files), len(out.Warnings)), nil
}

// validateSelection keeps the entries that resolve in the tree with the
// expected kind, in canonical sorted form.
func validateSelection(idx *tree.Index, sel collab.Selection, rc *RunContext) SelectionArtifact {
	out := SelectionArtifact{Folders: []string{}, Files: []string{}}
	check := func(raw []string, want tree.Kind, kind string) []string {
		var kept []string
		for _, p := range raw {
			canon, k, ok := idx.Resolve(p)
			switch {
			case !ok:
				out.Warnings = append(out.Warnings, warn(rc.Logger, &ValidationError{
					Stage: StageSelect, Kind: kind, Value: p, Reason: "not in tree",
				}))
			case k != want:
				out.Warnings = append(out.Warnings, warn(rc.Logger, &ValidationError{
					Stage: StageSelect, Kind: kind, Value: p, Reason: fmt.Sprintf("is a %s", k),
				}))
			default:
				kept = append(kept, canon)
			}
		}
		slices.Sort(kept)
		return slices.Compact(kept)
	}
	if f := check(sel.Folders, tree.KindDir, "folder"); f != nil {
		out.Folders = f
	}
	if f := check(sel.Files, tree.KindFile, "file"); f != nil {
		out.Files = f
	}
	return out
}
