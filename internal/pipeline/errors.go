package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/papapumpkin/xployt/internal/artifact"
	"github.com/papapumpkin/xployt/internal/collab"
	"github.com/papapumpkin/xployt/internal/tree"
)

// Sentinel errors for run-aborting stage failures.
var (
	ErrSelection         = errors.New("selection failed")
	ErrClustering        = errors.New("clustering failed")
	ErrSuggestion        = errors.New("suggestion failed")
	ErrInvalidTransition = errors.New("invalid pair transition")
	ErrUnknownStage      = errors.New("unknown stage")
)

// Exit codes reported by RunError and used as the process exit status.
const (
	CodeOther      = 1
	CodeFilesystem = 2
	CodeCollab     = 3
	CodeParse      = 4
	CodeArtifact   = 5
	CodeCancelled  = 130
)

// ValidationError describes a collaborator-supplied value that was dropped
// because it did not resolve against the run's data. It is never fatal.
type ValidationError struct {
	Stage  string
	Kind   string // "folder", "file", "subset member", "pipeline", "stage"
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: dropped %s %q: %s", e.Stage, e.Kind, e.Value, e.Reason)
}

// StageExecutionError is a failed stage of one (subset, pipeline) pair. It
// fails that pair only.
type StageExecutionError struct {
	SubsetID   string
	PipelineID string
	Stage      string
	Err        error
}

func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("%s/%s stage %s: %v", e.SubsetID, e.PipelineID, e.Stage, e.Err)
}

func (e *StageExecutionError) Unwrap() error { return e.Err }

// RunError aborts a run. Output holds whatever the failing stage reported
// before it failed.
type RunError struct {
	Stage  string
	Code   int
	Output string
	Err    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s failed (exit/status %d)", e.Stage, e.Code)
}

func (e *RunError) Unwrap() error { return e.Err }

// ExitCode classifies err into one of the Code constants. A nil error is 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Code
	}
	return classify(err)
}

func classify(err error) int {
	var (
		fsErr     *tree.FilesystemError
		artErr    *artifact.IOError
		collabErr *collab.Error
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	case errors.As(err, &fsErr):
		return CodeFilesystem
	case errors.Is(err, ErrSelection), errors.Is(err, ErrClustering), errors.Is(err, ErrSuggestion):
		if errors.As(err, &collabErr) && !errors.Is(err, collab.ErrMalformed) {
			return CodeCollab
		}
		return CodeParse
	case errors.As(err, &collabErr):
		return CodeCollab
	case errors.As(err, &artErr):
		return CodeArtifact
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return CodeFilesystem
	default:
		return CodeOther
	}
}
