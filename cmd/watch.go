package cmd

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/papapumpkin/xployt/internal/pipeline"
	"github.com/papapumpkin/xployt/internal/ui"
	"github.com/papapumpkin/xployt/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Re-run the pipeline whenever the codebase changes",
	Long: `Runs once, then watches the codebase and runs again after each burst of
changes settles (watch_debounce). Every re-run reuses the same run id, so
the run directory always reflects the latest state of the code. Unchanged
files are served from the content cache.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	addRunFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rc, err := runConfigFromFlags(cmd, cfg, args)
	if err != nil {
		return err
	}
	if rc.RunID == "" {
		rc.RunID = uuid.NewString()
	}

	log := newLogger(cfg)
	printer := ui.NewWriter(cmd.ErrOrStderr())
	ctx, cancel := setupSignalContext(printer)
	defer cancel()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := watch.NewWatcher(rc.CodebaseRoot, watch.Options{
		Debounce:    cfg.WatchDebounce,
		ExcludeDirs: rc.ExcludeDirs,
		Ignore:      ignoreUnder(rc.OutputRoot, cfg.CacheFile()),
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	req := pipeline.Request{Config: rc}
	out := runOutput{w: cmd.OutOrStdout()}
	runOnce := func() {
		if _, err := executeRun(ctx, a.orch, req, printer, out); err != nil && ctx.Err() == nil {
			log.Warn("run failed; waiting for changes", "run", rc.RunID, "error", err)
		}
	}

	printer.Banner()
	runOnce()
	printer.Info("watching " + w.Root + " (ctrl-c to stop)")
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-w.Batches:
			printer.WatchTriggered(b.Paths)
			runOnce()
		}
	}
}

// ignoreUnder returns a filter matching each of paths and anything beneath
// them, so a run's own output inside the watched tree never triggers a
// re-run.
func ignoreUnder(paths ...string) func(string) bool {
	var roots []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			roots = append(roots, abs)
		}
	}
	return func(p string) bool {
		for _, r := range roots {
			if p == r || strings.HasPrefix(p, r+string(filepath.Separator)) {
				return true
			}
		}
		return false
	}
}
