package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/xployt/internal/config"
	"github.com/papapumpkin/xployt/internal/pipeline"
	"github.com/papapumpkin/xployt/internal/server"
	"github.com/papapumpkin/xployt/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run [path]",
	Short: "Run the analysis pipeline over a codebase",
	Long: `Runs every stage over the codebase at path (default: codebase_path from
config). Artifacts are written under <output_root>/<id>/.

With --from, earlier stages are skipped and their persisted artifacts
reused; the run id must name an existing run directory.

Progress goes to stderr. --json writes the manifest to stdout and --stream
writes every progress event to stdout as a JSON line.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPipeline,
}

func init() {
	addRunFlags(runCmd)
	runCmd.Flags().String("from", "", "first stage to execute, reusing earlier artifacts")
	runCmd.Flags().Bool("stream", false, "write progress events to stdout as JSON lines")
	runCmd.Flags().Bool("json", false, "write the manifest to stdout as JSON")
	rootCmd.AddCommand(runCmd)
}

// addRunFlags registers the flags shared by run and watch.
func addRunFlags(c *cobra.Command) {
	c.Flags().String("id", "", "run id (default: run_id from config, else generated)")
	c.Flags().Int("max-files", 0, "cap on the number of files enriched (0 means no cap)")
	c.Flags().StringSlice("exclude", nil, "directory names to skip, replacing exclude_dirs")
}

// runConfigFromFlags builds the run settings from config, overridden by any
// flags the user set.
func runConfigFromFlags(c *cobra.Command, cfg config.Config, args []string) (pipeline.RunConfig, error) {
	var path string
	if len(args) > 0 {
		path = args[0]
	}
	id, _ := c.Flags().GetString("id")
	rc := cfg.RunConfig(id, path)

	if c.Flags().Changed("max-files") {
		n, _ := c.Flags().GetInt("max-files")
		if n < 0 {
			return rc, fmt.Errorf("--max-files must not be negative (got %d)", n)
		}
		rc.MaxFiles = n
	}
	if c.Flags().Changed("exclude") {
		rc.ExcludeDirs, _ = c.Flags().GetStringSlice("exclude")
	}
	return rc, nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rc, err := runConfigFromFlags(cmd, cfg, args)
	if err != nil {
		return err
	}
	from, _ := cmd.Flags().GetString("from")
	stream, _ := cmd.Flags().GetBool("stream")
	jsonOut, _ := cmd.Flags().GetBool("json")

	printer := ui.NewWriter(cmd.ErrOrStderr())
	ctx, cancel := setupSignalContext(printer)
	defer cancel()

	a, err := buildApp(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	printer.Banner()
	_, err = executeRun(ctx, a.orch, pipeline.Request{Config: rc, From: from}, printer, runOutput{
		w:      cmd.OutOrStdout(),
		stream: stream,
		json:   jsonOut,
	})
	printer.Usage(a.collab.Usage())
	return err
}

// runOutput selects what a run writes to stdout.
type runOutput struct {
	w      io.Writer
	stream bool
	json   bool
}

// executeRun streams one run, rendering progress with printer and writing
// machine-readable output per out. A partial result is still rendered.
func executeRun(ctx context.Context, r server.Runner, req pipeline.Request, printer *ui.Printer, out runOutput) (*pipeline.Result, error) {
	enc := json.NewEncoder(out.w)
	res, err := r.Stream(ctx, req, func(ev pipeline.Event) {
		printer.Event(ev)
		if out.stream {
			t := ev.Telemetry()
			t.Timestamp = time.Now().UTC()
			_ = enc.Encode(t)
		}
	})
	if res == nil {
		return nil, err
	}
	if out.json {
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(res.Manifest); encErr != nil && err == nil {
			err = fmt.Errorf("writing manifest: %w", encErr)
		}
	} else {
		printer.Manifest(res.Manifest)
	}
	return res, err
}

// setupSignalContext returns a context that is canceled on SIGINT or SIGTERM.
func setupSignalContext(printer *ui.Printer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			printer.Info("\nshutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
