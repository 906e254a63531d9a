package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/papapumpkin/xployt/internal/artifact"
	"github.com/papapumpkin/xployt/internal/telemetry"
	"github.com/papapumpkin/xployt/internal/ui"
)

var eventsCmd = &cobra.Command{
	Use:   "events [run-id]",
	Short: "View the JSONL progress events of a run",
	Long: `Reads and formats <output_root>/<run-id>/events.jsonl.

Without a run id, shows the most recently written run.
With --follow (-f), watches the file for new events until the run finishes
(like tail -f).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().BoolP("follow", "f", false, "follow the file for new events")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	follow, _ := cmd.Flags().GetBool("follow")
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var runID string
	if len(args) > 0 {
		runID = args[0]
	}

	path, err := resolveEventsPath(cfg.OutputRoot, runID)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("events: open %s: %w", path, err)
	}
	defer f.Close()

	printer := ui.NewWriter(cmd.OutOrStdout())
	reader := bufio.NewReader(f)
	finished, err := printEvents(cmd.OutOrStdout(), printer, reader)
	if err != nil {
		return fmt.Errorf("events: read %s: %w", path, err)
	}
	if !follow || finished {
		return nil
	}

	ctx, cancel := setupSignalContext(ui.NewWriter(cmd.ErrOrStderr()))
	defer cancel()
	return tailFollow(ctx, cmd.OutOrStdout(), printer, reader, path)
}

// printEvents prints every complete line available from r and reports
// whether a terminal event (run_done or run_error) was among them.
func printEvents(w io.Writer, p *ui.Printer, r *bufio.Reader) (bool, error) {
	finished := false
	for {
		line, err := r.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			if printEvent(w, p, line) {
				finished = true
			}
		}
		if err == io.EOF {
			return finished, nil
		}
		if err != nil {
			return finished, err
		}
	}
}

// printEvent decodes a JSONL line and prints it, reporting whether it ends
// the run.
func printEvent(w io.Writer, p *ui.Printer, line string) bool {
	var evt telemetry.Event
	if err := json.Unmarshal([]byte(line), &evt); err != nil {
		fmt.Fprintf(w, "??? %s\n", line)
		return false
	}
	p.TelemetryEvent(evt)
	return evt.Kind == telemetry.KindRunDone || evt.Kind == telemetry.KindRunError
}

// tailFollow watches the file for new data using fsnotify and prints new
// events until the run ends or ctx is canceled.
func tailFollow(ctx context.Context, w io.Writer, p *ui.Printer, r *bufio.Reader, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("events: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("events: watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) {
				continue
			}
			finished, err := printEvents(w, p, r)
			if err != nil {
				return fmt.Errorf("events: read %s: %w", path, err)
			}
			if finished {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("events: watch %s: %w", path, err)
		}
	}
}

// resolveEventsPath finds the events file of runID under outputRoot, or
// the most recently modified one if runID is empty.
func resolveEventsPath(outputRoot, runID string) (string, error) {
	if runID != "" {
		path := filepath.Join(outputRoot, runID, artifact.EventsFile)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("events: no events for run %q: %w", runID, err)
		}
		return path, nil
	}

	entries, err := os.ReadDir(outputRoot)
	if err != nil {
		return "", fmt.Errorf("events: cannot read %s: %w", outputRoot, err)
	}

	type candidate struct {
		path string
		mod  int64
	}
	var found []candidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(outputRoot, e.Name(), artifact.EventsFile)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		found = append(found, candidate{path: path, mod: info.ModTime().UnixNano()})
	}
	if len(found) == 0 {
		return "", fmt.Errorf("events: no runs with events in %s", outputRoot)
	}

	// Sort by modification time, most recent last.
	sort.Slice(found, func(i, j int) bool { return found[i].mod < found[j].mod })
	return found[len(found)-1].path, nil
}
