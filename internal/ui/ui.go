package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/papapumpkin/xployt/internal/cache"
	"github.com/papapumpkin/xployt/internal/catalog"
	"github.com/papapumpkin/xployt/internal/collab"
	"github.com/papapumpkin/xployt/internal/pipeline"
	"github.com/papapumpkin/xployt/internal/telemetry"
)

// previewLines caps how many lines of stage output are echoed.
const previewLines = 3

// Printer writes human-facing progress. Machine-readable output (--json)
// goes to stdout separately; Printer defaults to stderr.
type Printer struct {
	w io.Writer
}

// New returns a Printer writing to stderr.
func New() *Printer {
	return &Printer{w: os.Stderr}
}

// NewWriter returns a Printer writing to w.
func NewWriter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Banner prints the program header.
func (p *Printer) Banner() {
	fmt.Fprintln(p.w, styleBanner.Render("XPLOYT  "+styleDim.Render("staged security analysis")))
	fmt.Fprintln(p.w)
}

// Error prints msg as an error.
func (p *Printer) Error(msg string) {
	fmt.Fprintf(p.w, "%s %s\n", styleFailed.Render("error:"), msg)
}

// Warn prints msg as a warning.
func (p *Printer) Warn(msg string) {
	fmt.Fprintf(p.w, "%s %s\n", styleWarn.Render("warning:"), msg)
}

// Info prints msg dimmed.
func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.w, styleDim.Render(msg))
}

// Event renders one run progress event.
func (p *Printer) Event(ev pipeline.Event) {
	switch ev.Kind {
	case telemetry.KindRunStart:
		fmt.Fprintf(p.w, "%s %s\n", styleTitle.Render(iconRun+" run"), ev.RunID)
	case telemetry.KindStageStart:
		fmt.Fprintf(p.w, "%s %s\n", styleWorking.Render(iconWorking+" "+ev.Stage), styleDim.Render("working..."))
	case telemetry.KindStageDone:
		fmt.Fprintf(p.w, "%s %s %s\n", styleOK.Render(iconDone+" "+ev.Stage), ev.Output,
			styleDim.Render("("+formatDuration(ev.Duration)+")"))
	case telemetry.KindPairDone:
		p.pair(ev.Pair)
	case telemetry.KindRunDone:
		if ev.Result != nil {
			p.RunSummary(ev.Result)
		}
	case telemetry.KindRunError:
		p.RunError(ev.Err)
	}
}

func (p *Printer) pair(e *pipeline.ManifestEntry) {
	if e == nil {
		return
	}
	label := e.SubsetID + " / " + e.PipelineID
	if e.Status == pipeline.StatusOK {
		fmt.Fprintf(p.w, "  %s %s\n", styleOK.Render(iconDone), label)
		return
	}
	fmt.Fprintf(p.w, "  %s %s %s\n", styleFailed.Render(iconFailed), label, styleDim.Render(e.Error))
}

// RunSummary prints the closing line of a run.
func (p *Printer) RunSummary(res *pipeline.Result) {
	ok, failed := res.Manifest.Counts()
	switch {
	case len(res.Manifest.Entries) == 0:
		fmt.Fprintf(p.w, "%s %s\n", styleWarn.Render(iconDone+" run complete"), "no pipelines executed")
	case failed == 0:
		fmt.Fprintf(p.w, "%s %d pipeline(s) ok\n", styleOKBold.Render(iconDone+" run complete"), ok)
	default:
		fmt.Fprintf(p.w, "%s %d ok, %d failed\n", styleWarn.Render(iconDone+" run complete"), ok, failed)
	}
	fmt.Fprintln(p.w, styleDim.Render("  artifacts: "+res.RunDir))
}

// Usage prints the collaborator calls a run issued, per operation.
func (p *Printer) Usage(u collab.Usage) {
	ops := make([]string, 0, len(u.Calls))
	total, failed := 0, 0
	for op, n := range u.Calls {
		ops = append(ops, op)
		total += n
	}
	for _, n := range u.Failures {
		failed += n
	}
	if total == 0 {
		return
	}
	sort.Strings(ops)
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = fmt.Sprintf("%s=%d", op, u.Calls[op])
	}
	line := fmt.Sprintf("  collaborator: %d call(s) [%s]", total, strings.Join(parts, " "))
	if failed > 0 {
		line += fmt.Sprintf(", %d failed attempt(s)", failed)
	}
	if u.CostUSD > 0 {
		line += fmt.Sprintf(", $%.4f", u.CostUSD)
	}
	fmt.Fprintln(p.w, styleDim.Render(line))
}

// RunError prints a run abort with the tail of the stage's output.
func (p *Printer) RunError(err *pipeline.RunError) {
	if err == nil {
		return
	}
	fmt.Fprintf(p.w, "%s %v\n", styleFailed.Render(iconFailed+" "+err.Error()), err.Err)
	if out := preview(err.Output, previewLines); out != "" {
		fmt.Fprintln(p.w, styleDim.Render(indent(out, "    ")))
	}
}

// Manifest renders the manifest entries as a table.
func (p *Printer) Manifest(m pipeline.Manifest) {
	if len(m.Entries) == 0 {
		p.Info("(no pipeline results)")
		return
	}
	rows := make([][]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		status := string(e.Status)
		if e.Error != "" {
			status += ": " + truncate(e.Error, 40)
		}
		rows = append(rows, []string{e.SubsetID, e.PipelineID, status, fmt.Sprintf("%d", len(e.OutputArtifactPaths))})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleDim).
		Headers("SUBSET", "PIPELINE", "STATUS", "ARTIFACTS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			if col == 2 && row >= 0 && row < len(m.Entries) {
				if m.Entries[row].Status == pipeline.StatusOK {
					return styleCell.Foreground(colorSuccess)
				}
				return styleCell.Foreground(colorDanger)
			}
			return styleCell
		})
	fmt.Fprintln(p.w, t.Render())
}

// Catalog lists the pipelines and stages of c.
func (p *Printer) Catalog(c *catalog.Catalog) {
	fmt.Fprintln(p.w, styleTitle.Render("pipelines"))
	for _, pl := range c.Pipelines() {
		fmt.Fprintf(p.w, "  %s %s\n", styleBold.Render(pl.ID), styleDim.Render(pl.Description))
		fmt.Fprintf(p.w, "    stages: %s\n", strings.Join(pl.Stages, " → "))
	}
	fmt.Fprintln(p.w, styleTitle.Render("stages"))
	for _, s := range c.Stages() {
		var flags []string
		if s.IncludeCode {
			flags = append(flags, "code")
		}
		if s.Chain {
			flags = append(flags, "chain")
		}
		line := fmt.Sprintf("  %s %s", styleBold.Render(s.Name), styleDim.Render(s.Description))
		if len(flags) > 0 {
			line += " " + styleDim.Render("["+strings.Join(flags, ",")+"]")
		}
		fmt.Fprintln(p.w, line)
	}
}

// CatalogValid reports a successfully parsed catalog file.
func (p *Printer) CatalogValid(path string, c *catalog.Catalog) {
	fmt.Fprintf(p.w, "%s %s %s\n", styleOKBold.Render(iconDone+" catalog"), path,
		styleDim.Render(fmt.Sprintf("(%d pipelines, %d stages)", len(c.Pipelines()), len(c.Stages()))))
}

// CacheStats prints the size of the content cache.
func (p *Printer) CacheStats(path string, st cache.Stats, fileBytes int64) {
	fmt.Fprintln(p.w, styleTitle.Render("cache ")+path)
	fmt.Fprintf(p.w, "  entries:   %s\n", humanize.Comma(st.Entries))
	fmt.Fprintf(p.w, "  summaries: %s\n", humanize.Bytes(uint64(st.SummaryBytes)))
	if fileBytes > 0 {
		fmt.Fprintf(p.w, "  on disk:   %s\n", humanize.Bytes(uint64(fileBytes)))
	}
}

// TelemetryEvent renders a recorded events.jsonl entry.
func (p *Printer) TelemetryEvent(ev telemetry.Event) {
	ts := styleDim.Render(ev.Timestamp.Local().Format("15:04:05"))
	kind := ev.Kind
	switch ev.Kind {
	case telemetry.KindRunError:
		kind = styleFailed.Render(kind)
	case telemetry.KindRunDone, telemetry.KindStageDone:
		kind = styleOK.Render(kind)
	case telemetry.KindPairDone:
		data, _ := ev.Data.(map[string]any)
		if st, _ := data["status"].(string); st != string(pipeline.StatusOK) {
			kind = styleWarn.Render(kind)
		} else {
			kind = styleOK.Render(kind)
		}
	default:
		kind = styleWorking.Render(kind)
	}
	var parts []string
	for _, s := range []string{ev.Stage, ev.SubsetID, ev.PipelineID} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	line := fmt.Sprintf("%s %-12s %s", ts, kind, strings.Join(parts, " "))
	if ev.Message != "" {
		line += " " + styleDim.Render(truncate(firstLine(ev.Message), 80))
	}
	fmt.Fprintln(p.w, line)
}

// WatchTriggered announces a change-triggered re-run.
func (p *Printer) WatchTriggered(paths []string) {
	msg := fmt.Sprintf("%d change(s)", len(paths))
	if len(paths) == 1 {
		msg = paths[0]
	}
	fmt.Fprintf(p.w, "\n%s %s\n", styleTitle.Render("↻ re-running"), styleDim.Render(msg))
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func preview(s string, lines int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	all := strings.Split(s, "\n")
	if len(all) > lines {
		all = all[len(all)-lines:]
	}
	return strings.Join(all, "\n")
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
