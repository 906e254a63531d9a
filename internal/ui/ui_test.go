package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/papapumpkin/xployt/internal/cache"
	"github.com/papapumpkin/xployt/internal/catalog"
	"github.com/papapumpkin/xployt/internal/collab"
	"github.com/papapumpkin/xployt/internal/pipeline"
	"github.com/papapumpkin/xployt/internal/telemetry"
)

func assertContains(t *testing.T, output string, substrs ...string) {
	t.Helper()
	for _, s := range substrs {
		if !strings.Contains(output, s) {
			t.Errorf("expected output to contain %q, got:\n%s", s, output)
		}
	}
}

func TestEvent_StageLifecycle(t *testing.T) {
	var buf bytes.Buffer
	p := NewWriter(&buf)

	p.Event(pipeline.Event{Kind: telemetry.KindRunStart, RunID: "run-7"})
	p.Event(pipeline.Event{Kind: telemetry.KindStageStart, Stage: "enrich"})
	p.Event(pipeline.Event{Kind: telemetry.KindStageDone, Stage: "enrich", Output: "enriched 3 files", Duration: 1500 * time.Millisecond})
	p.Event(pipeline.Event{Kind: telemetry.KindPairDone, Pair: &pipeline.ManifestEntry{
		SubsetID: "subset-002", PipelineID: "pipeline_auth", Status: pipeline.StatusFailed, Error: "run cancelled",
	}})

	assertContains(t, buf.String(), "run-7", "enrich", "working...", "enriched 3 files", "1.5s",
		"subset-002 / pipeline_auth", "run cancelled")
}

func TestEvent_RunError(t *testing.T) {
	var buf bytes.Buffer
	p := NewWriter(&buf)
	p.Event(pipeline.Event{Kind: telemetry.KindRunError, Err: &pipeline.RunError{
		Stage: "select", Code: 3, Output: "line one\nline two", Err: errors.New("exit status 1"),
	}})
	assertContains(t, buf.String(), "select failed (exit/status 3)", "exit status 1", "line two")
}

func TestRunSummary(t *testing.T) {
	tests := []struct {
		name    string
		entries []pipeline.ManifestEntry
		want    string
	}{
		{"empty", nil, "no pipelines executed"},
		{"all ok", []pipeline.ManifestEntry{{Status: pipeline.StatusOK}, {Status: pipeline.StatusOK}}, "2 pipeline(s) ok"},
		{"mixed", []pipeline.ManifestEntry{{Status: pipeline.StatusOK}, {Status: pipeline.StatusFailed}}, "1 ok, 1 failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewWriter(&buf).RunSummary(&pipeline.Result{RunDir: "output/run-1", Manifest: pipeline.Manifest{Entries: tt.entries}})
			assertContains(t, buf.String(), tt.want, "output/run-1")
		})
	}
}

func TestManifest_Table(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf).Manifest(pipeline.Manifest{RunID: "r", Entries: []pipeline.ManifestEntry{
		{SubsetID: "subset-001", PipelineID: "pipeline_injection", Status: pipeline.StatusOK, OutputArtifactPaths: []string{"a", "b", "c"}},
		{SubsetID: "subset-003", PipelineID: "pipeline_xss", Status: pipeline.StatusFailed, Error: "collaborator analyze failed"},
	}})
	assertContains(t, buf.String(), "SUBSET", "PIPELINE", "subset-001", "pipeline_injection", "ok", "3",
		"subset-003", "failed: collaborator analyze failed")
}

func TestManifest_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf).Manifest(pipeline.Manifest{})
	assertContains(t, buf.String(), "no pipeline results")
}

func TestCatalog(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf).Catalog(catalog.Default())
	assertContains(t, buf.String(), "pipeline_injection", "entrypoint_map → taint_trace → vuln_report", "[code,chain]")
}

func TestCacheStats(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf).CacheStats("output/cache.db", cache.Stats{Entries: 12345, SummaryBytes: 2_500_000}, 4_000_000)
	assertContains(t, buf.String(), "output/cache.db", "12,345", "2.5 MB", "4.0 MB")
}

func TestTelemetryEvent(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf).TelemetryEvent(telemetry.Event{
		Timestamp: time.Now(), Kind: telemetry.KindPairDone, Stage: "execute",
		SubsetID: "subset-001", PipelineID: "pipeline_auth", Message: "stage failed\nwith detail",
		Data: map[string]any{"status": "failed"},
	})
	out := buf.String()
	assertContains(t, out, "pair_done", "subset-001 pipeline_auth", "stage failed")
	if strings.Contains(out, "with detail") {
		t.Errorf("only the first message line should be shown:\n%s", out)
	}
}

func TestUsage(t *testing.T) {
	var buf bytes.Buffer
	p := NewWriter(&buf)

	p.Usage(collab.Usage{})
	if buf.Len() != 0 {
		t.Errorf("expected no output for an unused collaborator, got %q", buf.String())
	}

	p.Usage(collab.Usage{
		Calls:    map[string]int{"summarize": 12, "select": 1},
		Failures: map[string]int{"summarize": 2},
		CostUSD:  0.125,
	})
	assertContains(t, buf.String(), "13 call(s)", "[select=1 summarize=12]", "2 failed attempt(s)", "$0.1250")
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo wörld", 5); got != "héll…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
}
