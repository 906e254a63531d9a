package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	c := Default()
	ids := []string{"pipeline_injection", "pipeline_auth", "pipeline_secrets", "pipeline_xss"}
	for _, id := range ids {
		p, ok := c.Pipeline(id)
		if !ok {
			t.Fatalf("Pipeline(%q) missing from built-in catalog", id)
		}
		for _, s := range p.Stages {
			if !c.HasStage(s) {
				t.Errorf("pipeline %s references unknown stage %q", id, s)
			}
		}
	}
	if len(c.Pipelines()) != len(ids) {
		t.Errorf("len(Pipelines) = %d, want %d", len(c.Pipelines()), len(ids))
	}

	st, ok := c.Stage("taint_trace")
	if !ok || !st.Chain || !st.IncludeCode || st.Prompt == "" {
		t.Errorf("taint_trace = %+v, want chained code stage with prompt", st)
	}
}

func TestPipelineReturnsCopy(t *testing.T) {
	t.Parallel()

	c := Default()
	p, _ := c.Pipeline("pipeline_auth")
	p.Stages[0] = "mutated"

	again, _ := c.Pipeline("pipeline_auth")
	if again.Stages[0] == "mutated" {
		t.Error("Pipeline should return a copy of the stage list")
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "no pipelines",
			doc:  "[[stage]]\nname = \"a\"\n",
			want: ErrEmptyCatalog,
		},
		{
			name: "unknown stage",
			doc:  "[[stage]]\nname = \"a\"\n[[pipeline]]\nid = \"p\"\nstages = [\"a\", \"b\"]\n",
			want: ErrUnknownStage,
		},
		{
			name: "duplicate stage",
			doc:  "[[stage]]\nname = \"a\"\n[[stage]]\nname = \"a\"\n[[pipeline]]\nid = \"p\"\nstages = [\"a\"]\n",
			want: ErrDuplicate,
		},
		{
			name: "pipeline without stages",
			doc:  "[[stage]]\nname = \"a\"\n[[pipeline]]\nid = \"p\"\n",
			want: ErrNoStages,
		},
		{
			name: "unsafe name",
			doc:  "[[stage]]\nname = \"a/b\"\n[[pipeline]]\nid = \"p\"\nstages = [\"a/b\"]\n",
			want: ErrInvalidStageID,
		},
		{
			name: "empty pipeline id",
			doc:  "[[stage]]\nname = \"a\"\n[[pipeline]]\nstages = [\"a\"]\n",
			want: ErrEmptyName,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.doc))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Parse error = %v, want %v", err, tt.want)
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("error should contain a *ValidationError: %v", err)
			}
		})
	}
}

func TestParse_Syntax(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("[[stage]\nname = "))
	if err == nil || !strings.Contains(err.Error(), "catalog: parse") {
		t.Errorf("Parse error = %v, want parse error", err)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	c, err := Load("")
	if err != nil || !c.HasStage("vuln_report") {
		t.Fatalf("Load(\"\") = %v, %v; want built-in catalog", c, err)
	}

	path := filepath.Join(t.TempDir(), "catalog.toml")
	doc := "[[stage]]\nname = \"scan\"\ndescription = \"scan it\"\n[[pipeline]]\nid = \"pipeline_min\"\nstages = [\"scan\"]\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err = Load(path)
	if err != nil {
		t.Fatalf("Load(%q): %v", path, err)
	}
	if _, ok := c.Pipeline("pipeline_min"); !ok {
		t.Error("custom pipeline missing")
	}
	if c.HasStage("vuln_report") {
		t.Error("custom catalog should not include built-in stages")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load of missing file should fail")
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	out := Default().Render()
	for _, want := range []string{"Pipelines:", "- pipeline_injection:", "default stages: entrypoint_map, taint_trace, vuln_report", "Stages:", "- secret_exposure:"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q", want)
		}
	}
	if !strings.Contains(out, "- taint_trace: Follow untrusted input from entry points to dangerous sinks. (builds on the previous stage)") {
		t.Error("chained stages should be marked for the suggester")
	}
	if strings.Contains(out, "- config_scan: Inventory configuration, credentials and environment handling. (builds") {
		t.Error("config_scan does not chain")
	}
}
