package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// StageFileName returns the deterministic artifact name for one stage of a
// (subset, pipeline) pair, e.g. "subset-001_pipeline_injection_vuln_report.json".
func StageFileName(subsetID, pipelineID, stage, ext string) string {
	return fmt.Sprintf("%s_%s_%s.%s", subsetID, pipelineID, stage, strings.TrimPrefix(ext, "."))
}

// StageRecord is the JSON form of one stage output.
type StageRecord struct {
	SubsetID   string          `json:"subset_id"`
	PipelineID string          `json:"pipeline_id"`
	Stage      string          `json:"stage"`
	Content    string          `json:"content"`
	Structured json.RawMessage `json:"structured,omitempty"`
}

// StageFiles names the artifacts written for one stage, relative to
// OutputsDir.
type StageFiles struct {
	JSON     string
	Markdown string
}

// WriteStage persists a stage output as JSON plus a Markdown rendering under
// OutputsDir. The JSON file is written first; both are complete on return.
func (s *Store) WriteStage(rec StageRecord) (StageFiles, error) {
	files := StageFiles{
		JSON:     StageFileName(rec.SubsetID, rec.PipelineID, rec.Stage, "json"),
		Markdown: StageFileName(rec.SubsetID, rec.PipelineID, rec.Stage, "md"),
	}
	if rec.Structured == nil {
		rec.Structured = structured(rec.Content)
	}
	if err := s.WriteJSON(path.Join(OutputsDir, files.JSON), rec); err != nil {
		return files, err
	}
	if err := s.WriteFile(path.Join(OutputsDir, files.Markdown), []byte(RenderMarkdown(rec))); err != nil {
		return files, err
	}
	return files, nil
}

// ReadStage loads a stage output previously written by WriteStage.
func (s *Store) ReadStage(subsetID, pipelineID, stage string) (StageRecord, error) {
	var rec StageRecord
	err := s.ReadJSON(path.Join(OutputsDir, StageFileName(subsetID, pipelineID, stage, "json")), &rec)
	return rec, err
}

// structured returns content as raw JSON when it is a JSON document,
// optionally wrapped in a code fence; otherwise nil.
func structured(content string) json.RawMessage {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	if s == "" || (s[0] != '{' && s[0] != '[') || !json.Valid([]byte(s)) {
		return nil
	}
	return json.RawMessage(s)
}

// RenderMarkdown renders a stage output for human reading.
func RenderMarkdown(rec StageRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s / %s / %s\n\n", rec.SubsetID, rec.PipelineID, rec.Stage)
	if len(rec.Structured) > 0 {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, rec.Structured, "", "  "); err != nil {
			pretty.Reset()
			pretty.Write(rec.Structured)
		}
		b.WriteString("```json\n")
		b.Write(pretty.Bytes())
		b.WriteString("\n```\n")
		return b.String()
	}
	b.WriteString(strings.TrimSpace(rec.Content))
	b.WriteString("\n")
	return b.String()
}
