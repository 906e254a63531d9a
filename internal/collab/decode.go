package collab

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON returns the JSON document inside text. It accepts a bare
// document, a fenced code block, or a document surrounded by prose.
func extractJSON(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:] // drop the language tag line
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// decodeSelection parses {"folders": [...], "files": [...]}.
func decodeSelection(text string) (Selection, error) {
	raw := extractJSON(text)
	if !strings.HasPrefix(raw, "{") {
		return Selection{}, malformed("selection is not a JSON object")
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return Selection{}, malformed("selection: %v", err)
	}
	_, hasFolders := probe["folders"]
	_, hasFiles := probe["files"]
	if !hasFolders && !hasFiles {
		return Selection{}, malformed("selection has neither folders nor files")
	}
	var sel Selection
	if err := json.Unmarshal([]byte(raw), &sel); err != nil {
		return Selection{}, malformed("selection: %v", err)
	}
	return sel, nil
}

// subsetWire accepts both the current and the legacy member field names.
type subsetWire struct {
	ID        string   `json:"subset_id"`
	Files     []string `json:"files"`
	FilePaths []string `json:"file_paths"`
	Rationale string   `json:"rationale"`
}

// decodeSubsets parses an array of subsets or {"subsets": [...]}.
func decodeSubsets(text string) ([]SubsetProposal, error) {
	raw := []byte(extractJSON(text))
	if bytes.HasPrefix(raw, []byte("{")) {
		var wrapped struct {
			Subsets *json.RawMessage `json:"subsets"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, malformed("subsets: %v", err)
		}
		if wrapped.Subsets == nil {
			return nil, malformed("subsets object has no subsets field")
		}
		raw = *wrapped.Subsets
	}
	var wire []subsetWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, malformed("subsets: %v", err)
	}
	out := make([]SubsetProposal, 0, len(wire))
	for _, w := range wire {
		files := w.Files
		if len(files) == 0 {
			files = w.FilePaths
		}
		out = append(out, SubsetProposal{ID: w.ID, Files: files, Rationale: w.Rationale})
	}
	return out, nil
}

// decodePipelines parses an array whose items are either pipeline objects or
// bare pipeline ids, optionally wrapped as {"pipelines": [...]} or
// {"suggested_pipelines": [...]}.
func decodePipelines(text string) ([]PipelineProposal, error) {
	raw := []byte(extractJSON(text))
	if bytes.HasPrefix(raw, []byte("{")) {
		var wrapped struct {
			Pipelines          *json.RawMessage `json:"pipelines"`
			SuggestedPipelines *json.RawMessage `json:"suggested_pipelines"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, malformed("pipelines: %v", err)
		}
		switch {
		case wrapped.Pipelines != nil:
			raw = *wrapped.Pipelines
		case wrapped.SuggestedPipelines != nil:
			raw = *wrapped.SuggestedPipelines
		default:
			return nil, malformed("pipelines object has no pipelines field")
		}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, malformed("pipelines: %v", err)
	}
	out := make([]PipelineProposal, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if bytes.HasPrefix(item, []byte(`"`)) {
			var id string
			if err := json.Unmarshal(item, &id); err != nil {
				return nil, malformed("pipeline id: %v", err)
			}
			out = append(out, PipelineProposal{PipelineID: id})
			continue
		}
		var p PipelineProposal
		if err := json.Unmarshal(item, &p); err != nil {
			return nil, malformed("pipeline: %v", err)
		}
		out = append(out, p)
	}
	return out, nil
}
