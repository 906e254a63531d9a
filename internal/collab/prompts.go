package collab

import (
	"fmt"
	"strings"
)

func selectPrompt(req SelectRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project root: %s (%d files)\n\n", req.RootName, req.Files)
	b.WriteString("Directory tree (paths are relative to the root):\n```\n")
	b.WriteString(req.Tree)
	if !strings.HasSuffix(req.Tree, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n\n")
	b.WriteString(`Return {"folders": [...], "files": [...]} listing the paths that deserve a security review.`)
	return b.String()
}

func summarizePrompt(req SummarizeRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", req.Path)
	if req.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", req.Language)
	}
	b.WriteString("\n```\n")
	b.WriteString(req.Content)
	if !strings.HasSuffix(req.Content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n\nSummarize this file in two or three sentences.")
	return b.String()
}

// writeDigests renders files one per block, in the given order.
func writeDigests(b *strings.Builder, files []FileDigest) {
	for _, f := range files {
		fmt.Fprintf(b, "- %s", f.Path)
		if f.Language != "" {
			fmt.Fprintf(b, " [%s]", f.Language)
		}
		b.WriteString("\n")
		if len(f.Imports) > 0 {
			fmt.Fprintf(b, "  imports: %s\n", strings.Join(f.Imports, ", "))
		}
		if f.Summary != "" {
			fmt.Fprintf(b, "  summary: %s\n", oneLine(f.Summary))
		}
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clusterPrompt(req ClusterRequest) string {
	var b strings.Builder
	b.WriteString("Files selected for review:\n")
	writeDigests(&b, req.Files)
	if len(req.Hints) > 0 {
		b.WriteString("\nRelationship hints to group by:\n")
		for _, h := range req.Hints {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	b.WriteString("\nReturn a JSON array of subsets: [{\"files\": [...], \"rationale\": \"...\"}].")
	return b.String()
}

func suggestPrompt(req SuggestRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subset %s", req.SubsetID)
	if req.Rationale != "" {
		fmt.Fprintf(&b, " (%s)", oneLine(req.Rationale))
	}
	b.WriteString(":\n")
	writeDigests(&b, req.Files)
	b.WriteString("\nCatalog:\n")
	b.WriteString(req.Catalog)
	if !strings.HasSuffix(req.Catalog, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\nReturn a JSON array: [{\"pipeline_id\": \"...\", \"stages\": [\"...\"]}].")
	return b.String()
}

func analyzePrompt(req AnalyzeRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subset: %s\nPipeline: %s\nStage: %s\n\n", req.SubsetID, req.PipelineID, req.Stage)
	b.WriteString("## Instructions\n")
	b.WriteString(req.Instructions)
	b.WriteString("\n\n## Input\n")
	b.WriteString(req.Input)
	if req.Code != "" {
		b.WriteString("\n\n## Code\n")
		b.WriteString(req.Code)
	}
	return b.String()
}
