package agent

import "strings"

// JSONContract is appended to prompts for roles that must answer with a
// machine-readable document.
const JSONContract = `## Output format

Respond with a single JSON document and nothing else. Do not wrap it in
prose. A fenced ` + "```json" + ` block is tolerated but not required.`

const defaultSelectorPrompt = `You are a senior application security auditor triaging an unfamiliar codebase.

You will receive the directory tree of the project. Choose the folders and files
most likely to contain security-relevant logic: request handlers, authentication
and session code, database access, file handling, command execution,
deserialization, templating and configuration that carries secrets.

Return {"folders": ["path/to/dir", ...], "files": ["path/to/file.ext", ...]}.
Use paths exactly as they appear in the tree, relative to its root.`

const defaultSummarizerPrompt = `You are a senior application security auditor.

Summarize the given source file in two or three sentences: what it does, what
inputs it trusts, and which sensitive operations it performs. Plain text only.`

const defaultClustererPrompt = `You are a senior application security auditor planning a review.

Group the given files into subsets that should be analyzed together. Use the
relationship hints supplied (for example shared data flow, layering, shared
mutable state). A file may appear in more than one subset when it genuinely
belongs to several flows.

Return a JSON array: [{"files": ["path", ...], "rationale": "why these belong together"}, ...].`

const defaultSuggesterPrompt = `You are a senior application security auditor.

Choose which analysis pipelines from the catalog should run on the given subset
of files, and the ordered stages each should run. Only use pipeline ids and
stage names that appear in the catalog.

Return a JSON array: [{"pipeline_id": "...", "stages": ["stage_a", "stage_b"]}, ...].`

const defaultAnalystPrompt = `You are a senior application security auditor performing one stage of a
multi-stage review. Follow the stage instructions exactly. When the instructions
ask for structured output, answer with JSON only.`

// DefaultSystemPrompt returns the built-in system prompt for role.
func DefaultSystemPrompt(role Role) string {
	switch role {
	case RoleSelector:
		return defaultSelectorPrompt
	case RoleSummarizer:
		return defaultSummarizerPrompt
	case RoleClusterer:
		return defaultClustererPrompt
	case RoleSuggester:
		return defaultSuggesterPrompt
	case RoleAnalyst:
		return defaultAnalystPrompt
	default:
		return ""
	}
}

// PromptOpts controls optional sections appended to the agent system prompt.
type PromptOpts struct {
	ProjectContext string // Stable project description prepended for prompt caching.
	RequireJSON    bool   // When true, JSONContract is appended.
}

// BuildSystemPrompt constructs the full system prompt for an agent by
// combining the base prompt with optional sections based on opts.
// The ordering is: [ProjectContext] → [base prompt] → [JSON contract].
// Project context is placed first because it is stable across all invocations
// of a run.
func BuildSystemPrompt(basePrompt string, opts PromptOpts) string {
	var b strings.Builder

	if opts.ProjectContext != "" {
		b.WriteString(opts.ProjectContext)
		b.WriteString("\n\n---\n\n")
	}

	b.WriteString(basePrompt)

	if opts.RequireJSON {
		b.WriteString("\n\n")
		b.WriteString(JSONContract)
	}

	return b.String()
}

// RequiresJSON reports whether role answers with a JSON document.
func RequiresJSON(role Role) bool {
	switch role {
	case RoleSelector, RoleClusterer, RoleSuggester:
		return true
	default:
		return false
	}
}
