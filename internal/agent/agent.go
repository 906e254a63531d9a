package agent

import "context"

// Role names the job an agent performs for the pipeline.
type Role string

// Role values, one per collaborator operation.
const (
	RoleSelector   Role = "selector"
	RoleSummarizer Role = "summarizer"
	RoleClusterer  Role = "clusterer"
	RoleSuggester  Role = "suggester"
	RoleAnalyst    Role = "analyst"
)

// Roles lists every role in pipeline order.
var Roles = []Role{RoleSelector, RoleSummarizer, RoleClusterer, RoleSuggester, RoleAnalyst}

// Agent is the per-role invocation settings.
type Agent struct {
	Role         Role
	SystemPrompt string
	Model        string
	MaxBudgetUSD float64
	AllowedTools []string // Tool permissions for this agent (passed as --allowedTools flags)
}

// InvocationResult is what one agent call returned.
type InvocationResult struct {
	ResultText string
	CostUSD    float64
	DurationMs int64
	SessionID  string
}

// Invoker runs a prompt against an agent.
type Invoker interface {
	Invoke(ctx context.Context, agent Agent, prompt string, workDir string) (InvocationResult, error)
	Validate() error
}
