package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/papapumpkin/xployt/internal/agent"
)

// maxArgPrompt is the largest prompt passed as a command-line argument.
// Linux caps a single argv string at 128 KiB; longer prompts go over stdin.
const maxArgPrompt = 96 << 10

// ErrResponse is wrapped when the CLI reports an error result.
var ErrResponse = errors.New("claude returned error")

// Invoker calls the claude CLI as a subprocess.
type Invoker struct {
	ClaudePath string
	Verbose    bool
	Logger     *slog.Logger
}

// buildEnv constructs the environment for a claude invocation.
// It strips the CLAUDECODE variable (to allow nested invocation) and adds
// CLAUDE_CODE_DISABLE_MCP_POPUPS=1 to suppress MCP server UI popups
// during headless agent runs.
func buildEnv(base []string) []string {
	env := make([]string, 0, len(base)+1)
	for _, e := range base {
		if !strings.HasPrefix(e, "CLAUDECODE=") {
			env = append(env, e)
		}
	}
	env = append(env, "CLAUDE_CODE_DISABLE_MCP_POPUPS=1")
	return env
}

// buildArgs constructs the CLI arguments for a claude invocation. Prompts
// longer than maxArgPrompt are returned as stdin instead of an argument.
func buildArgs(a agent.Agent, prompt string) (args []string, stdin string) {
	if len(prompt) > maxArgPrompt {
		args = []string{"-p"}
		stdin = prompt
	} else {
		args = []string{"-p", prompt}
	}
	args = append(args, "--output-format", "json")

	if a.SystemPrompt != "" {
		args = append(args, "--system-prompt", a.SystemPrompt)
	}

	if a.Model != "" {
		args = append(args, "--model", a.Model)
	}

	if a.MaxBudgetUSD > 0 {
		args = append(args, "--max-budget-usd", fmt.Sprintf("%.2f", a.MaxBudgetUSD))
	}

	for _, tool := range a.AllowedTools {
		args = append(args, "--allowedTools", tool)
	}

	return args, stdin
}

// parseResponse decodes the CLI's JSON envelope.
func parseResponse(raw []byte) (agent.InvocationResult, error) {
	var resp CLIResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return agent.InvocationResult{}, fmt.Errorf("failed to parse claude JSON output: %w\nraw output: %s", err, raw)
	}

	if resp.IsError {
		return agent.InvocationResult{}, fmt.Errorf("%w: %s", ErrResponse, resp.Result)
	}

	return agent.InvocationResult{
		ResultText: resp.Result,
		CostUSD:    resp.TotalCostUSD,
		DurationMs: resp.DurationMs,
		SessionID:  resp.SessionID,
	}, nil
}

func (inv *Invoker) logger() *slog.Logger {
	if inv.Logger != nil {
		return inv.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (inv *Invoker) Invoke(ctx context.Context, a agent.Agent, prompt string, workDir string) (agent.InvocationResult, error) {
	args, stdin := buildArgs(a, prompt)

	cmd := exec.CommandContext(ctx, inv.ClaudePath, args...)
	cmd.Dir = workDir
	cmd.SysProcAttr = sessionAttr()

	cmd.Env = buildEnv(os.Environ())

	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if inv.Verbose {
		inv.logger().Debug("claude invocation",
			"role", a.Role, "path", inv.ClaudePath, "prompt_bytes", len(prompt), "stdin", stdin != "")
	}

	if err := cmd.Run(); err != nil {
		return agent.InvocationResult{}, fmt.Errorf("claude invocation failed: %w\nstderr: %s", err, stderr.String())
	}

	res, err := parseResponse(stdout.Bytes())
	if err != nil {
		return agent.InvocationResult{}, err
	}
	inv.logger().Debug("claude done",
		"role", a.Role, "cost_usd", res.CostUSD, "duration_ms", res.DurationMs)
	return res, nil
}

func (inv *Invoker) Validate() error {
	cmd := exec.Command(inv.ClaudePath, "--version")
	cmd.Env = buildEnv(os.Environ())

	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("claude CLI not found at %q: %w", inv.ClaudePath, err)
	}
	if inv.Verbose {
		inv.logger().Debug("claude version", "version", strings.TrimSpace(string(out)))
	}
	return nil
}
