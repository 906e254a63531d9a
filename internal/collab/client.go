package collab

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/papapumpkin/xployt/internal/agent"
)

// Defaults applied by New for zero-valued Options.
const (
	DefaultConcurrency = 4
	DefaultMaxRetries  = 3
	DefaultBackoff     = 500 * time.Millisecond
	DefaultMaxBackoff  = 10 * time.Second
	DefaultCallTimeout = 10 * time.Minute
)

// Options configure a Client.
type Options struct {
	Agents      map[agent.Role]agent.Agent // per-role agent settings; missing roles use defaults
	WorkDir     string                     // working directory for invocations
	Concurrency int                        // ceiling on simultaneous calls
	MaxRetries  int                        // retries after the first attempt; negative disables
	Backoff     time.Duration              // first retry delay, doubled per attempt
	MaxBackoff  time.Duration
	CallTimeout time.Duration // upper bound on a single in-flight call
	Logger      *slog.Logger
}

// Usage aggregates the calls a Client has issued.
type Usage struct {
	Calls    map[string]int
	Failures map[string]int
	CostUSD  float64
}

// Client implements Collaborator over an agent.Invoker.
//
// Cancelling the context passed to an operation stops new attempts (including
// retries and calls still waiting for a concurrency slot) but never aborts a
// call that is already in flight.
type Client struct {
	inv  agent.Invoker
	opts Options
	sem  *semaphore.Weighted
	log  *slog.Logger

	mu    sync.Mutex
	usage Usage
}

var _ Collaborator = (*Client)(nil)

// New returns a Client driving inv.
func New(inv agent.Invoker, opts Options) *Client {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Client{
		inv:  inv,
		opts: opts,
		sem:  semaphore.NewWeighted(int64(opts.Concurrency)),
		log:  log,
		usage: Usage{
			Calls:    make(map[string]int),
			Failures: make(map[string]int),
		},
	}
}

// Usage returns a snapshot of the calls issued so far.
func (c *Client) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := Usage{
		Calls:    make(map[string]int, len(c.usage.Calls)),
		Failures: make(map[string]int, len(c.usage.Failures)),
		CostUSD:  c.usage.CostUSD,
	}
	for k, v := range c.usage.Calls {
		u.Calls[k] = v
	}
	for k, v := range c.usage.Failures {
		u.Failures[k] = v
	}
	return u
}

func (c *Client) agentFor(role agent.Role) agent.Agent {
	a, ok := c.opts.Agents[role]
	if !ok {
		a = agent.Agent{}
	}
	a.Role = role
	if a.SystemPrompt == "" {
		a.SystemPrompt = agent.BuildSystemPrompt(agent.DefaultSystemPrompt(role),
			agent.PromptOpts{RequireJSON: agent.RequiresJSON(role)})
	}
	return a
}

// backoff returns the delay before retry number attempt (1-based).
func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.opts.MaxBackoff {
			return c.opts.MaxBackoff
		}
	}
	return d
}

// do issues prompt for role, retrying failed invocations and responses that
// parse rejects.
func (c *Client) do(ctx context.Context, op string, role agent.Role, prompt string, parse func(string) error) error {
	a := c.agentFor(role)
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= c.opts.MaxRetries+1; attempt++ {
		if attempt > 1 {
			wait := c.backoff(attempt - 1)
			c.log.Warn("retrying collaborator call", "op", op, "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return &Error{Op: op, Attempts: attempts, Err: errors.Join(ctx.Err(), lastErr)}
			case <-time.After(wait):
			}
		}
		if err := ctx.Err(); err != nil {
			return &Error{Op: op, Attempts: attempts, Err: errors.Join(err, lastErr)}
		}
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return &Error{Op: op, Attempts: attempts, Err: errors.Join(err, lastErr)}
		}
		attempts++
		text, err := c.invoke(ctx, op, a, prompt)
		c.sem.Release(1)
		if err == nil {
			if err = parse(text); err == nil {
				return nil
			}
		}
		lastErr = err
		c.recordFailure(op)
	}
	return &Error{Op: op, Attempts: attempts, Err: lastErr}
}

// invoke runs one call detached from ctx's cancellation so an in-flight call
// always drains.
func (c *Client) invoke(ctx context.Context, op string, a agent.Agent, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.CallTimeout)
	defer cancel()

	res, err := c.inv.Invoke(callCtx, a, prompt, c.opts.WorkDir)
	c.mu.Lock()
	c.usage.Calls[op]++
	c.usage.CostUSD += res.CostUSD
	c.mu.Unlock()
	if err != nil {
		return "", err
	}
	return res.ResultText, nil
}

func (c *Client) recordFailure(op string) {
	c.mu.Lock()
	c.usage.Failures[op]++
	c.mu.Unlock()
}

// Select asks which folders and files merit attention.
func (c *Client) Select(ctx context.Context, req SelectRequest) (Selection, error) {
	var sel Selection
	err := c.do(ctx, OpSelect, agent.RoleSelector, selectPrompt(req), func(text string) error {
		var err error
		sel, err = decodeSelection(text)
		return err
	})
	return sel, err
}

// Summarize returns a short summary of one file.
func (c *Client) Summarize(ctx context.Context, req SummarizeRequest) (string, error) {
	var summary string
	err := c.do(ctx, OpSummarize, agent.RoleSummarizer, summarizePrompt(req), func(text string) error {
		summary = strings.TrimSpace(text)
		if summary == "" {
			return malformed("empty summary")
		}
		return nil
	})
	return summary, err
}

// Cluster groups files into subsets.
func (c *Client) Cluster(ctx context.Context, req ClusterRequest) ([]SubsetProposal, error) {
	var subsets []SubsetProposal
	err := c.do(ctx, OpCluster, agent.RoleClusterer, clusterPrompt(req), func(text string) error {
		var err error
		subsets, err = decodeSubsets(text)
		return err
	})
	return subsets, err
}

// Suggest picks pipelines and their stages for one subset.
func (c *Client) Suggest(ctx context.Context, req SuggestRequest) ([]PipelineProposal, error) {
	var pipelines []PipelineProposal
	err := c.do(ctx, OpSuggest, agent.RoleSuggester, suggestPrompt(req), func(text string) error {
		var err error
		pipelines, err = decodePipelines(text)
		return err
	})
	return pipelines, err
}

// Analyze runs one stage and returns its raw output.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (string, error) {
	var out string
	err := c.do(ctx, OpAnalyze, agent.RoleAnalyst, analyzePrompt(req), func(text string) error {
		if strings.TrimSpace(text) == "" {
			return malformed("empty stage output for %s", req.Stage)
		}
		out = text
		return nil
	})
	return out, err
}
