package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/papapumpkin/xployt/internal/agent"
	"github.com/papapumpkin/xployt/internal/collab"
	"github.com/papapumpkin/xployt/internal/pipeline"
	"github.com/papapumpkin/xployt/internal/tree"
)

// Config holds all runtime configuration for xployt.
// Values are populated from .xployt.yaml, XPLOYT_* env vars, and CLI flags.
type Config struct {
	RunID        string   `mapstructure:"run_id"`
	CodebasePath string   `mapstructure:"codebase_path"`
	MaxFiles     int      `mapstructure:"max_files"`
	ExcludeDirs  []string `mapstructure:"exclude_dirs"`
	OutputRoot   string   `mapstructure:"output_root"`
	CachePath    string   `mapstructure:"cache_path"`
	CatalogPath  string   `mapstructure:"catalog_path"`

	ClaudePath   string        `mapstructure:"claude_path"`
	Model        string        `mapstructure:"model"`
	MaxBudgetUSD float64       `mapstructure:"max_budget_usd"`
	Concurrency  int           `mapstructure:"concurrency"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	CallTimeout  time.Duration `mapstructure:"call_timeout"`

	EnrichWorkers   int      `mapstructure:"enrich_workers"`
	PairWorkers     int      `mapstructure:"pair_workers"`
	TreeMaxDepth    int      `mapstructure:"tree_max_depth"`
	TreePromptBytes int      `mapstructure:"tree_prompt_bytes"`
	ExcerptBytes    int      `mapstructure:"excerpt_bytes"`
	ClusterHints    []string `mapstructure:"cluster_hints"`

	Telemetry     bool          `mapstructure:"telemetry"`
	ListenAddr    string        `mapstructure:"listen_addr"`
	LogLevel      string        `mapstructure:"log_level"`
	LogFormat     string        `mapstructure:"log_format"`
	Verbose       bool          `mapstructure:"verbose"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// SetDefaults registers the built-in default for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("run_id", "")
	v.SetDefault("codebase_path", ".")
	v.SetDefault("max_files", 0)
	v.SetDefault("exclude_dirs", tree.DefaultExcludeDirs)
	v.SetDefault("output_root", "output")
	v.SetDefault("cache_path", "")
	v.SetDefault("catalog_path", "")
	v.SetDefault("claude_path", "claude")
	v.SetDefault("model", "")
	v.SetDefault("max_budget_usd", 0.5)
	v.SetDefault("concurrency", 4)
	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_backoff", 500*time.Millisecond)
	v.SetDefault("call_timeout", 10*time.Minute)
	v.SetDefault("enrich_workers", 8)
	v.SetDefault("pair_workers", pipeline.DefaultPairWorkers)
	v.SetDefault("tree_max_depth", tree.DefaultMaxDepth)
	v.SetDefault("tree_prompt_bytes", pipeline.DefaultTreePromptBytes)
	v.SetDefault("excerpt_bytes", pipeline.DefaultExcerptBytes)
	v.SetDefault("cluster_hints", pipeline.DefaultClusterHints)
	v.SetDefault("telemetry", true)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("verbose", false)
	v.SetDefault("watch_debounce", 2*time.Second)
}

// Load reads configuration from the global viper instance, applying built-in
// defaults for any values not set by config file, environment, or flags.
func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load for an explicit viper instance.
func LoadFrom(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	check := func(bad bool, format string, args ...any) {
		if bad {
			errs = append(errs, fmt.Errorf("config: "+format, args...))
		}
	}
	check(c.MaxFiles < 0, "max_files must not be negative (got %d)", c.MaxFiles)
	check(c.Concurrency <= 0, "concurrency must be positive (got %d)", c.Concurrency)
	check(c.EnrichWorkers <= 0, "enrich_workers must be positive (got %d)", c.EnrichWorkers)
	check(c.PairWorkers <= 0, "pair_workers must be positive (got %d)", c.PairWorkers)
	check(c.MaxRetries < 0, "max_retries must not be negative (got %d)", c.MaxRetries)
	check(c.RetryBackoff < 0, "retry_backoff must not be negative (got %s)", c.RetryBackoff)
	check(c.TreeMaxDepth < 0, "tree_max_depth must not be negative (got %d)", c.TreeMaxDepth)
	check(c.TreePromptBytes < 0, "tree_prompt_bytes must not be negative (got %d)", c.TreePromptBytes)
	check(c.ExcerptBytes < 0, "excerpt_bytes must not be negative (got %d)", c.ExcerptBytes)
	check(c.OutputRoot == "", "output_root must not be empty")
	return errors.Join(errs...)
}

// CacheFile returns the cache database path, defaulting to cache.db under
// the output root.
func (c Config) CacheFile() string {
	if c.CachePath != "" {
		return c.CachePath
	}
	return filepath.Join(c.OutputRoot, "cache.db")
}

// RunConfig returns the run-scoped settings for a run of path. Empty id or
// path fall back to the configured run_id and codebase_path.
func (c Config) RunConfig(id, path string) pipeline.RunConfig {
	if id == "" {
		id = c.RunID
	}
	if path == "" {
		path = c.CodebasePath
	}
	return pipeline.RunConfig{
		RunID:           id,
		CodebaseRoot:    path,
		OutputRoot:      c.OutputRoot,
		MaxFiles:        c.MaxFiles,
		ExcludeDirs:     c.ExcludeDirs,
		TreeMaxDepth:    c.TreeMaxDepth,
		TreePromptBytes: c.TreePromptBytes,
		ExcerptBytes:    c.ExcerptBytes,
		EnrichWorkers:   c.EnrichWorkers,
		PairWorkers:     c.PairWorkers,
		ClusterHints:    c.ClusterHints,
	}
}

// CollabOptions returns the collaborator settings. Every role shares the
// configured model and budget.
func (c Config) CollabOptions(workDir string, log *slog.Logger) collab.Options {
	agents := make(map[agent.Role]agent.Agent, len(agent.Roles))
	for _, r := range agent.Roles {
		agents[r] = agent.Agent{
			Role:         r,
			SystemPrompt: agent.DefaultSystemPrompt(r),
			Model:        c.Model,
			MaxBudgetUSD: c.MaxBudgetUSD,
		}
	}
	retries := c.MaxRetries
	if retries == 0 {
		retries = -1 // collab treats zero as "use the default"
	}
	return collab.Options{
		Agents:      agents,
		WorkDir:     workDir,
		Concurrency: c.Concurrency,
		MaxRetries:  retries,
		Backoff:     c.RetryBackoff,
		CallTimeout: c.CallTimeout,
		Logger:      log,
	}
}
