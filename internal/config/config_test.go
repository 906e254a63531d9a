package config

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/papapumpkin/xployt/internal/agent"
	"github.com/papapumpkin/xployt/internal/tree"
)

// resetViper clears all viper state between tests to avoid cross-contamination.
func resetViper() {
	viper.Reset()
}

func TestLoad_Defaults(t *testing.T) {
	resetViper()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"RunID", cfg.RunID, ""},
		{"CodebasePath", cfg.CodebasePath, "."},
		{"MaxFiles", cfg.MaxFiles, 0},
		{"OutputRoot", cfg.OutputRoot, "output"},
		{"ClaudePath", cfg.ClaudePath, "claude"},
		{"MaxBudgetUSD", cfg.MaxBudgetUSD, 0.5},
		{"Concurrency", cfg.Concurrency, 4},
		{"EnrichWorkers", cfg.EnrichWorkers, 8},
		{"PairWorkers", cfg.PairWorkers, 4},
		{"MaxRetries", cfg.MaxRetries, 3},
		{"RetryBackoff", cfg.RetryBackoff, 500 * time.Millisecond},
		{"TreeMaxDepth", cfg.TreeMaxDepth, 6},
		{"ExcerptBytes", cfg.ExcerptBytes, 8000},
		{"Telemetry", cfg.Telemetry, true},
		{"ListenAddr", cfg.ListenAddr, ":8080"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"WatchDebounce", cfg.WatchDebounce, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
	if !slices.Equal(cfg.ExcludeDirs, tree.DefaultExcludeDirs) {
		t.Errorf("ExcludeDirs = %v, want %v", cfg.ExcludeDirs, tree.DefaultExcludeDirs)
	}
	if len(cfg.ClusterHints) != 3 {
		t.Errorf("ClusterHints = %v, want the three defaults", cfg.ClusterHints)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tests := []struct {
		name   string
		envKey string
		envVal string
		field  func(Config) any
		want   any
	}{
		{
			name:   "max_files",
			envKey: "XPLOYT_MAX_FILES",
			envVal: "50",
			field:  func(c Config) any { return c.MaxFiles },
			want:   50,
		},
		{
			name:   "output_root",
			envKey: "XPLOYT_OUTPUT_ROOT",
			envVal: "/tmp/runs",
			field:  func(c Config) any { return c.OutputRoot },
			want:   "/tmp/runs",
		},
		{
			name:   "retry_backoff",
			envKey: "XPLOYT_RETRY_BACKOFF",
			envVal: "2s",
			field:  func(c Config) any { return c.RetryBackoff },
			want:   2 * time.Second,
		},
		{
			name:   "telemetry",
			envKey: "XPLOYT_TELEMETRY",
			envVal: "false",
			field:  func(c Config) any { return c.Telemetry },
			want:   false,
		},
		{
			name:   "model",
			envKey: "XPLOYT_MODEL",
			envVal: "opus",
			field:  func(c Config) any { return c.Model },
			want:   "opus",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper()
			viper.SetEnvPrefix("XPLOYT")
			viper.AutomaticEnv()
			t.Setenv(tt.envKey, tt.envVal)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() returned unexpected error: %v", err)
			}
			got := tt.field(cfg)
			if got != tt.want {
				t.Errorf("%s: got %v (%T), want %v (%T)", tt.name, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	resetViper()
	base, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"negative max files", func(c *Config) { c.MaxFiles = -1 }, "max_files"},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, "concurrency"},
		{"zero pair workers", func(c *Config) { c.PairWorkers = 0 }, "pair_workers"},
		{"negative retries", func(c *Config) { c.MaxRetries = -2 }, "max_retries"},
		{"empty output root", func(c *Config) { c.OutputRoot = "" }, "output_root"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestRunConfig(t *testing.T) {
	resetViper()
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.RunID = "nightly"
	cfg.MaxFiles = 25

	rc := cfg.RunConfig("", "")
	if rc.RunID != "nightly" || rc.CodebaseRoot != "." || rc.MaxFiles != 25 || rc.OutputRoot != "output" {
		t.Errorf("RunConfig fallback = %+v", rc)
	}
	rc = cfg.RunConfig("adhoc", "/src/shop")
	if rc.RunID != "adhoc" || rc.CodebaseRoot != "/src/shop" {
		t.Errorf("RunConfig explicit = %+v", rc)
	}
}

func TestCacheFile(t *testing.T) {
	cfg := Config{OutputRoot: "out"}
	if got := cfg.CacheFile(); got != "out/cache.db" && got != `out\cache.db` {
		t.Errorf("CacheFile() = %q", got)
	}
	cfg.CachePath = "/var/cache/xployt.db"
	if got := cfg.CacheFile(); got != "/var/cache/xployt.db" {
		t.Errorf("CacheFile() = %q", got)
	}
}

func TestCollabOptions(t *testing.T) {
	cfg := Config{Model: "sonnet", MaxBudgetUSD: 1.5, Concurrency: 2, MaxRetries: 0}
	opts := cfg.CollabOptions("/src", nil)
	if len(opts.Agents) != len(agent.Roles) {
		t.Fatalf("agents = %d, want %d", len(opts.Agents), len(agent.Roles))
	}
	for role, a := range opts.Agents {
		if a.Model != "sonnet" || a.MaxBudgetUSD != 1.5 || a.SystemPrompt == "" {
			t.Errorf("agent %s = %+v", role, a)
		}
	}
	if opts.MaxRetries != -1 {
		t.Errorf("MaxRetries = %d, want -1 to disable retries", opts.MaxRetries)
	}
	if opts.WorkDir != "/src" || opts.Concurrency != 2 {
		t.Errorf("opts = %+v", opts)
	}
}
