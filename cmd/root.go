package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papapumpkin/xployt/internal/config"
	"github.com/papapumpkin/xployt/internal/logging"
	"github.com/papapumpkin/xployt/internal/pipeline"
)

var rootCmd = &cobra.Command{
	Use:   "xployt",
	Short: "Staged security analysis of a codebase",
	Long: `xployt walks a codebase through six stages (tree, select, enrich, cluster,
suggest, execute), asking an AI collaborator for every judgment call and
persisting each stage's artifact under <output_root>/<run_id>/.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the run's status code on
// failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var runErr *pipeline.RunError
		if !errors.As(err, &runErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to a process status. Run aborts keep their
// own code; everything else is classified, falling back to 1.
func exitCode(err error) int {
	if code := pipeline.ExitCode(err); code != 0 {
		return code
	}
	return pipeline.CodeOther
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default .xployt.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text or json")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".xployt")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("XPLOYT")
	viper.AutomaticEnv()

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}

// loadConfig reads and validates the merged configuration.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newLogger builds the diagnostic logger. Verbose forces debug.
func newLogger(cfg config.Config) *slog.Logger {
	level := logging.LevelFromString(cfg.LogLevel)
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return logging.New(os.Stderr, level, cfg.LogFormat)
}
