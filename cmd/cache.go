package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/papapumpkin/xployt/internal/cache"
	"github.com/papapumpkin/xployt/internal/ui"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or prune the content cache",
	Long: `The content cache maps the sha256 of a file's contents to its summary, so
unchanged files are never summarized twice. It lives at cache_path
(default <output_root>/cache.db).`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many summaries the cache holds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(cmd, func(ctx context.Context, p *ui.Printer, db *cache.SQLite) error {
			return cacheStats(ctx, p, db)
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached summary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(cmd, func(ctx context.Context, p *ui.Printer, db *cache.SQLite) error {
			return cacheClear(ctx, p, db)
		})
	},
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete <hash>",
	Short: "Remove the summary cached for one content hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd, func(ctx context.Context, p *ui.Printer, db *cache.SQLite) error {
			return cacheDelete(ctx, p, db, args[0])
		})
	},
}

func init() {
	cacheCmd.PersistentFlags().String("path", "", "cache database (default: from config)")
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cacheDeleteCmd)
	rootCmd.AddCommand(cacheCmd)
}

// withCache opens the cache named by --path or the config and calls fn.
func withCache(cmd *cobra.Command, fn func(context.Context, *ui.Printer, *cache.SQLite) error) error {
	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.CacheFile()
	}
	ctx := cmd.Context()
	db, err := cache.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer db.Close()
	return fn(ctx, ui.NewWriter(cmd.OutOrStdout()), db)
}

func cacheStats(ctx context.Context, p *ui.Printer, db *cache.SQLite) error {
	st, err := db.Stats(ctx)
	if err != nil {
		return err
	}
	var size int64
	if info, err := os.Stat(db.Path()); err == nil {
		size = info.Size()
	}
	p.CacheStats(db.Path(), st, size)
	return nil
}

func cacheClear(ctx context.Context, p *ui.Printer, db *cache.SQLite) error {
	n, err := db.Clear(ctx)
	if err != nil {
		return err
	}
	p.Info(fmt.Sprintf("removed %s cached summaries", humanize.Comma(n)))
	return nil
}

func cacheDelete(ctx context.Context, p *ui.Printer, db *cache.SQLite, hash string) error {
	found, err := db.Delete(ctx, hash)
	if err != nil {
		return err
	}
	if !found {
		p.Warn(fmt.Sprintf("no cached summary for %s", hash))
		return nil
	}
	p.Info(fmt.Sprintf("removed %s", hash))
	return nil
}
