package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/medcityai/pubgate/internal/output"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and purge the response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show response cache statistics",
	RunE:  runCacheStats,
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached responses",
	Long:  "Delete cached responses written before --older-than ago. Zero purges everything.",
	RunE:  runCachePurge,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePurgeCmd)

	addOutputFlags(cacheStatsCmd)
	cachePurgeCmd.Flags().Duration("older-than", 0, "Only purge entries older than this age (e.g. 24h)")
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	backend, err := openCache(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer backend.Close() //nolint:errcheck

	if backend.admin == nil {
		return errNoDurableCache
	}
	stats, err := backend.admin.CacheStats(cmd.Context())
	if err != nil {
		return err
	}
	return render(cmd, func(f output.Formatter) (string, error) {
		return f.FormatCacheStats(stats)
	})
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	olderThan, err := cmd.Flags().GetDuration("older-than")
	if err != nil {
		return err
	}
	if olderThan < 0 {
		return fmt.Errorf("older-than must not be negative")
	}

	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	backend, err := openCache(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer backend.Close() //nolint:errcheck

	if backend.admin == nil {
		return errNoDurableCache
	}
	var cutoff time.Time
	if olderThan > 0 {
		cutoff = time.Now().Add(-olderThan)
	}
	removed, err := backend.admin.PurgeCache(cmd.Context(), cutoff)
	if err != nil {
		return err
	}
	cmd.Printf("Purged %s cached responses from %s\n", humanize.Comma(removed), backend.driver)
	return nil
}
