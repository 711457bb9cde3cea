package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/build-flow-labs/spof/internal/spof/cache"
)

var cacheJSON bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached response",
	RunE:  runCacheClear,
}

func init() {
	cacheStatsCmd.Flags().BoolVar(&cacheJSON, "json", false, "Output JSON")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func openCache() (*cache.Cache, error) {
	cfg, err := loadConfig(true)
	if err != nil {
		return nil, err
	}
	c, err := cache.Open(cfg.Cache.Directory, cfg.Cache.TTL, cache.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if !cfg.Cache.Enabled {
		c.Disable()
	}
	return c, nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	stats, err := c.Stats()
	if err != nil {
		return err
	}
	if cacheJSON {
		return printJSON(cmd.OutOrStdout(), stats)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Path:\t%s\n", stats.Path)
	fmt.Fprintf(w, "Enabled:\t%t\n", stats.Enabled)
	fmt.Fprintf(w, "Entries:\t%d\n", stats.Entries)
	fmt.Fprintf(w, "Size:\t%.2f MB\n", stats.SizeMB)
	return w.Flush()
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	n, err := c.Clear()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cache entries\n", n)
	return nil
}
