package cli

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ppiankov/concord/internal/cache"
	"github.com/ppiankov/concord/internal/model"
)

var (
	invalidateContent  string
	invalidateSettings string
	invalidateCurrent  bool
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the result cache",
	Long: `Inspect and maintain the result cache.

Results are keyed by a hash of the source (plus hint) and a hash of the
agent and consensus settings, so changing either never serves stale results.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(func(ctx context.Context, cfg *model.Config, rc *cache.ResultCache) error {
			stats := rc.Stats()
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Backend:   %s\n", cfg.Cache.Backend)
			fmt.Fprintf(out, "Entries:   %d\n", stats.Entries)
			fmt.Fprintf(out, "Expired:   %d\n", stats.Expired)

			kinds := make([]string, 0, len(stats.ByKind))
			for k := range stats.ByKind {
				kinds = append(kinds, string(k))
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Fprintf(out, "  %-10s %d\n", k+":", stats.ByKind[cache.Kind(k)])
			}
			if stats.Oldest != nil {
				fmt.Fprintf(out, "Oldest:    %s\n", stats.Oldest.Format("2006-01-02 15:04:05"))
			}
			if stats.Newest != nil {
				fmt.Fprintf(out, "Newest:    %s\n", stats.Newest.Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintf(out, "Settings:  %s (current)\n", cache.SettingsHash(cfg))
			return nil
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(func(ctx context.Context, _ *model.Config, rc *cache.ResultCache) error {
			n, err := rc.Clear(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d entries\n", n)
			return nil
		})
	},
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(func(ctx context.Context, _ *model.Config, rc *cache.ResultCache) error {
			n, err := rc.SweepExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d expired entries\n", n)
			return nil
		})
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Remove results by content or settings hash",
	Long: `Remove cached results that match one content hash or one settings hash.
Use --current to drop every result produced with the current settings.

Example:
  concord cache invalidate --content 3f2a9c1e
  concord cache invalidate --current`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		set := 0
		for _, given := range []bool{invalidateContent != "", invalidateSettings != "", invalidateCurrent} {
			if given {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("use exactly one of --content, --settings or --current")
		}

		return withCache(func(ctx context.Context, cfg *model.Config, rc *cache.ResultCache) error {
			var n int
			var err error
			switch {
			case invalidateContent != "":
				n, err = rc.InvalidateByContent(ctx, invalidateContent)
			case invalidateSettings != "":
				n, err = rc.InvalidateBySettings(ctx, invalidateSettings)
			default:
				n, err = rc.InvalidateBySettings(ctx, cache.SettingsHash(cfg))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d entries\n", n)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheSweepCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)

	cacheInvalidateCmd.Flags().StringVar(&invalidateContent, "content", "", "content hash to remove")
	cacheInvalidateCmd.Flags().StringVar(&invalidateSettings, "settings", "", "settings hash to remove")
	cacheInvalidateCmd.Flags().BoolVar(&invalidateCurrent, "current", false, "remove results for the current settings")
}

// withCache opens the configured cache for one maintenance command. Agents
// are not required, so the cache stays manageable with no agents configured.
func withCache(fn func(ctx context.Context, cfg *model.Config, rc *cache.ResultCache) error) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Cache.Enabled {
		return fmt.Errorf("cache is disabled (cache.enabled: false)")
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	rc, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "Warning: closing cache: %v\n", cerr)
		}
	}()

	return fn(ctx, cfg, rc)
}
