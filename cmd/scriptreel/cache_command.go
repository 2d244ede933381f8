package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scriptreel/internal/cache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the clip cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show clip cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCache(cmd.Context(), func(clips *cache.Cache) error {
				size, err := clips.SizeEstimate(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, map[string]any{
						"backend": clips.Backend(),
						"entries": size.Entries,
						"bytes":   size.Bytes,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Backend: %s\n", clips.Backend())
				fmt.Fprintf(out, "Entries: %d\n", size.Entries)
				fmt.Fprintf(out, "Size:    %s\n", humanBytes(size.Bytes))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print cache usage as JSON")
	return cmd
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cache entry (clip files are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCache(cmd.Context(), func(clips *cache.Cache) error {
				before, err := clips.SizeEstimate(cmd.Context())
				if err != nil {
					return err
				}
				if err := clips.EvictAll(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cache entries\n", before.Entries)
				return nil
			})
		},
	}
}

func humanBytes(v int64) string {
	const unit = 1024
	if v < unit {
		return fmt.Sprintf("%d B", v)
	}
	div := int64(unit)
	exp := 0
	for n := v / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	value := float64(v) / float64(div)
	return fmt.Sprintf("%.1f %ciB", value, "KMGTPEZY"[exp])
}
