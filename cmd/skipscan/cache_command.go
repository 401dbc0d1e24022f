package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Fingerprint cache utilities",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache row counts and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.CollectStats(cmd.Context())
			if err != nil {
				return err
			}
			out := renderTable(
				[]string{"Metric", "Value"},
				[][]string{
					{"Fingerprints", strconv.Itoa(stats.Fingerprints)},
					{"Skip segments", strconv.Itoa(stats.Segments)},
					{"Manual segments", strconv.Itoa(stats.ManualRows)},
					{"Database size", formatBytes(stats.SizeBytes)},
					{"Location", store.Path()},
				},
				[]columnAlignment{alignLeft, alignRight},
			)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var olderThanDays int

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached fingerprints and derived segments",
		Long: `Clear removes cached fingerprints and the segments detection derived
from them. Manually imported segments are never removed. With
--older-than only stale fingerprints are dropped, and derived segments
survive as long as any fingerprint for their episode remains.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if olderThanDays > 0 {
				if err := store.ClearOlderThan(cmd.Context(), olderThanDays); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared cache entries older than %d days\n", olderThanDays)
				return nil
			}
			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Only remove entries older than this many days")
	return cmd
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
