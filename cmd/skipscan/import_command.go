package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"skipscan/internal/config"
	"skipscan/internal/media/ffprobe"
	"skipscan/internal/skipdata"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var useFullPath bool

	cmd := &cobra.Command{
		Use:   "import <timestamps.json> <video-directory>",
		Short: "Import curated timestamps for an episode set",
		Long: `Import reads a timestamp file and applies it to the videos in the
directory. The file either carries one global intro/outro timing for
every episode, or a per-episode map matched to files by season/episode
tag or name. Imported segments are stored with full confidence and are
never swept by cache clears.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			tsPath, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			videoDir, err := config.ExpandPath(args[1])
			if err != nil {
				return err
			}

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runCtx, cancel := ctx.signalContext(cmd.Context())
			defer cancel()

			runner := ctx.runner()
			probe := func(ctx context.Context, path string) (float64, error) {
				return ffprobe.Duration(ctx, runner, cfg.FFprobeBinary(), path,
					time.Duration(cfg.Detection.FFprobeTimeout)*time.Second)
			}
			results, err := skipdata.Import(runCtx, store, tsPath, videoDir, probe, log)
			if err != nil {
				return err
			}

			if outputPath == "" {
				outputPath = filepath.Join(cfg.Paths.DataDir, "skip_data.json")
			}
			if err := skipdata.Write(outputPath, results, useFullPath, log); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported timestamps for %d episodes\n", len(results))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Skip data file location (default <data_dir>/skip_data.json)")
	cmd.Flags().BoolVar(&useFullPath, "full-path", false, "Key skip data entries by absolute path instead of normalized name")
	return cmd
}
